package main

import (
	"fmt"
	"io"
	"runtime"
	"text/template"
	"time"
)

type Report struct {
	Config Config

	// Results
	TotalTime     time.Duration
	Allocs        int64
	Frees         int64
	Reads         int64
	StaleChecks   int64
	Mismatches    int64
	Compactions   int64
	MovedSlots    int64
	WeakRefs      int64
	LiveSlots     int
	StoreLen      int
	StoreCap      int
	CompactTime   Stats
	MemStatsStart runtime.MemStats
	MemStatsEnd   runtime.MemStats
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
		total += sample
	}
	s.Avg = total / time.Duration(len(s.Samples))
}

// OpsPerSecond returns allocs, frees and reads per second of run time.
func (r *Report) OpsPerSecond() float64 {
	if r.TotalTime <= 0 {
		return 0
	}
	return float64(r.Allocs+r.Frees+r.Reads) / r.TotalTime.Seconds()
}

func (r *Report) Generate(w io.Writer) error {
	const reportTemplate = `
# Slot Store Stress Test Report

## Test Configuration
- **Run Duration:** {{.Config.Duration}}
- **Workers:** {{.Config.Workers}}
- **Initial Slots:** {{.Config.InitialSlots}}
- **Compact Interval:** {{.Config.CompactInterval}}

## Operations
- **Total Test Time:** {{.TotalTime}}
- **Allocs:** {{.Allocs}}
- **Frees:** {{.Frees}}
- **Reads:** {{.Reads}}
- **Throughput:** {{printf "%.0f" .OpsPerSecond}} ops/s
- **Stale Handles Rejected:** {{.StaleChecks}}
- **Value Mismatches:** {{.Mismatches}}
- **Weak Refs Created:** {{.WeakRefs}}

## Store
- **Live Slots:** {{.LiveSlots}}
- **Tracked Length:** {{.StoreLen}}
- **Capacity:** {{.StoreCap}}
- **Compactions:** {{.Compactions}} ({{.MovedSlots}} slots moved)
{{- if .CompactTime.Samples}}
  - **Avg:** {{.CompactTime.Avg}}
  - **Min:** {{.CompactTime.Min}}
  - **Max:** {{.CompactTime.Max}}
{{- end}}

## Memory Usage (MiB)
- Heap Alloc:     {{mb .MemStatsStart.HeapAlloc}} (start) -> {{mb .MemStatsEnd.HeapAlloc}} (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc | mb}}
- Total Alloc:    {{mb .MemStatsStart.TotalAlloc}} (start) -> {{mb .MemStatsEnd.TotalAlloc}} (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc | mb}}
- Sys Memory:     {{mb .MemStatsStart.Sys}} (start) -> {{mb .MemStatsEnd.Sys}} (end)
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{if .Config.GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{usub64 .MemStatsEnd.PauseTotalNs .MemStatsStart.PauseTotalNs | ns}}
- **Num GC Cycles:** {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{end}}`

	fm := template.FuncMap{
		"mb": func(v any) string {
			switch val := v.(type) {
			case uint64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			case int64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			default:
				return "N/A"
			}
		},
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"usub64": func(a, b uint64) uint64 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, r)
}
