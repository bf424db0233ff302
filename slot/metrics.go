package slot

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports store activity to Prometheus. One Metrics value can serve
// many stores; series are labelled by store name.
type Metrics struct {
	allocs      *prometheus.CounterVec
	frees       *prometheus.CounterVec
	invalid     *prometheus.CounterVec
	compactions *prometheus.CounterVec
	moved       *prometheus.CounterVec
	live        *prometheus.GaugeVec
	freeSlots   *prometheus.GaugeVec
	capacity    *prometheus.GaugeVec
}

// NewMetrics creates an unregistered collector set under namespace.
func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slot",
			Name:      name,
			Help:      help,
		}, append([]string{"store"}, labels...))
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "slot",
			Name:      name,
			Help:      help,
		}, []string{"store"})
	}

	return &Metrics{
		allocs:      counter("allocs_total", "Slots allocated"),
		frees:       counter("frees_total", "Slots freed"),
		invalid:     counter("invalid_handle_total", "Handles rejected, by reason", "reason"),
		compactions: counter("compactions_total", "Compaction passes"),
		moved:       counter("moved_slots_total", "Slots relocated by compaction"),
		live:        gauge("live_slots", "Allocated slots"),
		freeSlots:   gauge("free_slots", "Free slots below the tracked length"),
		capacity:    gauge("capacity_slots", "Slots the backing arrays can hold"),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.allocs, m.frees, m.invalid, m.compactions, m.moved,
		m.live, m.freeSlots, m.capacity,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// storeMetrics holds the series of one store. A nil *storeMetrics is a no-op.
type storeMetrics struct {
	allocs      prometheus.Counter
	frees       prometheus.Counter
	compactions prometheus.Counter
	moved       prometheus.Counter
	live        prometheus.Gauge
	freeSlots   prometheus.Gauge
	capacity    prometheus.Gauge
	rejected    *prometheus.CounterVec
}

func (m *Metrics) forStore(name string) *storeMetrics {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{"store": name}
	return &storeMetrics{
		allocs:      m.allocs.With(labels),
		frees:       m.frees.With(labels),
		compactions: m.compactions.With(labels),
		moved:       m.moved.With(labels),
		live:        m.live.With(labels),
		freeSlots:   m.freeSlots.With(labels),
		capacity:    m.capacity.With(labels),
		rejected:    m.invalid.MustCurryWith(labels),
	}
}

func (m *storeMetrics) alloc() {
	if m != nil {
		m.allocs.Inc()
	}
}

func (m *storeMetrics) free() {
	if m != nil {
		m.frees.Inc()
	}
}

func (m *storeMetrics) compacted(moved int) {
	if m != nil {
		m.compactions.Inc()
		m.moved.Add(float64(moved))
	}
}

func (m *storeMetrics) invalid(reason error) {
	if m != nil {
		m.rejected.WithLabelValues(reasonLabel(reason)).Inc()
	}
}

func (m *storeMetrics) observe(live, free, capacity int) {
	if m != nil {
		m.live.Set(float64(live))
		m.freeSlots.Set(float64(free))
		m.capacity.Set(float64(capacity))
	}
}
