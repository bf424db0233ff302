package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plus3/slotmap/ref"
	"github.com/plus3/slotmap/slot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type payload struct {
	worker int
	seq    uint64
}

// shard is the set of handles owned by one worker. seqs[i] is the value
// expected behind handles[i].
type shard struct {
	handles []slot.Handle
	seqs    []uint64
	next    uint64
}

func (sh *shard) add(h slot.Handle, seq uint64) {
	sh.handles = append(sh.handles, h)
	sh.seqs = append(sh.seqs, seq)
}

func (sh *shard) removeAt(i int) {
	last := len(sh.handles) - 1
	sh.handles[i], sh.seqs[i] = sh.handles[last], sh.seqs[last]
	sh.handles = sh.handles[:last]
	sh.seqs = sh.seqs[:last]
}

type counters struct {
	allocs, frees, reads atomic.Int64
	stale, mismatches    atomic.Int64
	compactions, moved   atomic.Int64
	weakRefs             atomic.Int64
}

type stressRun struct {
	cfg   Config
	log   *zap.Logger
	store *slot.Store[payload]

	// remap is held for reading by workers for one operation at a time and
	// for writing while compaction rewrites the shards.
	remap  sync.RWMutex
	shards []*shard

	counters    counters
	compactTime Stats
}

// Run drives cfg.Workers workers doing random alloc, free and read mixes
// against one store until ctx is done, compacting every cfg.CompactInterval.
func Run(ctx context.Context, cfg Config, log *zap.Logger, opts ...slot.Option) (*Report, error) {
	opts = append(opts, slot.WithCapacity(cfg.InitialSlots), slot.WithName("stress"))
	r := &stressRun{
		cfg:    cfg,
		log:    log,
		store:  slot.New[payload](opts...),
		shards: make([]*shard, cfg.Workers),
	}
	defer r.store.Close()

	if err := r.populate(); err != nil {
		return nil, err
	}
	log.Info("Population complete.", zap.Int("slots", r.store.Count()))

	report := &Report{Config: cfg}
	runtime.ReadMemStats(&report.MemStatsStart)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for id := range cfg.Workers {
		g.Go(func() error { return r.work(gctx, id) })
	}
	if cfg.CompactInterval > 0 {
		g.Go(func() error { return r.compactLoop(gctx) })
	}
	g.Go(func() error { return r.refWork(gctx) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.TotalTime = time.Since(start)
	runtime.ReadMemStats(&report.MemStatsEnd)

	owned := 0
	for _, sh := range r.shards {
		owned += len(sh.handles)
	}
	stats := r.store.Stats()
	if stats.Count != owned {
		return nil, fmt.Errorf("store holds %d live slots, workers own %d", stats.Count, owned)
	}

	report.Allocs = r.counters.allocs.Load()
	report.Frees = r.counters.frees.Load()
	report.Reads = r.counters.reads.Load()
	report.StaleChecks = r.counters.stale.Load()
	report.Mismatches = r.counters.mismatches.Load()
	report.Compactions = r.counters.compactions.Load()
	report.MovedSlots = r.counters.moved.Load()
	report.WeakRefs = r.counters.weakRefs.Load()
	report.LiveSlots = stats.Count
	report.StoreLen = stats.Len
	report.StoreCap = stats.Cap
	report.CompactTime = r.compactTime
	report.CompactTime.Finalize()
	return report, nil
}

func (r *stressRun) populate() error {
	for id := range r.shards {
		r.shards[id] = &shard{}
	}
	for i := range r.cfg.InitialSlots {
		id := i % len(r.shards)
		sh := r.shards[id]
		sh.next++
		h, err := r.store.AllocValue(payload{worker: id, seq: sh.next})
		if err != nil {
			return fmt.Errorf("populate: %w", err)
		}
		sh.add(h, sh.next)
	}
	return nil
}

func (r *stressRun) work(ctx context.Context, id int) error {
	rng := rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano())))
	sh := r.shards[id]
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := r.step(id, sh, rng); err != nil {
			return fmt.Errorf("worker %d: %w", id, err)
		}
	}
}

func (r *stressRun) step(id int, sh *shard, rng *rand.Rand) error {
	r.remap.RLock()
	defer r.remap.RUnlock()

	op := rng.IntN(10)
	switch {
	case op < 4 || len(sh.handles) == 0:
		sh.next++
		h, err := r.store.AllocValue(payload{worker: id, seq: sh.next})
		if err != nil {
			return err
		}
		sh.add(h, sh.next)
		r.counters.allocs.Add(1)

	case op < 7:
		i := rng.IntN(len(sh.handles))
		h := sh.handles[i]
		if err := r.store.Free(h); err != nil {
			return err
		}
		sh.removeAt(i)
		r.counters.frees.Add(1)

		if _, err := r.store.Value(h); !errors.Is(err, slot.ErrInvalidHandle) {
			return fmt.Errorf("freed handle %s still resolves", h)
		}
		r.counters.stale.Add(1)

	default:
		i := rng.IntN(len(sh.handles))
		v, err := r.store.Value(sh.handles[i])
		if err != nil {
			return err
		}
		if v.worker != id || v.seq != sh.seqs[i] {
			r.counters.mismatches.Add(1)
			r.log.Error("value mismatch",
				zap.Stringer("handle", sh.handles[i]),
				zap.Uint64("want", sh.seqs[i]),
				zap.Uint64("got", v.seq))
		}
		r.counters.reads.Add(1)
	}
	return nil
}

func (r *stressRun) compactLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.CompactInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.compact(); err != nil {
				return err
			}
		}
	}
}

func (r *stressRun) compact() error {
	r.remap.Lock()
	defer r.remap.Unlock()

	start := time.Now()
	moves, err := r.store.Compact()
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	if len(moves) > 0 {
		moved := make(map[slot.Handle]slot.Handle, len(moves))
		for _, m := range moves {
			moved[m.Old] = m.New
		}
		for _, sh := range r.shards {
			for i, h := range sh.handles {
				if n, ok := moved[h]; ok {
					sh.handles[i] = n
				}
			}
		}
	}
	took := time.Since(start)

	r.compactTime.Samples = append(r.compactTime.Samples, took)
	r.counters.compactions.Add(1)
	r.counters.moved.Add(int64(len(moves)))
	r.log.Debug("compacted", zap.Int("moved", len(moves)), zap.Duration("took", took))
	return nil
}

// tracked is the target type of the weak reference worker. The pointer
// field keeps targets out of the tiny allocator so each one is collected on
// its own.
type tracked struct {
	id   uint64
	next *tracked
}

// weakWindow is how many targets the weak reference worker keeps reachable.
const weakWindow = 64

// refWork churns weak references to short-lived targets. Targets inside the
// window are reachable and must resolve; older ones are dropped and left to
// the registry sweep.
func (r *stressRun) refWork(ctx context.Context) error {
	live := make([]*tracked, 0, weakWindow)
	refs := make([]ref.Weak[tracked], 0, weakWindow)
	defer func() {
		for _, w := range refs {
			_ = w.Release()
		}
	}()

	for n := uint64(1); ; n++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		t := &tracked{id: n}
		w, err := ref.NewWeak(t)
		if err != nil {
			return err
		}
		if len(live) == weakWindow {
			live = append(live[:0], live[1:]...)
			refs = append(refs[:0], refs[1:]...)
		}
		live = append(live, t)
		refs = append(refs, w)

		got, err := refs[0].GetTarget()
		if err != nil {
			return fmt.Errorf("weak ref to reachable target: %w", err)
		}
		if got != live[0] {
			return fmt.Errorf("weak ref resolved to target %d, want %d", got.id, live[0].id)
		}
		r.counters.weakRefs.Add(1)
	}
}
