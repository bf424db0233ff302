package ref

import (
	"reflect"
	"sync"

	"github.com/kamstrup/intmap"
	"github.com/plus3/slotmap/slot"
	"github.com/rs/zerolog"
)

// SweepBudget is the number of slots inspected by the incremental sweep that
// runs on every wrapper allocation and access.
const SweepBudget = 4

const (
	kindWeak   = "weak"
	kindStrong = "strong"
)

type registryKey struct {
	kind string
	typ  reflect.Type
}

var (
	registriesMu sync.RWMutex
	registries   = make(map[registryKey]any)

	logger  = zerolog.Nop()
	metrics *slot.Metrics
)

// SetLogger sets the logger used by registries created after the call.
// Call it during initialization, before any wrapper is allocated.
func SetLogger(l zerolog.Logger) {
	registriesMu.Lock()
	defer registriesMu.Unlock()
	logger = l
}

// SetMetrics sets the metrics sink used by registries created after the call.
func SetMetrics(m *slot.Metrics) {
	registriesMu.Lock()
	defer registriesMu.Unlock()
	metrics = m
}

// registry is the per-type slot store backing one wrapper kind, plus the
// cursor of its incremental sweep.
type registry[V any] struct {
	store *slot.Store[V]

	sweepMu sync.Mutex
	cursor  int

	// tombs maps a slot index to the handle the sweep freed there, until the
	// index is allocated again.
	tombMu sync.Mutex
	tombs  *intmap.Map[uint32, slot.Handle]
}

func lookup[V any](kind string, typ reflect.Type) *registry[V] {
	key := registryKey{kind: kind, typ: typ}

	registriesMu.RLock()
	r, ok := registries[key]
	registriesMu.RUnlock()
	if ok {
		return r.(*registry[V])
	}

	registriesMu.Lock()
	defer registriesMu.Unlock()
	if r, ok := registries[key]; ok {
		return r.(*registry[V])
	}

	name := kind + ":" + typ.String()
	created := &registry[V]{
		store: slot.New[V](
			slot.WithName(name),
			slot.WithLogger(logger),
			slot.WithMetrics(metrics),
		),
		tombs: intmap.New[uint32, slot.Handle](64),
	}
	registries[key] = created
	logger.Debug().Str("registry", name).Msg("handle registry created")
	return created
}

// sweep runs one bounded step of the incremental cleanup.
func (r *registry[V]) sweep(reclaim func(slot.Handle, *V) bool) int {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	next, freed := r.store.Sweep(r.cursor, SweepBudget, reclaim)
	r.cursor = next
	return freed
}

// bury records that h was freed because its target went away.
func (r *registry[V]) bury(h slot.Handle) {
	r.tombMu.Lock()
	defer r.tombMu.Unlock()
	r.tombs.Put(h.Index(), h)
}

// buried reports whether h was freed by bury and its index not reused since.
func (r *registry[V]) buried(h slot.Handle) bool {
	r.tombMu.Lock()
	defer r.tombMu.Unlock()
	dead, ok := r.tombs.Get(h.Index())
	return ok && dead == h
}

// reused forgets the tombstone at h's index once h has been allocated there.
func (r *registry[V]) reused(h slot.Handle) {
	r.tombMu.Lock()
	defer r.tombMu.Unlock()
	r.tombs.Del(h.Index())
}
