// Package ref layers weak and strong handle-to-object wrappers over
// per-type slot stores.
//
// Each wrapped element type gets one process-wide slot.Store per wrapper
// kind. Weak[T] stores a weak.Pointer[T] and Strong[T] stores the *T itself;
// both are a single slot.Handle, so thousands of back-references to one
// object cost one word each.
//
// Dead weak slots are reclaimed incrementally: every allocation and access
// sweeps SweepBudget slots of the registry and frees those whose referent
// has been collected. In builds tagged slotdebug the same sweep runs over
// strong registries and panics when it finds a target that reports itself
// destroyed while its handle is still alive.
//
// Registries are never compacted, because outstanding wrapper values cannot
// be rewritten.
package ref
