package slot

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rs/zerolog"
)

const (
	minCapacity = 16

	// MaxSlots bounds the tracked length of a store.
	MaxSlots = math.MaxInt32
)

const (
	opAlloc = "alloc"
	opFree  = "free"
	opGet   = "get"
	opSet   = "set"
	opSwap  = "swap"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	capacity int
	name     string
	logger   zerolog.Logger
	metrics  *Metrics
}

// WithCapacity preallocates room for n slots.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithName sets the name used in log events and metric labels.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics reports the store's activity to m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Store is a generational slot allocator for values of type T.
//
// Every method is safe for concurrent use. Pointers returned by Get and
// Borrow point into the backing array and are only valid until the next
// allocation on the same store: growth copies the array and writes through an
// old pointer are lost.
type Store[T any] struct {
	mu sync.Mutex

	data    []T
	tracker []Handle
	length  int
	free    *roaring.Bitmap

	lastOccupied int
	nextVersion  uint16
	closed       bool

	// epoch changes whenever a pointer into data may have gone stale.
	epoch atomic.Uint64

	name    string
	log     zerolog.Logger
	metrics *storeMetrics
}

// Stats is a point-in-time snapshot of a store.
type Stats struct {
	Name     string
	Count    int
	Free     int
	Len      int
	Cap      int
	MaxIndex int
}

// New creates an empty store.
func New[T any](opts ...Option) *Store[T] {
	o := options{name: "default", logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[T]{
		free:         roaring.New(),
		lastOccupied: -1,
		nextVersion:  1,
		name:         o.name,
		log:          o.logger.With().Str("store", o.name).Logger(),
		metrics:      o.metrics.forStore(o.name),
	}
	if o.capacity > 0 {
		s.data = make([]T, o.capacity)
		s.tracker = make([]Handle, o.capacity)
	}
	s.metrics.observe(0, 0, len(s.data))
	return s
}

// Name returns the store name given by WithName.
func (s *Store[T]) Name() string {
	return s.name
}

// AllocSlot reserves a slot holding the zero value of T and returns its handle.
// The lowest free index is reused first.
func (s *Store[T]) AllocSlot() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return invalidHandle, ErrClosed
	}
	h, err := s.alloc()
	s.observe()
	return h, err
}

// AllocSlots reserves n slots under a single lock acquisition.
func (s *Store[T]) AllocSlots(n int) ([]Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCount, n)
	}
	handles := make([]Handle, 0, n)
	for range n {
		h, err := s.alloc()
		if err != nil {
			s.rollback(handles)
			return nil, err
		}
		handles = append(handles, h)
	}
	s.observe()
	return handles, nil
}

// AllocValue reserves a slot and stores v in it.
func (s *Store[T]) AllocValue(v T) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return invalidHandle, ErrClosed
	}
	h, err := s.alloc()
	if err != nil {
		return invalidHandle, err
	}
	s.data[h.Index()] = v
	s.observe()
	return h, nil
}

// AllocValues reserves one slot per value. Handles are returned in the order
// of values.
func (s *Store[T]) AllocValues(values []T) ([]Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	handles := make([]Handle, 0, len(values))
	for _, v := range values {
		h, err := s.alloc()
		if err != nil {
			s.rollback(handles)
			return nil, err
		}
		s.data[h.Index()] = v
		handles = append(handles, h)
	}
	s.observe()
	return handles, nil
}

// Free releases the slot h refers to. Freeing a stale or already freed
// handle returns a *HandleError.
func (s *Store[T]) Free(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.validate(opFree, h)
	if err != nil {
		return err
	}
	s.release(i)
	s.observe()
	return nil
}

// FreeAll releases every handle in hs. Either all handles are freed or, when
// any of them is invalid, none are.
func (s *Store[T]) FreeAll(hs []Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	seen := roaring.New()
	for _, h := range hs {
		i, err := s.validate(opFree, h)
		if err != nil {
			return err
		}
		if !seen.CheckedAdd(uint32(i)) {
			return s.reject(opFree, h, ErrDuplicateHandle)
		}
	}
	for _, h := range hs {
		s.release(int(h.Index()))
	}
	s.observe()
	return nil
}

// Get returns a pointer to the value h refers to. The pointer must not be
// kept across a later allocation on s; see Borrow for a checked variant.
func (s *Store[T]) Get(h Handle) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.validate(opGet, h)
	if err != nil {
		return nil, err
	}
	return &s.data[i], nil
}

// Value returns a copy of the value h refers to.
func (s *Store[T]) Value(h Handle) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.validate(opGet, h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.data[i], nil
}

// Set overwrites the value h refers to.
func (s *Store[T]) Set(h Handle, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.validate(opSet, h)
	if err != nil {
		return err
	}
	s.data[i] = v
	return nil
}

// IsAlive reports whether h currently refers to an allocated slot of s.
func (s *Store[T]) IsAlive(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, reason := s.check(h)
	return reason == nil
}

// Count returns the number of allocated slots.
func (s *Store[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count()
}

// FreeCount returns the number of free slots below Len.
func (s *Store[T]) FreeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.free.GetCardinality())
}

// Len returns the tracked length: one past the highest index handed out
// since the last compaction.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// Cap returns the number of slots the backing arrays can hold without growing.
func (s *Store[T]) Cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// MaxAllocatedIndex returns the highest allocated index, or -1 when the store
// is empty.
func (s *Store[T]) MaxAllocatedIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOccupied
}

// Stats returns a consistent snapshot of the store counters.
func (s *Store[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Name:     s.name,
		Count:    s.count(),
		Free:     int(s.free.GetCardinality()),
		Len:      s.length,
		Cap:      len(s.data),
		MaxIndex: s.lastOccupied,
	}
}

// Close releases the backing arrays. Every later call returns ErrClosed.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	live := s.count()
	s.closed = true
	s.data = nil
	s.tracker = nil
	s.length = 0
	s.lastOccupied = -1
	s.free.Clear()
	s.epoch.Add(1)
	s.metrics.observe(0, 0, 0)
	s.log.Debug().Int("live", live).Msg("slot store closed")
	return nil
}

func (s *Store[T]) alloc() (Handle, error) {
	var index int
	if !s.free.IsEmpty() {
		index = int(s.free.Minimum())
		s.free.Remove(uint32(index))
	} else {
		if s.length >= MaxSlots {
			return invalidHandle, ErrFull
		}
		if s.length == len(s.data) {
			s.grow(s.length + 1)
		}
		index = s.length
		s.length++
	}

	h := NewHandle(uint32(index), s.takeVersion(), true)
	var zero T
	s.data[index] = zero
	s.tracker[index] = h
	if index > s.lastOccupied {
		s.lastOccupied = index
	}
	s.epoch.Add(1)
	s.metrics.alloc()
	return h, nil
}

// rollback frees handles allocated earlier in a failed batch.
func (s *Store[T]) rollback(handles []Handle) {
	for _, h := range handles {
		s.release(int(h.Index()))
	}
}

func (s *Store[T]) release(i int) {
	var zero T
	s.data[i] = zero
	s.tracker[i] = invalidHandle
	s.free.Add(uint32(i))
	if i == s.lastOccupied {
		s.lastOccupied = s.lastOccupiedBelow(i)
	}
	s.epoch.Add(1)
	s.metrics.free()
}

func (s *Store[T]) lastOccupiedBelow(i int) int {
	for j := i - 1; j >= 0; j-- {
		if s.tracker[j].Allocated() {
			return j
		}
	}
	return -1
}

func (s *Store[T]) grow(need int) {
	newCap := max(len(s.data)*2, minCapacity)
	for newCap < need {
		newCap *= 2
	}
	newCap = min(newCap, MaxSlots)

	data := make([]T, newCap)
	copy(data, s.data[:s.length])
	tracker := make([]Handle, newCap)
	copy(tracker, s.tracker[:s.length])

	s.log.Debug().Int("from", len(s.data)).Int("to", newCap).Msg("slot store grew")
	s.data = data
	s.tracker = tracker
}

// takeVersion returns the next version, skipping 0 on wraparound.
func (s *Store[T]) takeVersion() uint16 {
	v := s.nextVersion
	if s.nextVersion == MaxVersion {
		s.nextVersion = 1
	} else {
		s.nextVersion++
	}
	return v
}

func (s *Store[T]) count() int {
	return s.length - int(s.free.GetCardinality())
}

// check reports why h is not alive, or nil when it is.
func (s *Store[T]) check(h Handle) (int, error) {
	if s.closed {
		return -1, ErrClosed
	}
	if !h.Allocated() {
		return -1, ErrNotAllocated
	}
	i := int(h.Index())
	if i >= s.length {
		return -1, ErrIndexOutOfRange
	}
	current := s.tracker[i]
	if !current.Allocated() {
		return -1, ErrSlotFree
	}
	if current != h {
		return -1, ErrVersionMismatch
	}
	return i, nil
}

func (s *Store[T]) validate(op string, h Handle) (int, error) {
	i, reason := s.check(h)
	switch {
	case reason == nil:
		return i, nil
	case reason == ErrClosed:
		return -1, ErrClosed
	case reason == ErrSlotFree && op == opFree:
		reason = ErrDoubleFree
	}
	return -1, s.reject(op, h, reason)
}

func (s *Store[T]) reject(op string, h Handle, reason error) error {
	s.metrics.invalid(reason)
	s.log.Error().Str("op", op).Stringer("handle", h).Str("reason", reason.Error()).Msg("invalid handle")
	return &HandleError{Op: op, Handle: h, Reason: reason}
}

func (s *Store[T]) observe() {
	s.metrics.observe(s.count(), int(s.free.GetCardinality()), len(s.data))
}
