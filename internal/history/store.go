package history

import (
	"slices"
	"sync"

	"oi-tracker/internal/types"
)

// DefaultCapacity is the per-instrument history bound.
const DefaultCapacity = 100

// Store keeps a bounded, timestamp-deduplicated snapshot history per
// instrument. Every mutation happens under one lock.
type Store struct {
	buffers  map[string]*buffer
	order    []string
	capacity int
	mu       sync.RWMutex
}

// buffer is one instrument's sequence; current is the last element. day
// keeps every snapshot recorded since the last ClearAll, unbounded.
type buffer struct {
	snapshots     []types.Snapshot
	day           []types.Snapshot
	lastTimestamp string
}

// New creates a store pre-registering symbols so they are reported even
// before their first snapshot.
func New(capacity int, symbols ...string) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	s := &Store{
		buffers:  make(map[string]*buffer, len(symbols)),
		capacity: capacity,
	}
	for _, sym := range symbols {
		s.register(sym)
	}
	return s
}

func (s *Store) register(symbol string) *buffer {
	if b, ok := s.buffers[symbol]; ok {
		return b
	}
	b := &buffer{snapshots: make([]types.Snapshot, 0, s.capacity)}
	s.buffers[symbol] = b
	s.order = append(s.order, symbol)
	return b
}

// RecordIfNew appends snap unless its timestamp equals the last recorded
// one for symbol. The oldest entry is evicted past capacity.
func (s *Store) RecordIfNew(symbol string, snap types.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.register(symbol)
	if b.lastTimestamp != "" && b.lastTimestamp == snap.Timestamp {
		return false
	}

	b.snapshots = append(b.snapshots, snap)
	b.day = append(b.day, snap)
	if len(b.snapshots) > s.capacity {
		// Copy down so the backing array does not grow without bound.
		n := copy(b.snapshots, b.snapshots[len(b.snapshots)-s.capacity:])
		b.snapshots = b.snapshots[:n]
	}
	b.lastTimestamp = snap.Timestamp
	return true
}

// Current returns the last recorded snapshot for symbol.
func (s *Store) Current(symbol string) (types.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buffers[symbol]
	if !ok || len(b.snapshots) == 0 {
		return types.Snapshot{}, false
	}
	return b.snapshots[len(b.snapshots)-1], true
}

// History returns a copy of symbol's sequence in arrival order. The bool
// reports whether the symbol is known at all.
func (s *Store) History(symbol string) ([]types.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buffers[symbol]
	if !ok {
		return nil, false
	}
	out := make([]types.Snapshot, len(b.snapshots))
	copy(out, b.snapshots)
	return out, true
}

// All maps every known symbol to its current snapshot, or nil.
func (s *Store) All() map[string]*types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*types.Snapshot, len(s.buffers))
	for sym, b := range s.buffers {
		if len(b.snapshots) == 0 {
			out[sym] = nil
			continue
		}
		snap := b.snapshots[len(b.snapshots)-1]
		out[sym] = &snap
	}
	return out
}

// Day copies every snapshot recorded since the last ClearAll, per symbol.
// Unlike History it is not capped, so a full trading session survives.
func (s *Store) Day() map[string][]types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]types.Snapshot, len(s.buffers))
	for sym, b := range s.buffers {
		out[sym] = slices.Clone(b.day)
	}
	return out
}

// LastUpdated returns the last recorded upstream timestamp for symbol.
func (s *Store) LastUpdated(symbol string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buffers[symbol]
	if !ok || b.lastTimestamp == "" {
		return "", false
	}
	return b.lastTimestamp, true
}

// ClearAll empties history, the day log and last-seen state for every symbol.
// Symbols stay registered.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.buffers {
		b.snapshots = b.snapshots[:0]
		b.day = nil
		b.lastTimestamp = ""
	}
}

// Symbols lists known symbols in registration order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
