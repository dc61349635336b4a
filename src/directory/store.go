package directory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/p2p_rfc/src/wire"
)

// Store is the server's authoritative mapping from document id to title
// and holder set. It is the only state shared across connections, so all
// access goes through Register/Find/Snapshot; the backing maps are never
// exposed.
//
// Locking is two-level: the store lock guards the id map, each record
// carries its own lock for holder mutation. Unrelated ids never contend
// beyond the short map lookup.
type Store struct {
	mu      sync.RWMutex
	records map[int]*record
}

type record struct {
	mu      sync.RWMutex
	title   string
	holders []wire.PeerAddress // registration order, duplicate-free
}

func NewStore() *Store {
	return &Store{records: make(map[int]*record)}
}

// Register creates the record for id on first sight, with the supplied
// title and the adding peer as sole holder. Later registrations only
// extend the holder set: re-adding the same address is a no-op and the
// title is first-write-wins, never altered by a conflicting ADD.
func (s *Store) Register(id int, title string, addr wire.PeerAddress) error {
	if id < 1 {
		return fmt.Errorf("%w: document id %d", wire.ErrBadRequest, id)
	}
	if addr.Host == "" || addr.Port < 1 {
		return fmt.Errorf("%w: holder address %q", wire.ErrBadRequest, addr)
	}
	if title == "" {
		return fmt.Errorf("%w: empty title", wire.ErrBadRequest)
	}

	rec := s.getOrCreate(id, title, addr)
	if rec == nil {
		return nil // created with addr as first holder
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, h := range rec.holders {
		if h == addr {
			return nil
		}
	}
	rec.holders = append(rec.holders, addr)
	return nil
}

// getOrCreate returns the existing record for id, or nil after creating
// a fresh one holding exactly {addr}. Creation happens under the store's
// write lock so a concurrent Find/Snapshot never sees a half-built record.
func (s *Store) getOrCreate(id int, title string, addr wire.PeerAddress) *record {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return rec
	}
	s.records[id] = &record{
		title:   title,
		holders: []wire.PeerAddress{addr},
	}
	return nil
}

// Find returns a copy of the current holder set for id, in registration
// order. A record always has at least one holder.
func (s *Store) Find(id int) ([]wire.PeerAddress, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, wire.ErrNotFound)
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()
	holders := make([]wire.PeerAddress, len(rec.holders))
	copy(holders, rec.holders)
	return holders, nil
}

// Snapshot returns a point-in-time view of all (id, title) pairs, sorted
// by ascending id. Titles are immutable after record creation, so the
// store lock alone is enough for a consistent read.
func (s *Store) Snapshot() []wire.Entry {
	s.mu.RLock()
	entries := make([]wire.Entry, 0, len(s.records))
	for id, rec := range s.records {
		entries = append(entries, wire.Entry{ID: id, Title: rec.title})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Len reports how many documents are registered.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
