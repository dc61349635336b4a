package directory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/danmuck/p2p_rfc/src/wire"
)

func addr(host string, port int) wire.PeerAddress {
	return wire.PeerAddress{Host: host, Port: port}
}

func TestRegisterAndFind(t *testing.T) {
	s := NewStore()

	if err := s.Register(100, "Test RFC", addr("a", 4000)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	holders, err := s.Find(100)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(holders) != 1 || holders[0] != addr("a", 4000) {
		t.Errorf("Find(100) = %v, want [a:4000]", holders)
	}
}

func TestFindUnknownIsNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Find(1); !errors.Is(err, wire.ErrNotFound) {
		t.Errorf("Find on empty store: want ErrNotFound, got %v", err)
	}
}

func TestRegisterIsIdempotentPerAddress(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		if err := s.Register(1, "Once", addr("a", 4000)); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := s.Register(1, "Once", addr("b", 4001)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	holders, err := s.Find(1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := []wire.PeerAddress{addr("a", 4000), addr("b", 4001)}
	if len(holders) != len(want) {
		t.Fatalf("Find(1) = %v, want %v", holders, want)
	}
	for i := range want {
		if holders[i] != want[i] {
			t.Errorf("holder[%d] = %v, want %v (registration order)", i, holders[i], want[i])
		}
	}
}

func TestTitleIsFirstWriteWins(t *testing.T) {
	s := NewStore()
	if err := s.Register(8, "Original Title", addr("a", 4000)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(8, "Conflicting Title", addr("b", 4001)); err != nil {
		t.Fatalf("Register with conflicting title should still add the holder: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Title != "Original Title" {
		t.Errorf("Snapshot = %v, want one entry with the original title", snap)
	}

	holders, _ := s.Find(8)
	if len(holders) != 2 {
		t.Errorf("conflicting-title ADD must still register the holder, got %v", holders)
	}
}

func TestRegisterRejectsMalformedInput(t *testing.T) {
	s := NewStore()
	tests := []struct {
		name  string
		id    int
		title string
		addr  wire.PeerAddress
	}{
		{"zero id", 0, "T", addr("a", 1)},
		{"negative id", -4, "T", addr("a", 1)},
		{"empty host", 1, "T", addr("", 1)},
		{"zero port", 1, "T", addr("a", 0)},
		{"empty title", 1, "", addr("a", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Register(tt.id, tt.title, tt.addr); !errors.Is(err, wire.ErrBadRequest) {
				t.Errorf("Register(%d, %q, %v): want ErrBadRequest, got %v", tt.id, tt.title, tt.addr, err)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("rejected registrations must not create records, store has %d", s.Len())
	}
}

func TestSnapshotSortedAscending(t *testing.T) {
	s := NewStore()
	for _, id := range []int{30, 4, 100, 7, 55} {
		if err := s.Register(id, fmt.Sprintf("Doc %d", id), addr("a", 4000)); err != nil {
			t.Fatalf("Register(%d): %v", id, err)
		}
	}

	snap := s.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("Snapshot has %d entries, want 5", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].ID >= snap[i].ID {
			t.Fatalf("Snapshot not ascending: %v", snap)
		}
	}
}

func TestConcurrentDistinctIds(t *testing.T) {
	s := NewStore()
	const n = 64

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := s.Register(id, fmt.Sprintf("Doc %d", id), addr("peer", 4000+id)); err != nil {
				t.Errorf("Register(%d): %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	if len(snap) != n {
		t.Fatalf("lost updates: snapshot has %d entries, want %d", len(snap), n)
	}
	for i, e := range snap {
		if e.ID != i+1 {
			t.Fatalf("snapshot[%d].ID = %d, want %d", i, e.ID, i+1)
		}
	}
}

func TestConcurrentSameId(t *testing.T) {
	s := NewStore()
	const m = 32

	var wg sync.WaitGroup
	for i := 1; i <= m; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			if err := s.Register(1, "Contended", addr("peer", port)); err != nil {
				t.Errorf("Register: %v", err)
			}
		}(4000 + i)
	}
	wg.Wait()

	holders, err := s.Find(1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(holders) != m {
		t.Fatalf("holder set has %d entries, want %d", len(holders), m)
	}
	seen := make(map[wire.PeerAddress]bool, m)
	for _, h := range holders {
		if seen[h] {
			t.Fatalf("duplicate holder %v", h)
		}
		seen[h] = true
	}
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	s := NewStore()
	const n = 16

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			s.Register(id, fmt.Sprintf("Doc %d", id), addr("w", 5000+id))
			s.Register(id, fmt.Sprintf("Doc %d", id), addr("x", 6000+id))
		}(i)
		go func(id int) {
			defer wg.Done()
			// Readers must never observe a torn record: a found record
			// always has a holder and the snapshot is always sorted.
			if holders, err := s.Find(id); err == nil && len(holders) == 0 {
				t.Errorf("Find(%d) returned an empty holder set", id)
			}
			snap := s.Snapshot()
			for j := 1; j < len(snap); j++ {
				if snap[j-1].ID >= snap[j].ID {
					t.Errorf("torn snapshot: %v", snap)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
