package library

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/p2p_rfc/src/wire"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return lib
}

func writeDoc(t *testing.T, lib *Library, id int, content string) {
	t.Helper()
	if err := os.WriteFile(lib.Path(id), []byte(content), 0644); err != nil {
		t.Fatalf("writing document %d: %v", id, err)
	}
}

func TestStoreAndReadRoundTrip(t *testing.T) {
	lib := newTestLibrary(t)
	content := []byte("RFC 100 - Test RFC\n\nBody of the document.\n")

	if err := lib.Store(100, bytes.NewReader(content)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := lib.Read(100)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("stored document differs from source: got %q", got)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	lib := newTestLibrary(t)
	if _, err := lib.Read(1); !errors.Is(err, wire.ErrNotFound) {
		t.Errorf("Read of missing document: want ErrNotFound, got %v", err)
	}
	if _, err := lib.Open(1); !errors.Is(err, wire.ErrNotFound) {
		t.Errorf("Open of missing document: want ErrNotFound, got %v", err)
	}
}

func TestStoreRefusesOverwrite(t *testing.T) {
	lib := newTestLibrary(t)
	writeDoc(t, lib, 5, "RFC 5 - Original\n")

	err := lib.Store(5, strings.NewReader("RFC 5 - Impostor\n"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Store over existing document: want ErrExists, got %v", err)
	}

	got, _ := lib.Read(5)
	if string(got) != "RFC 5 - Original\n" {
		t.Errorf("published document was mutated: %q", got)
	}
}

// failingReader errors after yielding a prefix, like a connection reset
// mid-transfer.
type failingReader struct {
	prefix io.Reader
}

func (r *failingReader) Read(p []byte) (int, error) {
	n, err := r.prefix.Read(p)
	if err == io.EOF {
		return n, errors.New("connection reset by peer")
	}
	return n, err
}

func TestStorePartialReceiptIsInvisible(t *testing.T) {
	lib := newTestLibrary(t)

	err := lib.Store(9, &failingReader{prefix: strings.NewReader("RFC 9 - Truncat")})
	if err == nil {
		t.Fatal("Store should fail when the stream breaks")
	}

	if lib.Has(9) {
		t.Error("partial data published as a complete document")
	}

	// no staging litter either
	entries, readErr := os.ReadDir(lib.Dir())
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	for _, e := range entries {
		t.Errorf("unexpected file left in library: %s", e.Name())
	}
}

func TestTitleExtraction(t *testing.T) {
	tests := []struct {
		name  string
		first string
		want  string
	}{
		{"dash convention", "RFC 100 - Test RFC", "Test RFC"},
		{"plain dash", "Internet Protocol - DARPA Program", "DARPA Program"},
		{"rfc prefix without dash", "RFC 791 Internet Protocol", "Internet Protocol"},
		{"bare line", "A Standard for Transmission", "A Standard for Transmission"},
		{"empty first line", "", "RFC 77"},
		{"dash with empty tail", "RFC 77 -", "RFC 77"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromFirstLine(tt.first, 77); got != tt.want {
				t.Errorf("TitleFromFirstLine(%q) = %q, want %q", tt.first, got, tt.want)
			}
		})
	}
}

func TestTitleReadsOnlyFirstLine(t *testing.T) {
	lib := newTestLibrary(t)
	writeDoc(t, lib, 3, "RFC 3 - Short Title\nSecond line is not a title\n")

	title, err := lib.Title(3)
	if err != nil {
		t.Fatalf("Title failed: %v", err)
	}
	if title != "Short Title" {
		t.Errorf("Title = %q, want %q", title, "Short Title")
	}
}

func TestIdsSortedAndFiltered(t *testing.T) {
	lib := newTestLibrary(t)
	writeDoc(t, lib, 20, "RFC 20\n")
	writeDoc(t, lib, 3, "RFC 3\n")
	writeDoc(t, lib, 101, "RFC 101\n")

	// noise that must be ignored
	for _, name := range []string{"notes.md", "rfcX.txt", "rfc0.txt", ".rfc5-123.tmp"} {
		if err := os.WriteFile(filepath.Join(lib.Dir(), name), []byte("x"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	ids, err := lib.Ids()
	if err != nil {
		t.Fatalf("Ids failed: %v", err)
	}
	want := []int{3, 20, 101}
	if len(ids) != len(want) {
		t.Fatalf("Ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Ids = %v, want %v", ids, want)
			break
		}
	}
}
