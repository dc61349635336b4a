package library

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/p2p_rfc/src/wire"
)

// Library is a peer's local document store: a directory of rfc<id>.txt
// files. The interactive role writes to it (authored files, completed
// downloads) and the transfer listener reads from it; a document is
// immutable once published, so readers never see a torn file.
type Library struct {
	dir string
}

var ErrExists = errors.New("document already stored")

// Init opens a library rooted at dir, creating the directory if needed.
func Init(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}
	return &Library{dir: dir}, nil
}

// Dir reports the library's root directory.
func (l *Library) Dir() string { return l.dir }

// Path returns the on-disk location for a document id.
func (l *Library) Path(id int) string {
	return filepath.Join(l.dir, fmt.Sprintf("rfc%d.txt", id))
}

// Has reports whether a document is stored locally.
func (l *Library) Has(id int) bool {
	_, err := os.Stat(l.Path(id))
	return err == nil
}

// Open returns a streaming reader over a stored document. A missing id
// maps to wire.ErrNotFound so the listener can answer a GET for a file
// the peer no longer has with a distinct NOT_FOUND reply.
func (l *Library) Open(id int) (io.ReadCloser, error) {
	f, err := os.Open(l.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %d: %w", id, wire.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Read returns the full content of a stored document.
func (l *Library) Read(id int) ([]byte, error) {
	data, err := os.ReadFile(l.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %d: %w", id, wire.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Title extracts the document's title from its first line.
func (l *Library) Title(id int) (string, error) {
	f, err := l.Open(id)
	if err != nil {
		return "", err
	}
	defer f.Close()

	first, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && first == "" && err != io.EOF {
		return "", err
	}
	return TitleFromFirstLine(first, id), nil
}

// TitleFromFirstLine applies the first-line title convention:
// "RFC <n> - <title>" and "<anything> - <title>" yield the part after
// the dash, "RFC <n> <title>" yields the trailing words, any other
// non-empty line stands as the title itself. An empty line, or a dash
// with nothing after it, falls back to "RFC <id>".
func TitleFromFirstLine(line string, id int) string {
	line = strings.TrimSpace(line)

	if _, after, ok := strings.Cut(line, "-"); ok {
		if title := strings.TrimSpace(after); title != "" {
			return title
		}
		return fmt.Sprintf("RFC %d", id)
	}

	fields := strings.Fields(line)
	if len(fields) >= 3 && strings.EqualFold(fields[0], "RFC") {
		return strings.Join(fields[2:], " ")
	}
	if line != "" {
		return line
	}
	return fmt.Sprintf("RFC %d", id)
}

// Store publishes a new document from r. The bytes land in a temp file
// first and only an os.Rename makes them visible under the document's
// real name, so a broken transfer never leaves a partial document behind.
// An id that is already stored is refused: published documents are
// immutable while inbound GETs may be streaming them.
func (l *Library) Store(id int, r io.Reader) (err error) {
	if id < 1 {
		return fmt.Errorf("%w: document id %d", wire.ErrBadRequest, id)
	}
	if l.Has(id) {
		return fmt.Errorf("document %d: %w", id, ErrExists)
	}

	tmp, err := os.CreateTemp(l.dir, fmt.Sprintf(".rfc%d-*.tmp", id))
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to receive document %d: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	if err := os.Rename(tmpPath, l.Path(id)); err != nil {
		return fmt.Errorf("failed to publish document %d: %w", id, err)
	}
	cleanupTmp = false
	return nil
}

// Ids lists the locally stored document ids in ascending order.
func (l *Library) Ids() ([]int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read library directory: %w", err)
	}

	var ids []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "rfc") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "rfc"), ".txt"))
		if err != nil || id < 1 {
			continue
		}
		ids = append(ids, id)
	}

	sort.Ints(ids)
	return ids, nil
}
