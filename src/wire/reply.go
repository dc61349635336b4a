package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Status is the decoded first line of a reply.
type Status struct {
	OK     bool
	Count  int    // trailing count on "OK <count>", zero otherwise
	Reason string // reason on "ERROR <reason>", empty otherwise
}

// WriteOK writes a bare success status line.
func WriteOK(w io.Writer) error {
	_, err := io.WriteString(w, "OK\n")
	return err
}

// WriteOKLines writes "OK <count>" followed by the given body lines.
func WriteOKLines(w io.Writer, lines []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "OK %d\n", len(lines))
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteError writes an error status line with the given reason.
func WriteError(w io.Writer, reason string) error {
	_, err := fmt.Fprintf(w, "ERROR %s\n", reason)
	return err
}

// ReadStatus reads and decodes a reply's status line. The reader is left
// positioned at the first body line (or the raw byte stream, for GET).
func ReadStatus(r *bufio.Reader) (Status, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return Status{}, fmt.Errorf("reading status line: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")

	switch {
	case line == "OK":
		return Status{OK: true}, nil

	case strings.HasPrefix(line, "OK "):
		count, err := strconv.Atoi(strings.TrimPrefix(line, "OK "))
		if err != nil || count < 0 {
			return Status{}, fmt.Errorf("%w: bad count in %q", ErrBadRequest, line)
		}
		return Status{OK: true, Count: count}, nil

	case strings.HasPrefix(line, "ERROR "):
		return Status{Reason: strings.TrimPrefix(line, "ERROR ")}, nil
	}

	return Status{}, fmt.Errorf("%w: status line %q", ErrBadRequest, line)
}

// ReasonError maps a reply reason back onto the error taxonomy so
// callers can branch on sentinel errors rather than reply text.
func ReasonError(reason string) error {
	switch {
	case reason == ReasonNotFound:
		return ErrNotFound
	case strings.HasPrefix(reason, ReasonBadToken):
		return fmt.Errorf("%w: %s", ErrBadToken, reason)
	default:
		return fmt.Errorf("%w: %s", ErrBadRequest, reason)
	}
}
