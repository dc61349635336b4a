package wire

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultToken is the protocol dialect tag accepted when no explicit
// token set is configured. Every request carries a token and receivers
// validate it before touching any state.
const DefaultToken = "P2P-CI/1.0"

// Reply reason strings used after "ERROR ".
const (
	ReasonNotFound   = "NOT_FOUND"
	ReasonBadRequest = "BAD_REQUEST"
	ReasonBadToken   = "UNSUPPORTED_TOKEN"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrBadToken   = errors.New("unsupported protocol token")
	ErrNotFound   = errors.New("not found")
)

// PeerAddress identifies where a peer's transfer listener can be reached.
// It is advertised by the peer itself, never derived from the source
// address of a control connection.
type PeerAddress struct {
	Host string
	Port int
}

func (a PeerAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Entry is one (id, title) pair of a directory listing.
type Entry struct {
	ID    int
	Title string
}

// Request is the strict tagged decoding of one request line. Exactly one
// of AddRequest, LookupRequest, ListRequest, GetRequest implements it.
type Request interface {
	// Encode renders the request line without its trailing newline.
	Encode() string

	token() string
}

type AddRequest struct {
	ID    int
	Addr  PeerAddress
	Token string
	Title string
}

type LookupRequest struct {
	ID    int
	Token string
}

type ListRequest struct {
	Token string
}

type GetRequest struct {
	ID    int
	Token string
}

func (r AddRequest) token() string    { return r.Token }
func (r LookupRequest) token() string { return r.Token }
func (r ListRequest) token() string   { return r.Token }
func (r GetRequest) token() string    { return r.Token }

func (r AddRequest) Encode() string {
	return fmt.Sprintf("ADD %d %s %d %s %s", r.ID, r.Addr.Host, r.Addr.Port, r.Token, r.Title)
}

func (r LookupRequest) Encode() string {
	return fmt.Sprintf("LOOKUP %d %s", r.ID, r.Token)
}

func (r ListRequest) Encode() string {
	return fmt.Sprintf("LIST %s", r.Token)
}

func (r GetRequest) Encode() string {
	return fmt.Sprintf("GET %d %s", r.ID, r.Token)
}

// TokenOf exposes the protocol token a request carries so a receiver can
// validate it against its accepted set.
func TokenOf(r Request) string { return r.token() }

// ParseRequest decodes one request line into its tagged form. Anything
// not matching a known shape is rejected outright; there is no partial
// interpretation of malformed lines.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrBadRequest)
	}

	switch fields[0] {
	case "ADD":
		return parseAdd(line)

	case "LOOKUP":
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: LOOKUP wants <id> <token>", ErrBadRequest)
		}
		id, err := parseID(fields[1])
		if err != nil {
			return nil, err
		}
		return LookupRequest{ID: id, Token: fields[2]}, nil

	case "LIST":
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: LIST wants <token>", ErrBadRequest)
		}
		return ListRequest{Token: fields[1]}, nil

	case "GET":
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: GET wants <id> <token>", ErrBadRequest)
		}
		id, err := parseID(fields[1])
		if err != nil {
			return nil, err
		}
		return GetRequest{ID: id, Token: fields[2]}, nil
	}

	return nil, fmt.Errorf("%w: unknown method %q", ErrBadRequest, fields[0])
}

// parseAdd splits by hand so the trailing title keeps its spacing.
func parseAdd(line string) (Request, error) {
	parts := strings.SplitN(line, " ", 6)
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: ADD wants <id> <host> <port> <token> <title>", ErrBadRequest)
	}

	id, err := parseID(parts[1])
	if err != nil {
		return nil, err
	}
	host := parts[2]
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrBadRequest)
	}
	port, err := parsePort(parts[3])
	if err != nil {
		return nil, err
	}
	token := parts[4]
	title := strings.TrimSpace(parts[5])
	if title == "" {
		return nil, fmt.Errorf("%w: empty title", ErrBadRequest)
	}

	return AddRequest{
		ID:    id,
		Addr:  PeerAddress{Host: host, Port: port},
		Token: token,
		Title: title,
	}, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid document id %q", ErrBadRequest, s)
	}
	return id, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrBadRequest, s)
	}
	return port, nil
}

// FormatHolder renders a holder line of a LOOKUP reply.
func FormatHolder(a PeerAddress) string {
	return fmt.Sprintf("%s %d", a.Host, a.Port)
}

// ParseHolder decodes one "<host> <port>" line of a LOOKUP reply.
func ParseHolder(line string) (PeerAddress, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return PeerAddress{}, fmt.Errorf("%w: holder line %q", ErrBadRequest, line)
	}
	port, err := parsePort(fields[1])
	if err != nil {
		return PeerAddress{}, err
	}
	return PeerAddress{Host: fields[0], Port: port}, nil
}

// FormatEntry renders an "<id> <title>" line of a LIST reply.
func FormatEntry(e Entry) string {
	return fmt.Sprintf("%d %s", e.ID, e.Title)
}

// ParseEntry decodes one "<id> <title>" line of a LIST reply.
func ParseEntry(line string) (Entry, error) {
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return Entry{}, fmt.Errorf("%w: listing line %q", ErrBadRequest, line)
	}
	id, err := parseID(parts[0])
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: id, Title: parts[1]}, nil
}
