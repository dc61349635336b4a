package directory

import (
	"bufio"
	"errors"
	"net"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/p2p_rfc/src/wire"
)

const defaultReadTimeout = 30 * time.Second

// ServerConfig controls the index server's listening behavior.
type ServerConfig struct {
	Addr        string        // TCP listen address, e.g. ":7734"
	Tokens      []string      // accepted protocol tokens; DefaultToken when empty
	ReadTimeout time.Duration // bound on waiting for a request line
}

// Server terminates control-plane connections and applies decoded
// requests to the directory store. One goroutine per connection; a fault
// on one connection yields an error reply there and nothing else.
type Server struct {
	store  *Store
	cfg    ServerConfig
	tokens map[string]struct{}
	ln     net.Listener
}

func NewServer(cfg ServerConfig, store *Store) *Server {
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = []string{wire.DefaultToken}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	tokens := make(map[string]struct{}, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens[t] = struct{}{}
	}
	return &Server{store: store, cfg: cfg, tokens: tokens}
}

// Listen binds the configured address without accepting yet, so callers
// can learn the bound address before traffic starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	logs.Infof("index server listening on %s", ln.Addr())
	return nil
}

// Addr reports the bound listen address. Valid only after Listen.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the accept loop by closing the listener.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logs.Warnf("accept error: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn serves exactly one request: decode, validate token, apply,
// reply, close.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		logs.Debugf("handleConn(%s): closed before request: %v", remote, err)
		return
	}

	req, err := wire.ParseRequest(line)
	if err != nil {
		logs.Warnf("handleConn(%s): %v", remote, err)
		wire.WriteError(conn, wire.ReasonBadRequest)
		return
	}
	logs.Debugf("handleConn(%s): %s", remote, req.Encode())

	if _, ok := s.tokens[wire.TokenOf(req)]; !ok {
		wire.WriteError(conn, wire.ReasonBadToken)
		return
	}

	switch r := req.(type) {
	case wire.AddRequest:
		s.handleAdd(conn, r)
	case wire.LookupRequest:
		s.handleLookup(conn, r)
	case wire.ListRequest:
		s.handleList(conn)
	default:
		// GET belongs to the data plane, not this server
		wire.WriteError(conn, wire.ReasonBadRequest)
	}
}

func (s *Server) handleAdd(conn net.Conn, r wire.AddRequest) {
	if err := s.store.Register(r.ID, r.Title, r.Addr); err != nil {
		logs.Warnf("register %d from %s rejected: %v", r.ID, r.Addr, err)
		wire.WriteError(conn, wire.ReasonBadRequest)
		return
	}
	logs.Infof("registered document %d (%s) at %s", r.ID, r.Title, r.Addr)
	wire.WriteOK(conn)
}

func (s *Server) handleLookup(conn net.Conn, r wire.LookupRequest) {
	holders, err := s.store.Find(r.ID)
	if err != nil {
		wire.WriteError(conn, wire.ReasonNotFound)
		return
	}

	lines := make([]string, len(holders))
	for i, h := range holders {
		lines[i] = wire.FormatHolder(h)
	}
	wire.WriteOKLines(conn, lines)
}

func (s *Server) handleList(conn net.Conn) {
	entries := s.store.Snapshot()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = wire.FormatEntry(e)
	}
	wire.WriteOKLines(conn, lines)
}
