package peer

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/p2p_rfc/src/library"
	"github.com/danmuck/p2p_rfc/src/wire"
)

const listenerReadTimeout = 30 * time.Second

// Listener is the data-plane half of a peer: it accepts direct GET
// connections from other peers and streams local document bytes back.
// It runs independently of the peer's interactive role and shares only
// the library with it.
type Listener struct {
	lib    *library.Library
	addr   string
	tokens map[string]struct{}
	ln     net.Listener
}

func NewListener(addr string, lib *library.Library, tokens []string) *Listener {
	if len(tokens) == 0 {
		tokens = []string{wire.DefaultToken}
	}
	accepted := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		accepted[t] = struct{}{}
	}
	return &Listener{lib: lib, addr: addr, tokens: accepted}
}

// Listen binds the listener's address. The peer advertises the bound
// port, so binding ":0" and reading Port back is the usual flow.
func (l *Listener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln
	logs.Infof("transfer listener on %s", ln.Addr())
	return nil
}

// Port reports the bound port. Valid only after Listen.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Addr reports the bound address. Valid only after Listen.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Close stops the accept loop.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts inbound GET connections until the listener is closed.
func (l *Listener) Serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logs.Warnf("transfer accept error: %v", err)
			continue
		}
		go l.handleConn(conn)
	}
}

// handleConn answers one GET: the reply is either an "OK" line followed
// by the raw document bytes and a close, or a single error line.
func (l *Listener) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	conn.SetReadDeadline(time.Now().Add(listenerReadTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		logs.Debugf("transfer(%s): closed before request: %v", remote, err)
		return
	}

	req, err := wire.ParseRequest(line)
	if err != nil {
		logs.Warnf("transfer(%s): %v", remote, err)
		wire.WriteError(conn, wire.ReasonBadRequest)
		return
	}

	get, ok := req.(wire.GetRequest)
	if !ok {
		wire.WriteError(conn, wire.ReasonBadRequest)
		return
	}
	if _, ok := l.tokens[get.Token]; !ok {
		wire.WriteError(conn, wire.ReasonBadToken)
		return
	}

	// The directory may still list us as a holder for a file deleted
	// out from under the library; that is a plain NOT_FOUND here.
	doc, err := l.lib.Open(get.ID)
	if err != nil {
		logs.Warnf("transfer(%s): document %d unavailable: %v", remote, get.ID, err)
		wire.WriteError(conn, wire.ReasonNotFound)
		return
	}
	defer doc.Close()

	if err := wire.WriteOK(conn); err != nil {
		return
	}
	n, err := io.Copy(conn, doc)
	if err != nil {
		logs.Warnf("transfer(%s): streaming document %d failed after %d bytes: %v", remote, get.ID, n, err)
		return
	}
	logs.Debugf("transfer(%s): served document %d (%d bytes)", remote, get.ID, n)
}
