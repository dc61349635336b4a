package peer

import (
	"bufio"
	"fmt"
	"net"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/p2p_rfc/src/library"
	"github.com/danmuck/p2p_rfc/src/wire"
)

const defaultDialTimeout = 5 * time.Second

// Agent is the control half of a peer: a client of the index server for
// ADD/LOOKUP/LIST and of other peers' transfer listeners for GET. Every
// operation is one connection, one request, one reply; a failed attempt
// is terminal for that invocation and retried only by the caller.
type Agent struct {
	ServerAddr  string
	Self        wire.PeerAddress // advertised transfer-listener identity
	Library     *library.Library
	DialTimeout time.Duration
}

func NewAgent(serverAddr string, self wire.PeerAddress, lib *library.Library) *Agent {
	return &Agent{
		ServerAddr:  serverAddr,
		Self:        self,
		Library:     lib,
		DialTimeout: defaultDialTimeout,
	}
}

// Add registers the local copy of a document with the index server. The
// title comes from the document's first line.
func (a *Agent) Add(id int, token string) error {
	title, err := a.Library.Title(id)
	if err != nil {
		return err
	}

	conn, _, status, err := a.request(a.ServerAddr, wire.AddRequest{
		ID:    id,
		Addr:  a.Self,
		Token: token,
		Title: title,
	})
	if err != nil {
		return err
	}
	conn.Close()
	if !status.OK {
		return fmt.Errorf("ADD %d: %w", id, wire.ReasonError(status.Reason))
	}
	return nil
}

// Lookup asks the index server for the holders of a document.
func (a *Agent) Lookup(id int, token string) ([]wire.PeerAddress, error) {
	conn, r, status, err := a.request(a.ServerAddr, wire.LookupRequest{ID: id, Token: token})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if !status.OK {
		return nil, fmt.Errorf("LOOKUP %d: %w", id, wire.ReasonError(status.Reason))
	}

	holders := make([]wire.PeerAddress, 0, status.Count)
	for i := 0; i < status.Count; i++ {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("LOOKUP %d: short reply: %w", id, err)
		}
		h, err := wire.ParseHolder(line)
		if err != nil {
			return nil, fmt.Errorf("LOOKUP %d: %w", id, err)
		}
		holders = append(holders, h)
	}
	return holders, nil
}

// List fetches the full sorted directory listing.
func (a *Agent) List(token string) ([]wire.Entry, error) {
	conn, r, status, err := a.request(a.ServerAddr, wire.ListRequest{Token: token})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if !status.OK {
		return nil, fmt.Errorf("LIST: %w", wire.ReasonError(status.Reason))
	}

	entries := make([]wire.Entry, 0, status.Count)
	for i := 0; i < status.Count; i++ {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("LIST: short reply: %w", err)
		}
		e, err := wire.ParseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("LIST: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Get locates a document via LOOKUP, downloads it from the first holder
// in the server's returned order, and publishes it into the library.
// The holder it fetched from is returned for reporting.
func (a *Agent) Get(id int, token string) (wire.PeerAddress, error) {
	if a.Library.Has(id) {
		return wire.PeerAddress{}, fmt.Errorf("document %d: %w", id, library.ErrExists)
	}

	holders, err := a.Lookup(id, token)
	if err != nil {
		return wire.PeerAddress{}, err
	}
	if len(holders) == 0 {
		return wire.PeerAddress{}, fmt.Errorf("document %d: %w", id, wire.ErrNotFound)
	}
	holder := holders[0]

	if err := a.fetch(holder, id, token); err != nil {
		return holder, err
	}
	logs.Infof("downloaded document %d from %s", id, holder)

	// advertise the fresh copy so other peers can fetch it from us
	if err := a.Add(id, token); err != nil {
		logs.Warnf("downloaded document %d but failed to register as holder: %v", id, err)
	}
	return holder, nil
}

// fetch performs the data-plane GET against one holder and stages the
// byte stream into the library. End-of-stream is the completion signal;
// the library publishes only a fully received document.
func (a *Agent) fetch(holder wire.PeerAddress, id int, token string) error {
	conn, r, status, err := a.request(holder.String(), wire.GetRequest{ID: id, Token: token})
	if err != nil {
		return err
	}
	defer conn.Close()

	if !status.OK {
		return fmt.Errorf("GET %d from %s: %w", id, holder, wire.ReasonError(status.Reason))
	}
	if err := a.Library.Store(id, r); err != nil {
		return err
	}
	return nil
}

// request dials addr, sends one request line, and decodes the status
// line. On success the caller owns the connection and continues reading
// the reply body from r.
func (a *Agent) request(addr string, req wire.Request) (net.Conn, *bufio.Reader, wire.Status, error) {
	timeout := a.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, nil, wire.Status{}, fmt.Errorf("dial %s: %w", addr, err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", req.Encode()); err != nil {
		conn.Close()
		return nil, nil, wire.Status{}, fmt.Errorf("send to %s: %w", addr, err)
	}

	r := bufio.NewReader(conn)
	status, err := wire.ReadStatus(r)
	if err != nil {
		conn.Close()
		return nil, nil, wire.Status{}, fmt.Errorf("reply from %s: %w", addr, err)
	}
	return conn, r, status, nil
}

// RegisterLocal ADDs every document already present in the library.
// Called once at peer startup so pre-existing files become discoverable.
func (a *Agent) RegisterLocal(token string) error {
	ids, err := a.Library.Ids()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := a.Add(id, token); err != nil {
			return fmt.Errorf("registering local document %d: %w", id, err)
		}
		logs.Debugf("registered local document %d", id)
	}
	return nil
}
