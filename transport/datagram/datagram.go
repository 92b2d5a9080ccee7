// Package datagram implements the connection-oriented datagram
// transport profile (SPEC_FULL.md §4.9/§4.11): a net.PacketConn
// wrapped in an xtaci/smux.Session, with one stream opened per
// envelope.Priority so priority traffic is independently flow
// controlled. Adapted from teacher's conn.go, listener.go and
// safeudp.go; batchconn.go and tx.go are not ported.
package datagram

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/smux"

	"github.com/aria-robotics/telemetry/envelope"
	"github.com/aria-robotics/telemetry/timer"
)

const numPriorities = int(envelope.P3) + 1

// Config holds the tunables teacher's safeudp.Config exposed,
// narrowed to what this profile actually uses (FEC/crypto are
// upstream pipeline stages here, not this transport's job).
type Config struct {
	SendBuffer int
	RecvBuffer int

	// ReconnectBackoffMin/Max bound the exponential backoff applied
	// between reconnect attempts (§7).
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
}

// DefaultConfig mirrors the reference reconnect backoff bounds.
var DefaultConfig = Config{
	ReconnectBackoffMin: 500 * time.Millisecond,
	ReconnectBackoffMax: 60 * time.Second,
}

// conn wraps one priority's smux.Stream plus the parent session, the
// same shape as teacher's Conn.
type conn struct {
	stream *smux.Stream
	sess   *smux.Session
}

func (c *conn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *conn) Write(b []byte) (int, error) { return c.stream.Write(b) }
func (c *conn) Close() error                { return c.stream.Close() }

func (c *conn) LocalAddr() net.Addr  { return c.sess.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.sess.RemoteAddr() }

func (c *conn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *conn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }

// listener accepts sessions and opens the per-priority stream set for
// each, the server-side counterpart to dial.
type listener struct {
	ln  net.Listener
	cfg *Config
}

func (l *listener) accept() (*smux.Session, [numPriorities]*smux.Stream, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, [numPriorities]*smux.Stream{}, err
	}
	sess, err := smux.Server(raw, nil)
	if err != nil {
		return nil, [numPriorities]*smux.Stream{}, err
	}
	var streams [numPriorities]*smux.Stream
	for i := 0; i < numPriorities; i++ {
		s, err := sess.AcceptStream()
		if err != nil {
			return nil, [numPriorities]*smux.Stream{}, err
		}
		streams[i] = s
	}
	return sess, streams, nil
}

func (l *listener) Close() error    { return l.ln.Close() }
func (l *listener) Addr() net.Addr  { return l.ln.Addr() }

func dial(addr string) (*smux.Session, [numPriorities]*smux.Stream, error) {
	raw, err := net.Dial("udp", addr)
	if err != nil {
		return nil, [numPriorities]*smux.Stream{}, err
	}
	sess, err := smux.Client(raw, nil)
	if err != nil {
		return nil, [numPriorities]*smux.Stream{}, err
	}
	var streams [numPriorities]*smux.Stream
	for i := 0; i < numPriorities; i++ {
		s, err := sess.OpenStream()
		if err != nil {
			return nil, [numPriorities]*smux.Stream{}, err
		}
		streams[i] = s
	}
	return sess, streams, nil
}

func listenOn(addr string, cfg *Config) (*listener, error) {
	ln, err := net.Listen("udp", addr)
	if err != nil {
		return nil, err
	}
	return &listener{ln: ln, cfg: cfg}, nil
}

// writeFramed length-prefixes and writes one envelope frame to the
// given priority stream. Framing matches §6's length-prefix
// convention so a stream read loop can resynchronize after a short
// read.
func writeFramed(w io.Writer, e envelope.Envelope) error {
	body := envelope.Marshal(e)
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.WithStack(err)
	}
	if _, err := w.Write(body); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func readFramed(r io.Reader) (envelope.Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return envelope.Envelope{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.Unmarshal(body)
}

// Transport implements transport.Transport over the datagram profile.
type Transport struct {
	cfg Config

	mu       sync.Mutex
	sess     *smux.Session
	streams  [numPriorities]*smux.Stream
	endpoint string
	ln       *listener

	hub       chan envelope.Envelope
	cancel    chan struct{}
	closeOnce sync.Once

	reconnectTimer *timer.Timer
}

// New returns a Transport configured with cfg.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:    cfg,
		hub:    make(chan envelope.Envelope, 256),
		cancel: make(chan struct{}),
	}
}

// Connect dials endpoint and opens the per-priority stream set,
// starting one read loop goroutine per stream.
func (t *Transport) Connect(ctx context.Context, endpoint string) error {
	sess, streams, err := dial(endpoint)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.sess = sess
	t.streams = streams
	t.endpoint = endpoint
	t.mu.Unlock()

	for i := range streams {
		go t.readLoop(streams[i])
	}
	return nil
}

// Listen starts accepting inbound sessions on addr, treating the
// first accepted session as this Transport's active peer (the
// reference deployment is one robot per link).
func (t *Transport) Listen(addr string) error {
	ln, err := listenOn(addr, &t.cfg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.ln = ln
	t.mu.Unlock()

	sess, streams, err := ln.accept()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.sess = sess
	t.streams = streams
	t.mu.Unlock()

	for i := range streams {
		go t.readLoop(streams[i])
	}
	return nil
}

// ReconnectWithBackoff schedules repeated Connect attempts to
// t.endpoint using exponential backoff bounded by
// cfg.ReconnectBackoffMin/Max (§7), stopping once a Connect call
// succeeds or stop is closed.
func (t *Transport) ReconnectWithBackoff(ctx context.Context, stop <-chan struct{}) {
	if t.reconnectTimer == nil {
		t.reconnectTimer = timer.New(1)
	}
	delay := t.cfg.ReconnectBackoffMin
	if delay <= 0 {
		delay = DefaultConfig.ReconnectBackoffMin
	}
	maxDelay := t.cfg.ReconnectBackoffMax
	if maxDelay <= 0 {
		maxDelay = DefaultConfig.ReconnectBackoffMax
	}

	var attempt func()
	attempt = func() {
		select {
		case <-stop:
			return
		default:
		}
		t.mu.Lock()
		endpoint := t.endpoint
		t.mu.Unlock()
		if err := t.Connect(ctx, endpoint); err == nil {
			return
		}
		next := delay * 2
		if next > maxDelay {
			next = maxDelay
		}
		delay = next
		t.reconnectTimer.Put(attempt, time.Now().Add(delay))
	}
	t.reconnectTimer.Put(attempt, time.Now().Add(delay))
}

func (t *Transport) readLoop(s *smux.Stream) {
	for {
		e, err := readFramed(s)
		if err != nil {
			return
		}
		select {
		case t.hub <- e:
		case <-t.cancel:
			return
		default:
			// hub full: drop rather than stall the read loop
		}
	}
}

// Send writes e to the stream for its priority.
func (t *Transport) Send(ctx context.Context, e envelope.Envelope) error {
	t.mu.Lock()
	streams := t.streams
	t.mu.Unlock()
	s := streams[e.Priority]
	if s == nil {
		return errors.New("datagram: not connected")
	}
	return writeFramed(s, e)
}

// Disconnect closes every stream and the underlying session.
func (t *Transport) Disconnect() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.cancel)
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, s := range t.streams {
			if s != nil {
				_ = s.Close()
			}
		}
		if t.sess != nil {
			err = t.sess.Close()
		}
		if t.ln != nil {
			_ = t.ln.Close()
		}
	})
	return err
}

// OnReceive registers fn as the consumer of arriving envelopes,
// running in its own goroutine off the internal channel.
func (t *Transport) OnReceive(fn func(envelope.Envelope)) {
	go func() {
		for {
			select {
			case e := <-t.hub:
				fn(e)
			case <-t.cancel:
				return
			}
		}
	}()
}
