// Package storeforward implements the DTN-style store-and-forward
// transport profile (SPEC_FULL.md §4.9/§4.11): envelopes are durably
// spooled before delivery is attempted, and undelivered ones replay
// in key order on reconnect. Keyed by (source_node, topic,
// sequence_number) so range iteration naturally yields per-stream
// send order. Grounded on syncthing's files/leveldb.go for the
// key-ordered snapshot-iterator pattern over
// github.com/syndtr/goleveldb.
package storeforward

import (
	"bytes"
	"context"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/aria-robotics/telemetry/envelope"
)

// key builds the lexicographic spool key for e: source_node, topic
// and sequence number (fixed-width big-endian so numeric order matches
// byte order), each null-separated so iteration can range over one
// source/topic pair.
func key(e envelope.Envelope) []byte {
	var buf bytes.Buffer
	buf.WriteString(e.Metadata.SourceNode)
	buf.WriteByte(0)
	buf.WriteString(e.Topic)
	buf.WriteByte(0)
	var seq [8]byte
	for i := 7; i >= 0; i-- {
		seq[i] = byte(e.Metadata.SequenceNumber)
		e.Metadata.SequenceNumber >>= 8
	}
	buf.Write(seq[:])
	return buf.Bytes()
}

// streamPrefix returns the key range covering every sequence number
// for one (sourceNode, topic) stream.
func streamPrefix(sourceNode, topic string) []byte {
	var buf bytes.Buffer
	buf.WriteString(sourceNode)
	buf.WriteByte(0)
	buf.WriteString(topic)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Transport implements transport.Transport over a durable leveldb
// spool. Send writes through to the store, then attempts immediate
// delivery via deliverFn if connected; Connect replays every
// undelivered key in sequence order.
type Transport struct {
	db *leveldb.DB

	mu        sync.Mutex
	connected bool
	endpoint  string

	hub    chan envelope.Envelope
	cancel chan struct{}

	// deliverFn is how a connected peer is actually reached; nil means
	// "no online peer", which is the expected steady state for a
	// disconnected DTN node.
	deliverFn func(envelope.Envelope) error
}

// Open opens (or creates) the leveldb spool at path.
func Open(path string) (*Transport, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Transport{
		db:     db,
		hub:    make(chan envelope.Envelope, 256),
		cancel: make(chan struct{}),
	}, nil
}

// Connect marks the transport connected to endpoint and replays every
// spooled envelope in key order (oldest first, per stream).
func (t *Transport) Connect(ctx context.Context, endpoint string) error {
	t.mu.Lock()
	t.connected = true
	t.endpoint = endpoint
	t.mu.Unlock()
	return t.replay(ctx)
}

func (t *Transport) replay(ctx context.Context) error {
	iter := t.db.NewIterator(&util.Range{}, nil)
	defer iter.Release()

	var toDeliver [][]byte
	for iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		toDeliver = append(toDeliver, k)
	}
	if err := iter.Error(); err != nil {
		return err
	}

	for _, k := range toDeliver {
		v, err := t.db.Get(k, nil)
		if err == leveldb.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		e, err := envelope.Unmarshal(v)
		if err != nil {
			continue
		}
		if t.tryDeliver(e) {
			_ = t.db.Delete(k, nil)
		}
	}
	return nil
}

func (t *Transport) tryDeliver(e envelope.Envelope) bool {
	t.mu.Lock()
	fn := t.deliverFn
	connected := t.connected
	t.mu.Unlock()
	if !connected || fn == nil {
		return false
	}
	return fn(e) == nil
}

// SetDeliverFn registers the function used to actually push an
// envelope to the connected peer (e.g. wrapping another transport
// profile's Send). Replacing it mid-flight is safe.
func (t *Transport) SetDeliverFn(fn func(envelope.Envelope) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deliverFn = fn
}

// Send writes e to the durable spool, then attempts delivery
// immediately if connected; the spool entry is only removed once
// delivery actually succeeds.
func (t *Transport) Send(ctx context.Context, e envelope.Envelope) error {
	k := key(e)
	if err := t.db.Put(k, envelope.Marshal(e), nil); err != nil {
		return err
	}
	if t.tryDeliver(e) {
		_ = t.db.Delete(k, nil)
	}
	return nil
}

// Pending returns every envelope still queued for (sourceNode, topic),
// in sequence order.
func (t *Transport) Pending(sourceNode, topic string) ([]envelope.Envelope, error) {
	prefix := streamPrefix(sourceNode, topic)
	iter := t.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []envelope.Envelope
	for iter.Next() {
		e, err := envelope.Unmarshal(iter.Value())
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// Disconnect marks the transport offline; spooled envelopes are kept
// for the next Connect's replay.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

// OnReceive registers fn as the consumer of envelopes delivered to
// this node (arrival is driven by whatever calls DeliverIncoming, not
// by this transport's own read loop, since a DTN spool is not itself
// a network listener).
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

// DeliverIncoming hands e to the registered OnReceive consumer, for
// callers bridging another transport's arrivals into this spool's
// hub.
func (t *Transport) DeliverIncoming(e envelope.Envelope) {
	select {
	case t.hub <- e:
	default:
	}
}

// Close releases the underlying leveldb handle.
func (t *Transport) Close() error {
	return t.db.Close()
}
