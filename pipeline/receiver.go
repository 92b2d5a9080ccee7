package pipeline

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aria-robotics/telemetry/ccem"
	"github.com/aria-robotics/telemetry/codec"
	"github.com/aria-robotics/telemetry/compress"
	"github.com/aria-robotics/telemetry/cryptobox"
	"github.com/aria-robotics/telemetry/delta"
	"github.com/aria-robotics/telemetry/envelope"
	"github.com/aria-robotics/telemetry/fec"
	"github.com/aria-robotics/telemetry/internal/obslog"
	"github.com/aria-robotics/telemetry/metrics"
	"github.com/aria-robotics/telemetry/packetizer"
	"github.com/aria-robotics/telemetry/recovery"
)

// shardSet accumulates one FEC block's shards as they arrive,
// independently and out of order, keyed by ShardIndex.
type shardSet struct {
	k, m, dataLen int
	shards        [][]byte
	present       int
}

// streamKey identifies one ordered (source_node, topic) stream.
func streamKey(sourceNode, topic string) string {
	return sourceNode + "\x00" + topic
}

// blockKey identifies one FEC block within a stream.
func blockKey(sourceNode, topic string, blockID uint32) string {
	return streamKey(sourceNode, topic) + "\x00" + strconv.FormatUint(uint64(blockID), 10)
}

// Receiver drives the full RX chain: Transport delivers wire envelopes
// to Ingest, which runs per-fragment crypto verify+decrypt, then
// packetizer reassembly, then FEC reconstruction. Only once those
// three stage-owned metadata slots have all cleared — i.e. once a
// block's shards have collapsed back to one logical frame per
// sequence number — does CCEM de-jitter run and recovery.CheckIntegrity
// get called. SPEC_FULL.md §2 lists CCEM de-jitter first in the RX
// chain, operating on raw wire arrivals; but packetizer fragments and
// FEC shards of one origin send legitimately share a single
// sequence_number (see packetizer.Fragment's Clone-based fragment
// shape), and ccem.RxDeJitter's buffer treats a second arrival at an
// already-buffered sequence as a duplicate to discard. Running
// de-jitter against raw fragments/shards would therefore silently drop
// legitimate siblings. Moving it to the collapsed level preserves its
// literal behavior (duplicates, reordering, bounded buffer) while
// giving it a domain — one entry per completed send — where "same
// sequence number twice" really does mean "duplicate".
type Receiver struct {
	registry *codec.Registry
	keys     *cryptobox.KeyManager
	recovery *recovery.Manager
	stats    *metrics.Stats
	log      *logrus.Logger

	defrag *packetizer.Defragmenter

	mu          sync.Mutex
	shardSets   map[string]*shardSet
	dejitters   map[string]*ccem.RxDeJitter
	deltaCodecs map[string]*delta.Codec
	dejitterCap int

	onDecode func(sourceNode, topic string, schemaID uint32, v any)
}

// NewReceiver returns a Receiver. onDecode is called, from whatever
// goroutine calls Ingest, for every fully reconstructed domain object
// released in sequence order.
func NewReceiver(registry *codec.Registry, keys *cryptobox.KeyManager, rec *recovery.Manager, stats *metrics.Stats, onDecode func(sourceNode, topic string, schemaID uint32, v any)) *Receiver {
	return &Receiver{
		registry:    registry,
		keys:        keys,
		recovery:    rec,
		stats:       stats,
		log:         obslog.New(),
		defrag:      packetizer.NewDefragmenter(defragmentTTL, 0, rec),
		shardSets:   make(map[string]*shardSet),
		dejitters:   make(map[string]*ccem.RxDeJitter),
		deltaCodecs: make(map[string]*delta.Codec),
		dejitterCap: defaultDeJitterBuffer,
		onDecode:    onDecode,
	}
}

// SetLogger replaces the receiver's logger (the default is
// obslog.New(), governed by ARIA_LOG).
func (r *Receiver) SetLogger(l *logrus.Logger) {
	r.log = l
}

// Ingest feeds one wire envelope (as handed off by a
// transport.Transport's OnReceive callback) through the RX chain.
func (r *Receiver) Ingest(e envelope.Envelope) {
	atomic.AddUint64(&r.stats.EnvelopesReceived, 1)
	atomic.AddUint64(&r.stats.BytesReceived, uint64(len(e.Payload)))

	plain, err := r.openCrypto(e)
	if err != nil {
		atomic.AddUint64(&r.stats.CryptoVerifyFailures, 1)
		r.log.WithField("envelope_id", e.ID).WithError(err).Warn("pipeline: crypto verification failed, dropping")
		return
	}

	complete, ok, err := r.defrag.Add(plain)
	if err != nil || !ok {
		return
	}
	if complete.Metadata.FragmentInfo == nil && plain.Metadata.FragmentInfo != nil {
		atomic.AddUint64(&r.stats.FragmentsJoined, 1)
	}

	r.collapseShard(*complete)
}

// openCrypto verifies and decrypts e's payload under the key named by
// its CryptoInfo, clearing that slot on success.
func (r *Receiver) openCrypto(e envelope.Envelope) (envelope.Envelope, error) {
	ci := e.Metadata.CryptoInfo
	if ci == nil {
		return envelope.Envelope{}, errors.New("pipeline: envelope missing crypto metadata")
	}
	box, err := r.keys.Get(ci.KeyID)
	if err != nil {
		return envelope.Envelope{}, err
	}
	plain, err := box.VerifyThenDecrypt(e.Payload, ci.Nonce, ci.Signature)
	if err != nil {
		return envelope.Envelope{}, err
	}
	out := e.Clone()
	out.Payload = plain
	out.Metadata.CryptoInfo = nil
	return out, nil
}

// collapseShard folds e, a fully-defragmented FEC shard (or a
// non-FEC-protected envelope), into its block's shardSet, attempting
// reconstruction once enough shards have arrived.
func (r *Receiver) collapseShard(e envelope.Envelope) {
	fi := e.Metadata.FECInfo
	if fi == nil {
		e.Metadata.FECInfo = nil
		r.collapsed(e)
		return
	}

	key := blockKey(e.Metadata.SourceNode, e.Topic, fi.BlockID)
	r.mu.Lock()
	ss, ok := r.shardSets[key]
	if !ok {
		ss = &shardSet{k: int(fi.K), m: int(fi.M), dataLen: int(fi.DataLen), shards: make([][]byte, fi.K+fi.M)}
		r.shardSets[key] = ss
	}
	if int(fi.ShardIndex) < len(ss.shards) && ss.shards[fi.ShardIndex] == nil {
		ss.shards[fi.ShardIndex] = e.Payload
		ss.present++
	}
	ready := ss.present >= ss.k
	var shardsCopy [][]byte
	var k, m, dataLen int
	if ready {
		shardsCopy = ss.shards
		k, m, dataLen = ss.k, ss.m, ss.dataLen
		delete(r.shardSets, key)
	}
	r.mu.Unlock()

	if !ready {
		return
	}

	payload, err := fec.Decode(shardsCopy, k, m, dataLen)
	if err != nil {
		atomic.AddUint64(&r.stats.FECUnrecoverable, 1)
		r.log.WithField("block_key", key).WithError(err).Warn("pipeline: fec block unrecoverable, dropping")
		return
	}
	if m > 0 {
		atomic.AddUint64(&r.stats.FECRecovered, 1)
	}

	e.Payload = payload
	e.Metadata.FECInfo = nil
	r.collapsed(e)
}

// collapsed handles one fully reassembled, reconstructed envelope: at
// this point every stage-owned metadata slot (FragmentInfo, FECInfo,
// CryptoInfo) has already been cleared, so recovery.CheckIntegrity's
// "at most one populated" invariant is meaningful here rather than at
// an intermediate wire fragment. It then runs CCEM de-jitter, loss
// tracking, and the Delta/Decompress/Codec unwind in sequence order.
func (r *Receiver) collapsed(e envelope.Envelope) {
	if ok, err := r.recovery.CheckIntegrity(e); err != nil || !ok {
		if err != nil {
			atomic.AddUint64(&r.stats.SchemaUnknownErrors, 1)
		}
		return
	}

	sKey := streamKey(e.Metadata.SourceNode, e.Topic)
	r.mu.Lock()
	dj, ok := r.dejitters[sKey]
	if !ok {
		dj = ccem.NewRxDeJitter(r.dejitterCap)
		r.dejitters[sKey] = dj
	}
	r.mu.Unlock()

	for _, released := range dj.Add(e) {
		r.deliver(released)
	}
}

// deliver runs one in-order envelope through loss tracking and the
// remaining unwind (Delta -> Decompress -> Codec), handing the result
// to onDecode.
func (r *Receiver) deliver(e envelope.Envelope) {
	before := r.recovery.LostCount()
	r.recovery.Observe(e.Metadata.SourceNode, e.Topic, e.Metadata.SequenceNumber)
	if after := r.recovery.LostCount(); after > before {
		atomic.AddUint64(&r.stats.SequencesLost, after-before)
	}

	sKey := streamKey(e.Metadata.SourceNode, e.Topic)
	r.mu.Lock()
	dc, ok := r.deltaCodecs[sKey]
	if !ok {
		dc = delta.New()
		r.deltaCodecs[sKey] = dc
	}
	r.mu.Unlock()

	decoded, err := dc.Decode(e.Payload)
	if err != nil {
		return
	}
	raw, err := compress.Remove(decoded)
	if err != nil {
		return
	}
	v, err := r.registry.Decode(e.SchemaID, raw)
	if err != nil {
		return
	}
	if r.onDecode != nil {
		r.onDecode(e.Metadata.SourceNode, e.Topic, e.SchemaID, v)
	}
}
