// Package pipeline composes the stage packages (codec, compress,
// delta, fec, packetizer, cryptobox, qos, ccem) into the full send and
// receive chains from SPEC_FULL.md §2/§5. No single teacher file
// grounds this package; it is built fresh, calling each stage
// package's exported functions in the order SPEC_FULL.md specifies,
// following the "monomorphised generics on the hot path, interfaces
// only at the operator-facing seam" instruction (the seam here is
// transport.Transport).
package pipeline

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

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
	"github.com/aria-robotics/telemetry/linkhealth"
	"github.com/aria-robotics/telemetry/metrics"
	"github.com/aria-robotics/telemetry/packetizer"
	"github.com/aria-robotics/telemetry/qos"
	"github.com/aria-robotics/telemetry/transport"
)

// DefaultSmoothingWindow is the TxConditioner gap applied before any
// link-health advice has adjusted it.
const DefaultSmoothingWindow = 2 * time.Millisecond

// Sender drives the full TX chain for one source node: domain object
// -> Codec -> Compressor -> Delta -> FEC -> Packetizer -> Crypto -> QoS
// -> CCEM(smooth) -> Transport, per SPEC_FULL.md §2.
type Sender struct {
	sourceNode string
	registry   *codec.Registry
	keys       *cryptobox.KeyManager
	out        transport.Transport
	shaper     *qos.Shaper
	tx         *ccem.TxConditioner
	stats      *metrics.Stats
	log        *logrus.Logger

	mu          sync.Mutex
	mtu         int
	profile     compress.Profile
	fecK, fecM  int
	seq         map[string]uint64
	deltaCodecs map[string]*delta.Codec

	cancel    chan struct{}
	closeOnce sync.Once
}

// NewSender returns a Sender with reference defaults: 1400-byte MTU,
// the fast compressor, FEC(4,2), and a 2ms send-smoothing window.
func NewSender(sourceNode string, registry *codec.Registry, keys *cryptobox.KeyManager, out transport.Transport, stats *metrics.Stats) *Sender {
	return &Sender{
		sourceNode:  sourceNode,
		registry:    registry,
		keys:        keys,
		out:         out,
		shaper:      qos.New(),
		tx:          ccem.NewTxConditioner(DefaultSmoothingWindow),
		stats:       stats,
		log:         obslog.New(),
		mtu:         packetizer.DefaultMTU,
		profile:     compress.Fast,
		fecK:        4,
		fecM:        2,
		seq:         make(map[string]uint64),
		deltaCodecs: make(map[string]*delta.Codec),
		cancel:      make(chan struct{}),
	}
}

// SetLogger replaces the sender's logger (the default is obslog.New(),
// governed by ARIA_LOG).
func (s *Sender) SetLogger(l *logrus.Logger) {
	s.log = l
}

// SetPolicy exposes the QoS shaper's per-topic policy override.
func (s *Sender) SetPolicy(topic string, pol qos.Policy) {
	s.shaper.SetPolicy(topic, pol)
}

// SetFEC replaces the (k, m) shard parameters applied to subsequent
// Send calls, for CLI/operator-driven configuration outside of
// ApplyAdvice's link-health feedback path.
func (s *Sender) SetFEC(k, m int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fecK, s.fecM = k, m
}

// ApplyAdvice folds a linkhealth.Advice into the sender's live
// configuration: FEC shard counts, compressor profile, and the CCEM
// send-smoothing window (a rate multiplier below 1 widens the window,
// i.e. slows the send rate).
func (s *Sender) ApplyAdvice(a linkhealth.Advice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.AdjustFEC != nil {
		s.fecK, s.fecM = a.AdjustFEC.K, a.AdjustFEC.M
	}
	if a.AdjustCodec != nil {
		if *a.AdjustCodec == "fast" {
			s.profile = compress.Fast
		} else {
			s.profile = compress.HighRatio
		}
	}
	if a.AdjustRate != nil && *a.AdjustRate > 0 {
		s.tx.SetSmoothingWindow(time.Duration(float64(DefaultSmoothingWindow) / *a.AdjustRate))
	}
	s.log.WithField("advice", a).Debug("pipeline: link-health advice applied")
}

func (s *Sender) nextSeqLocked(topic string) uint64 {
	seq := s.seq[topic]
	s.seq[topic] = seq + 1
	return seq
}

func (s *Sender) deltaCodecLocked(topic string) *delta.Codec {
	c, ok := s.deltaCodecs[topic]
	if !ok {
		c = delta.New()
		s.deltaCodecs[topic] = c
	}
	return c
}

// Send encodes v under schemaID and drives it through every TX stage,
// leaving the resulting wire envelopes queued in the QoS shaper for
// Run's background loop to drain. It does not itself touch the
// network.
func (s *Sender) Send(ctx context.Context, topic string, priority envelope.Priority, schemaID uint32, v any) error {
	body, err := s.registry.Encode(schemaID, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	profile := s.profile
	k, m := s.fecK, s.fecM
	mtu := s.mtu
	dc := s.deltaCodecLocked(topic)
	seq := s.nextSeqLocked(topic)
	s.mu.Unlock()

	compressed, err := compress.Apply(profile, body)
	if err != nil {
		return errors.Wrap(err, "pipeline: compress")
	}

	deltaFrame := dc.Encode(compressed)

	block, err := fec.Encode(deltaFrame, k, m)
	if err != nil {
		return errors.Wrap(err, "pipeline: fec encode")
	}
	atomic.AddUint64(&s.stats.FECShardSets, 1)

	box := s.keys.Active()
	if box == nil {
		return errors.New("pipeline: no active signing key")
	}

	for i, shard := range block.Shards {
		se := envelope.New(s.sourceNode, topic, priority, seq)
		se.SchemaID = schemaID
		se.Payload = shard
		if err := se.StampFEC(envelope.FECInfo{
			K:          uint32(k),
			M:          uint32(m),
			BlockID:    uint32(seq),
			DataLen:    uint32(block.DataLen),
			ShardIndex: uint32(i),
		}); err != nil {
			return errors.Wrap(err, "pipeline: stamp fec info")
		}

		fragments, err := packetizer.Fragment(se, mtu)
		if err != nil {
			return errors.Wrap(err, "pipeline: fragment")
		}
		if len(fragments) > 1 {
			atomic.AddUint64(&s.stats.FragmentsEmitted, uint64(len(fragments)))
		}

		for _, frag := range fragments {
			sealed, err := seal(box, frag)
			if err != nil {
				return errors.Wrap(err, "pipeline: seal")
			}
			s.shaper.Enqueue(sealed)
		}
	}
	return nil
}

// seal applies the sign-then-encrypt crypto stage to e's payload.
func seal(box *cryptobox.Box, e envelope.Envelope) (envelope.Envelope, error) {
	nonce := make([]byte, box.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return envelope.Envelope{}, errors.Wrap(err, "generate nonce")
	}
	ciphertext, sig := box.SignThenEncrypt(e.Payload, nonce)
	e.Payload = ciphertext
	if err := e.StampCrypto(envelope.CryptoInfo{
		Signature: sig,
		KeyID:     box.KeyID(),
		Nonce:     nonce,
	}); err != nil {
		return envelope.Envelope{}, err
	}
	return e, nil
}

// Run drains the QoS shaper through the CCEM send-rate conditioner and
// onto the transport until ctx is done or Close is called. Intended
// to run in its own goroutine for the lifetime of the Sender.
func (s *Sender) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.cancel:
			return
		default:
		}

		e, ok := s.shaper.WaitDequeue(50 * time.Millisecond)
		if !ok {
			continue
		}
		admitted, ok := s.tx.Condition(e)
		if !ok {
			// queued inside the conditioner; it is released by a later
			// Condition call once the smoothing window has elapsed.
			continue
		}
		if err := s.out.Send(ctx, admitted); err != nil {
			s.log.WithFields(logrus.Fields{
				"envelope_id": admitted.ID,
				"topic":       admitted.Topic,
			}).WithError(err).Warn("pipeline: transport send failed, dropping")
			continue
		}
		atomic.AddUint64(&s.stats.EnvelopesSent, 1)
		atomic.AddUint64(&s.stats.BytesSent, uint64(len(admitted.Payload)))
	}
}

// Close stops Run's background loop.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() { close(s.cancel) })
	return nil
}
