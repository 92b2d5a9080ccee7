// Package transport defines the send/connect/receive contract shared
// by the datagram, pubsub and store-forward profiles (SPEC_FULL.md
// §4.9/§4.11).
package transport

import (
	"context"

	"github.com/aria-robotics/telemetry/envelope"
)

// Transport is implemented by every wire profile. OnReceive registers
// the consumer of arriving envelopes; per SPEC_FULL.md §9 this is
// backed internally by a buffered channel and a dedicated consumer
// goroutine rather than invoking fn synchronously off the read loop,
// so a slow consumer cannot stall the transport's own reads and
// Disconnect can cancel cleanly.
type Transport interface {
	Connect(ctx context.Context, endpoint string) error
	Send(ctx context.Context, e envelope.Envelope) error
	Disconnect() error
	OnReceive(fn func(envelope.Envelope))
}
