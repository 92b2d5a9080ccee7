// Command ariasend publishes N synthetic telemetry envelopes to a
// receiving peer over the datagram transport profile (SPEC_FULL.md
// §6). Grounded on xtaci-kcptun's client/main.go for the
// urfave/cli.App/Flags/Action shape.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/aria-robotics/telemetry/codec"
	"github.com/aria-robotics/telemetry/cryptobox"
	"github.com/aria-robotics/telemetry/domain"
	"github.com/aria-robotics/telemetry/envelope"
	"github.com/aria-robotics/telemetry/internal/keyfile"
	"github.com/aria-robotics/telemetry/internal/obslog"
	"github.com/aria-robotics/telemetry/metrics"
	"github.com/aria-robotics/telemetry/pipeline"
	"github.com/aria-robotics/telemetry/transport/datagram"
)

// usageError marks a flag/argument misuse, mapped to exit code 2 (§6);
// any other error is an unrecoverable failure, exit code 1.
type usageError struct{ error }

func main() {
	log := obslog.New()

	app := cli.NewApp()
	app.Name = "ariasend"
	app.Usage = "publish N telemetry envelopes to a peer"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "topic", Value: "telemetry/state", Usage: "topic to publish under"},
		cli.IntFlag{Name: "priority", Value: 1, Usage: "priority 0 (critical) to 3 (low)"},
		cli.IntFlag{Name: "count", Value: 10, Usage: "number of envelopes to publish"},
		cli.BoolFlag{Name: "encrypt", Usage: "accepted for CLI compatibility; the crypto stage is always applied (§4.5)"},
		cli.StringFlag{Name: "fec", Value: "4,2", Usage: "FEC shard parameters as k,m"},
		cli.StringFlag{Name: "endpoint", Value: "127.0.0.1:9421", Usage: "peer address to dial"},
		cli.StringFlag{Name: "source-node", Value: "ariasend", Usage: "source_node stamped on every envelope"},
		cli.StringFlag{Name: "keyfile", Value: "ariasend.key", Usage: "shared crypto key file (created if absent)"},
	}
	app.Action = doRun

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("ariasend: fatal")
		code := 1
		if _, ok := err.(usageError); ok {
			code = 2
		}
		os.Exit(code)
	}
}

func doRun(c *cli.Context) error {
	log := obslog.New()

	priority := c.Int("priority")
	if priority < 0 || priority > 3 {
		return usageError{fmt.Errorf("--priority must be between 0 and 3, got %d", priority)}
	}
	count := c.Int("count")
	if count <= 0 {
		return usageError{fmt.Errorf("--count must be positive, got %d", count)}
	}
	k, m, err := parseFEC(c.String("fec"))
	if err != nil {
		return usageError{err}
	}
	if !c.Bool("encrypt") {
		log.Warn("ariasend: --encrypt=false ignored; the crypto stage is mandatory in this pipeline")
	}

	box, err := keyfile.LoadOrCreate(c.String("keyfile"), "ariasend-key")
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	keys := cryptobox.NewKeyManager()
	keys.AddKey(box)

	registry := codec.NewRegistry()
	if err := codec.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	tr := datagram.New(datagram.DefaultConfig)
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelConnect()
	if err := tr.Connect(connectCtx, c.String("endpoint")); err != nil {
		return fmt.Errorf("connect to %s: %w", c.String("endpoint"), err)
	}
	defer tr.Disconnect()

	stats := &metrics.Stats{}
	sender := pipeline.NewSender(c.String("source-node"), registry, keys, tr, stats)
	sender.SetFEC(k, m)
	sender.SetLogger(log)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go sender.Run(runCtx)

	topic := c.String("topic")
	for i := 0; i < count; i++ {
		sample := domain.RawSample{
			SensorID:  c.String("source-node"),
			Timestamp: time.Now().UTC(),
			Kind:      domain.SensorTemperature,
			Celsius:   20 + float32(i)*0.1,
		}
		if err := sender.Send(context.Background(), topic, envelope.Priority(priority), codec.SchemaRawSample, sample); err != nil {
			return fmt.Errorf("send envelope %d: %w", i, err)
		}
	}

	// Give the background Run loop time to drain the QoS/CCEM queues
	// through the transport before exiting.
	time.Sleep(500 * time.Millisecond)
	log.WithField("count", count).Info("ariasend: done")
	return nil
}

func parseFEC(spec string) (int, int, error) {
	parts := strings.SplitN(spec, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("--fec must be k,m, got %q", spec)
	}
	k, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("--fec k is not an integer: %w", err)
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("--fec m is not an integer: %w", err)
	}
	return k, m, nil
}
