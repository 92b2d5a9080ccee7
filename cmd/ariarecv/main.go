// Command ariarecv listens for and prints telemetry envelopes from a
// sending peer over the datagram transport profile (SPEC_FULL.md §6).
// Grounded on xtaci-kcptun's client/main.go for the urfave/cli
// App/Flags/Action shape.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/aria-robotics/telemetry/codec"
	"github.com/aria-robotics/telemetry/cryptobox"
	"github.com/aria-robotics/telemetry/internal/keyfile"
	"github.com/aria-robotics/telemetry/internal/obslog"
	"github.com/aria-robotics/telemetry/metrics"
	"github.com/aria-robotics/telemetry/pipeline"
	"github.com/aria-robotics/telemetry/recovery"
	"github.com/aria-robotics/telemetry/transport/datagram"
)

type usageError struct{ error }

func main() {
	log := obslog.New()

	app := cli.NewApp()
	app.Name = "ariarecv"
	app.Usage = "receive and print telemetry envelopes from a peer"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "topic", Value: "", Usage: "only print envelopes on this topic (default: all topics)"},
		cli.BoolFlag{Name: "decrypt", Usage: "accepted for CLI compatibility; verify+decrypt always runs (§4.5)"},
		cli.StringFlag{Name: "format", Value: "text", Usage: "output format: json or text"},
		cli.StringFlag{Name: "listen", Value: "127.0.0.1:9421", Usage: "address to listen on"},
		cli.StringFlag{Name: "keyfile", Value: "ariasend.key", Usage: "shared crypto key file (must match the sender's)"},
	}
	app.Action = doRun

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("ariarecv: fatal")
		code := 1
		if _, ok := err.(usageError); ok {
			code = 2
		}
		os.Exit(code)
	}
}

func doRun(c *cli.Context) error {
	log := obslog.New()

	format := c.String("format")
	if format != "json" && format != "text" {
		return usageError{fmt.Errorf("--format must be json or text, got %q", format)}
	}
	topicFilter := c.String("topic")

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

	stats := &metrics.Stats{}
	rec := recovery.NewManager(registry)

	onDecode := func(sourceNode, topic string, schemaID uint32, v any) {
		if topicFilter != "" && topic != topicFilter {
			return
		}
		printDecoded(format, sourceNode, topic, schemaID, v)
	}
	receiver := pipeline.NewReceiver(registry, keys, rec, stats, onDecode)
	receiver.SetLogger(log)

	tr := datagram.New(datagram.DefaultConfig)
	if err := tr.Listen(c.String("listen")); err != nil {
		return fmt.Errorf("listen on %s: %w", c.String("listen"), err)
	}
	defer tr.Disconnect()
	tr.OnReceive(receiver.Ingest)

	log.WithField("listen", c.String("listen")).Info("ariarecv: listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("ariarecv: shutting down")
	return nil
}

func printDecoded(format, sourceNode, topic string, schemaID uint32, v any) {
	if format == "json" {
		out, err := json.Marshal(struct {
			SourceNode string `json:"source_node"`
			Topic      string `json:"topic"`
			SchemaID   uint32 `json:"schema_id"`
			Value      any    `json:"value"`
		}{sourceNode, topic, schemaID, v})
		if err != nil {
			fmt.Fprintf(os.Stderr, "ariarecv: marshal: %v\n", err)
			return
		}
		fmt.Println(string(out))
		return
	}
	fmt.Printf("[%s] %s (schema %d): %+v\n", sourceNode, topic, schemaID, v)
}
