// Command ariabench measures throughput of the pipeline's per-stage
// primitives (compression, FEC, crypto), per SPEC_FULL.md §6. Grounded
// on xtaci-kcptun's client/main.go for the urfave/cli App/Flags/Action
// shape.
package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/aria-robotics/telemetry/compress"
	"github.com/aria-robotics/telemetry/cryptobox"
	"github.com/aria-robotics/telemetry/fec"
	"github.com/aria-robotics/telemetry/internal/obslog"
)

type usageError struct{ error }

// benchPayloadSize is the reference payload size benchmarked, matching
// a typical single-fragment telemetry frame.
const benchPayloadSize = 1024

func main() {
	log := obslog.New()

	app := cli.NewApp()
	app.Name = "ariabench"
	app.Usage = "benchmark pipeline stage throughput"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "bench", Value: "all", Usage: "which stage to benchmark: compression, fec, crypto, or all"},
		cli.IntFlag{Name: "iterations", Value: 10000, Usage: "number of iterations per benchmarked stage"},
	}
	app.Action = doRun

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("ariabench: fatal")
		code := 1
		if _, ok := err.(usageError); ok {
			code = 2
		}
		os.Exit(code)
	}
}

func doRun(c *cli.Context) error {
	which := c.String("bench")
	iterations := c.Int("iterations")
	if iterations <= 0 {
		return usageError{fmt.Errorf("--iterations must be positive, got %d", iterations)}
	}

	payload := make([]byte, benchPayloadSize)
	if _, err := rand.Read(payload); err != nil {
		return fmt.Errorf("generate payload: %w", err)
	}

	runners := map[string]func(int, []byte) (result, error){
		"compression": benchCompression,
		"fec":         benchFEC,
		"crypto":      benchCrypto,
	}

	names := []string{"compression", "fec", "crypto"}
	switch which {
	case "all":
		// run all three, in the fixed order above
	case "compression", "fec", "crypto":
		names = []string{which}
	default:
		return usageError{fmt.Errorf("--bench must be one of compression, fec, crypto, all; got %q", which)}
	}

	for _, name := range names {
		res, err := runners[name](iterations, payload)
		if err != nil {
			return fmt.Errorf("bench %s: %w", name, err)
		}
		printResult(name, iterations, res)
	}
	return nil
}

type result struct {
	elapsed time.Duration
}

func printResult(name string, iterations int, r result) {
	perOp := r.elapsed / time.Duration(iterations)
	opsPerSec := float64(iterations) / r.elapsed.Seconds()
	fmt.Printf("%-12s %8d iterations  %10.2f ops/sec  %8.2f us/op\n", name, iterations, opsPerSec, float64(perOp.Microseconds()))
}

func benchCompression(iterations int, payload []byte) (result, error) {
	start := time.Now()
	for i := 0; i < iterations; i++ {
		out, err := compress.Apply(compress.Fast, payload)
		if err != nil {
			return result{}, err
		}
		if _, err := compress.Remove(out); err != nil {
			return result{}, err
		}
	}
	return result{elapsed: time.Since(start)}, nil
}

func benchFEC(iterations int, payload []byte) (result, error) {
	const k, m = 4, 2

	start := time.Now()
	for i := 0; i < iterations; i++ {
		block, err := fec.Encode(payload, k, m)
		if err != nil {
			return result{}, err
		}
		// simulate the loss of one parity shard, the common case FEC
		// exists to tolerate
		shards := append([][]byte(nil), block.Shards...)
		shards[k] = nil
		if _, err := fec.Decode(shards, k, m, block.DataLen); err != nil {
			return result{}, err
		}
	}
	return result{elapsed: time.Since(start)}, nil
}

func benchCrypto(iterations int, payload []byte) (result, error) {
	box, err := cryptobox.New("bench-key")
	if err != nil {
		return result{}, err
	}
	nonce := make([]byte, box.NonceSize())

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := rand.Read(nonce); err != nil {
			return result{}, err
		}
		ciphertext, sig := box.SignThenEncrypt(payload, nonce)
		if _, err := box.VerifyThenDecrypt(ciphertext, nonce, sig); err != nil {
			return result{}, err
		}
	}
	return result{elapsed: time.Since(start)}, nil
}
