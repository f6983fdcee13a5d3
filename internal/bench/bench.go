// Package bench measures instruction codecs against each other.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/danmuck/qlang/internal/baseline"
	"github.com/danmuck/qlang/internal/observability"
	"github.com/danmuck/qlang/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIterations = 100000
	DefaultDuration   = time.Second
	DefaultPayload    = "model_weights_v2_data_payload_test"
)

var ErrNoBaseline = errors.New("bench: Q-Lang result missing")

// Options controls one benchmark run. Zero values take the defaults; a nil
// Instruction measures DefaultInstruction.
type Options struct {
	Iterations  int
	Duration    time.Duration
	Instruction *protocol.Instruction
}

// DefaultInstruction is the full-sync instruction the original benchmarks
// measure.
func DefaultInstruction() protocol.Instruction {
	return protocol.Instruction{
		CommandID: 0x01,
		Context:   protocol.ContextHighResource,
		Payload:   []byte(DefaultPayload),
	}
}

func (o Options) withDefaults() Options {
	if o.Iterations <= 0 {
		o.Iterations = DefaultIterations
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Instruction == nil {
		inst := DefaultInstruction()
		o.Instruction = &inst
	}
	return o
}

// Result is one codec's measurements. Times are per-message averages in
// microseconds.
type Result struct {
	Protocol        string  `json:"protocol"`
	MessageSize     int     `json:"message_size"`
	SerializationUS float64 `json:"serialization_time_us"`
	DeserializeUS   float64 `json:"deserialization_time_us"`
	Throughput      float64 `json:"throughput_msg_sec"`
	MemoryUsageMB   float64 `json:"memory_usage_mb"`
}

// Improvement compares Q-Lang against one other protocol. Positive values
// favour Q-Lang.
type Improvement struct {
	Protocol       string  `json:"protocol"`
	SizePct        float64 `json:"size_pct_smaller"`
	SerializePct   float64 `json:"serialization_pct_faster"`
	DeserializePct float64 `json:"deserialization_pct_faster"`
	ThroughputPct  float64 `json:"throughput_pct_higher"`
}

// Run measures every codec in order. It stops early with ctx's error.
func Run(ctx context.Context, codecs []baseline.Codec, opts Options) ([]Result, error) {
	opts = opts.withDefaults()
	results := make([]Result, 0, len(codecs))
	for _, codec := range codecs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		log.Info().Str("protocol", codec.Name).Int("iterations", opts.Iterations).Msg("benchmark started")
		res, err := runCodec(ctx, codec, opts)
		if err != nil {
			return results, fmt.Errorf("bench: %s: %w", codec.Name, err)
		}
		observability.RecordBenchResult(res.Protocol, res.MessageSize,
			time.Duration(res.SerializationUS*float64(time.Microsecond)),
			time.Duration(res.DeserializeUS*float64(time.Microsecond)),
			res.Throughput)
		log.Info().
			Str("protocol", res.Protocol).
			Int("size", res.MessageSize).
			Float64("ser_us", res.SerializationUS).
			Float64("deser_us", res.DeserializeUS).
			Float64("msg_sec", res.Throughput).
			Msg("benchmark finished")
		results = append(results, res)
	}
	return results, nil
}

func runCodec(ctx context.Context, codec baseline.Codec, opts Options) (Result, error) {
	inst := *opts.Instruction
	encoded, err := codec.Marshal(inst)
	if err != nil {
		return Result{}, err
	}
	decoded, err := codec.Unmarshal(encoded)
	if err != nil {
		return Result{}, err
	}
	if !decoded.Equal(inst) {
		return Result{}, fmt.Errorf("round trip mismatch: got %s", decoded)
	}
	res := Result{Protocol: codec.Name, MessageSize: len(encoded)}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()
	for i := 0; i < opts.Iterations; i++ {
		if _, err := codec.Marshal(inst); err != nil {
			return Result{}, err
		}
	}
	res.SerializationUS = perOpMicros(time.Since(start), opts.Iterations)
	runtime.ReadMemStats(&after)
	res.MemoryUsageMB = float64(after.TotalAlloc-before.TotalAlloc) / float64(opts.Iterations) / (1 << 20)

	start = time.Now()
	for i := 0; i < opts.Iterations; i++ {
		if _, err := codec.Unmarshal(encoded); err != nil {
			return Result{}, err
		}
	}
	res.DeserializeUS = perOpMicros(time.Since(start), opts.Iterations)

	count := 0
	start = time.Now()
	deadline := start.Add(opts.Duration)
	for time.Now().Before(deadline) {
		if count%1024 == 0 && ctx.Err() != nil {
			break
		}
		if _, err := codec.Marshal(inst); err != nil {
			return Result{}, err
		}
		count++
	}
	if elapsed := time.Since(start); elapsed > 0 {
		res.Throughput = float64(count) / elapsed.Seconds()
	}
	return res, nil
}

func perOpMicros(total time.Duration, n int) float64 {
	return float64(total.Nanoseconds()) / 1e3 / float64(n)
}

// Improvements compares the Q-Lang result against every other result.
func Improvements(results []Result) ([]Improvement, error) {
	var ql *Result
	for i := range results {
		if results[i].Protocol == baseline.NameQLang {
			ql = &results[i]
			break
		}
	}
	if ql == nil {
		return nil, ErrNoBaseline
	}
	out := make([]Improvement, 0, len(results)-1)
	for _, r := range results {
		if r.Protocol == baseline.NameQLang {
			continue
		}
		out = append(out, Improvement{
			Protocol:       r.Protocol,
			SizePct:        reduction(float64(r.MessageSize), float64(ql.MessageSize)),
			SerializePct:   reduction(r.SerializationUS, ql.SerializationUS),
			DeserializePct: reduction(r.DeserializeUS, ql.DeserializeUS),
			ThroughputPct:  gain(ql.Throughput, r.Throughput),
		})
	}
	return out, nil
}

// reduction is how much smaller ours is than theirs, in percent.
func reduction(theirs, ours float64) float64 {
	if theirs == 0 {
		return 0
	}
	return (1 - ours/theirs) * 100
}

func gain(ours, theirs float64) float64 {
	if theirs == 0 {
		return 0
	}
	return (ours/theirs - 1) * 100
}

func WriteTable(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROTOCOL\tSIZE (B)\tSER (us)\tDESER (us)\tTHROUGHPUT (msg/s)\tALLOC (MB/op)")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\t%.0f\t%.6f\n",
			r.Protocol, r.MessageSize, r.SerializationUS, r.DeserializeUS, r.Throughput, r.MemoryUsageMB)
	}
	return tw.Flush()
}

func WriteImprovements(w io.Writer, imps []Improvement) error {
	for _, imp := range imps {
		_, err := fmt.Fprintf(w,
			"vs. %s:\n  size:            %6.1f%% smaller\n  serialization:   %6.1f%% faster\n  deserialization: %6.1f%% faster\n  throughput:      %6.1f%% higher\n",
			imp.Protocol, imp.SizePct, imp.SerializePct, imp.DeserializePct, imp.ThroughputPct)
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveJSON writes results as an indented JSON array, creating parent
// directories.
func SaveJSON(path string, results []Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("bench: create %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
