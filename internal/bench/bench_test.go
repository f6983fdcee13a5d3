package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/qlang/internal/baseline"
	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/testutil/testlog"
)

func quickOptions() Options {
	return Options{Iterations: 200, Duration: 10 * time.Millisecond}
}

func TestRunMeasuresEveryCodec(t *testing.T) {
	testlog.Start(t)
	results, err := Run(context.Background(), baseline.All(), quickOptions())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Protocol != baseline.NameQLang || results[0].MessageSize != 5+len(DefaultPayload) {
		t.Fatalf("unexpected Q-Lang result: %+v", results[0])
	}
	for _, r := range results {
		if r.SerializationUS <= 0 || r.DeserializeUS <= 0 || r.Throughput <= 0 {
			t.Fatalf("%s: non-positive measurement %+v", r.Protocol, r)
		}
	}
}

func TestRunKeepsExplicitZeroInstruction(t *testing.T) {
	testlog.Start(t)
	opts := quickOptions()
	opts.Instruction = &protocol.Instruction{CommandID: 0x00, Context: protocol.ContextHighResource}
	results, err := Run(context.Background(), []baseline.Codec{baseline.QLang()}, opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 || results[0].MessageSize != protocol.InstructionHeaderSize {
		t.Fatalf("explicit empty instruction replaced: %+v", results)
	}
}

func TestRunHonorsCanceledContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := Run(ctx, baseline.All(), quickOptions())
	if !errors.Is(err, context.Canceled) || len(results) != 0 {
		t.Fatalf("expected cancellation before any codec, got %d results, %v", len(results), err)
	}
}

func TestImprovements(t *testing.T) {
	testlog.Start(t)
	results := []Result{
		{Protocol: baseline.NameQLang, MessageSize: 39, SerializationUS: 0.5, DeserializeUS: 0.25, Throughput: 2000},
		{Protocol: baseline.NameJSON, MessageSize: 78, SerializationUS: 2.0, DeserializeUS: 1.0, Throughput: 1000},
	}
	imps, err := Improvements(results)
	if err != nil {
		t.Fatalf("improvements: %v", err)
	}
	if len(imps) != 1 || imps[0].Protocol != baseline.NameJSON {
		t.Fatalf("unexpected improvements: %+v", imps)
	}
	got := imps[0]
	for name, pair := range map[string][2]float64{
		"size":        {got.SizePct, 50},
		"serialize":   {got.SerializePct, 75},
		"deserialize": {got.DeserializePct, 75},
		"throughput":  {got.ThroughputPct, 100},
	} {
		if math.Abs(pair[0]-pair[1]) > 1e-9 {
			t.Fatalf("%s improvement = %f, want %f", name, pair[0], pair[1])
		}
	}

	if _, err := Improvements(results[1:]); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("expected ErrNoBaseline, got %v", err)
	}
}

func TestWriteTableAndImprovements(t *testing.T) {
	testlog.Start(t)
	results := []Result{
		{Protocol: baseline.NameQLang, MessageSize: 39, SerializationUS: 0.1, DeserializeUS: 0.1, Throughput: 1e6},
		{Protocol: baseline.NameCBOR, MessageSize: 70, SerializationUS: 0.4, DeserializeUS: 0.6, Throughput: 5e5},
	}
	var buf bytes.Buffer
	if err := WriteTable(&buf, results); err != nil {
		t.Fatalf("write table: %v", err)
	}
	if !strings.Contains(buf.String(), "PROTOCOL") || !strings.Contains(buf.String(), "CBOR") {
		t.Fatalf("table missing rows:\n%s", buf.String())
	}
	imps, err := Improvements(results)
	if err != nil {
		t.Fatalf("improvements: %v", err)
	}
	buf.Reset()
	if err := WriteImprovements(&buf, imps); err != nil {
		t.Fatalf("write improvements: %v", err)
	}
	if !strings.Contains(buf.String(), "vs. CBOR:") {
		t.Fatalf("improvements missing CBOR:\n%s", buf.String())
	}
}

func TestSaveJSON(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "results", "benchmark_results.json")
	in := []Result{{Protocol: baseline.NameQLang, MessageSize: 39, Throughput: 10}}
	if err := SaveJSON(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"protocol", "message_size", "serialization_time_us", "deserialization_time_us", "throughput_msg_sec", "memory_usage_mb"} {
		if _, ok := raw[0][key]; !ok {
			t.Fatalf("saved result missing %q: %s", key, data)
		}
	}
}
