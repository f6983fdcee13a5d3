package observability

import (
	"testing"
	"time"

	"github.com/danmuck/qlang/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("edge-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordInstruction("edge-a", "LOCAL_WEIGHT_UPDATE", "ok", 40*time.Microsecond)
	RecordInstruction("edge-a", "", "unknown_command", 0)
	RecordWireMessage("edge-a", "instruction", "in", 17)
	RecordBenchResult("Q-Lang", 39, 80*time.Nanosecond, 60*time.Nanosecond, 1e7)

	if got := testutil.ToFloat64(instructions.WithLabelValues("edge-a", "LOCAL_WEIGHT_UPDATE", "ok")); got != 1 {
		t.Fatalf("unexpected instruction count: %v", got)
	}
	if got := testutil.ToFloat64(benchMessageSize.WithLabelValues("Q-Lang")); got != 39 {
		t.Fatalf("unexpected bench size gauge: %v", got)
	}
}
