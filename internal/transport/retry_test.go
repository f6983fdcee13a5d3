package transport

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/qlang/internal/device"
	"github.com/danmuck/qlang/internal/testutil/testlog"
)

func TestBackoffDelay(t *testing.T) {
	testlog.Start(t)
	b := Backoff{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := b.Delay(i+1, nil); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}

	b.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for n := 2; n < 6; n++ {
		got := b.Delay(n, rng)
		if got < 50*time.Millisecond || got >= 450*time.Millisecond {
			t.Fatalf("jittered delay %s out of range", got)
		}
	}
	if got := (Backoff{}).Delay(3, nil); got != 0 {
		t.Fatalf("zero backoff must not wait, got %s", got)
	}
}

func TestDialRetry(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fast := Backoff{InitialDelay: time.Millisecond, Multiplier: 1}
	if _, err := DialRetry(ctx, "ws://127.0.0.1:1"+FramesPath, 2, fast); err == nil {
		t.Fatalf("expected dial to a closed port to fail")
	}

	srv := NewServer(device.New("edge-retry", nil), ":0", nil)
	ts := newTestServerOrSkip(t, srv.Router())
	defer ts.Close()
	client, err := DialRetry(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+FramesPath, 3, fast)
	if err != nil {
		t.Fatalf("dial retry: %v", err)
	}
	_ = client.Close()
}
