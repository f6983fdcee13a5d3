package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/qlang/internal/auth"
	"github.com/danmuck/qlang/internal/device"
	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/resolver"
	"github.com/danmuck/qlang/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServerOrSkip(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	func() {
		defer func() {
			if r := recover(); r != nil {
				server = nil
			}
		}()
		server = httptest.NewServer(handler)
	}()
	if server == nil {
		t.Skip("skipping listener test in restricted environment")
	}
	return server
}

func dialTestDevice(t *testing.T) (*Client, *device.Device) {
	t.Helper()
	dev := device.New("edge-ws", resolver.Default())
	return dialDevice(t, dev), dev
}

func dialDevice(t *testing.T, dev *device.Device) *Client {
	t.Helper()
	srv := NewServer(dev, ":0", nil)
	ts := newTestServerOrSkip(t, srv.Router())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+FramesPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestHealthAndOpsRoutes(t *testing.T) {
	testlog.Start(t)
	srv := NewServer(device.New("edge-http", nil), ":0", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ops", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /ops, got %d", rr.Code)
	}
	var body struct {
		Device  string           `json:"device"`
		Entries []resolver.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode /ops: %v", err)
	}
	if body.Device != "edge-http" || len(body.Entries) != 8 {
		t.Fatalf("unexpected /ops body: %+v", body)
	}
	if body.Entries[0].Operation.Name != "LOCAL_WEIGHT_UPDATE" {
		t.Fatalf("entries not ordered: %+v", body.Entries[0])
	}

	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"replicated":{}`) {
		t.Fatalf("unexpected /state body: %d %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "qlang_http_requests_total") {
		t.Fatalf("metrics endpoint missing http counters: %d", rr.Code)
	}
}

func TestFramesUpgradeRejectsForeignOrigin(t *testing.T) {
	testlog.Start(t)
	check := originChecker(normalizeOrigins(nil))
	req := httptest.NewRequest(http.MethodGet, FramesPath, nil)
	if !check(req) {
		t.Fatalf("request without origin must be admitted")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !check(req) {
		t.Fatalf("configured origin must be admitted")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatalf("foreign origin must be rejected")
	}
}

func TestClientDoRoundTrip(t *testing.T) {
	testlog.Start(t)
	client, dev := dialTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Do(ctx, protocol.Instruction{CommandID: 0x01, Context: protocol.ContextLowResource, Payload: []byte("weights_v2")})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != protocol.StatusOK || string(resp.Result) != "weights=weights_v2" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if dev.State().Snapshot().Weights != "weights_v2" {
		t.Fatalf("device state not updated")
	}

	resp, err = client.Do(ctx, protocol.Instruction{CommandID: 0x42, Context: 0})
	if err != nil {
		t.Fatalf("do unknown: %v", err)
	}
	if resp.Status != protocol.StatusUnknownCommand {
		t.Fatalf("expected unknown command status, got %s", resp.Status)
	}

	resp, err = client.DoEnvelope(ctx, protocol.Envelope{
		Metadata:    protocol.Metadata{Priority: 1, TimestampMS: uint64(time.Now().UnixMilli()), OriginID: 7},
		Instruction: protocol.Instruction{CommandID: 0x02, Context: 1, Payload: []byte("k=v")},
	})
	if err != nil {
		t.Fatalf("do envelope: %v", err)
	}
	if resp.Status != protocol.StatusOK || string(resp.Result) != "replicated=k bytes=1" {
		t.Fatalf("unexpected envelope response: %+v", resp)
	}
}

func TestClientDoBatch(t *testing.T) {
	testlog.Start(t)
	client, _ := dialTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch := protocol.Batch{
		{CommandID: 0x01, Context: 1, Payload: []byte("weights_v2")},
		{CommandID: 0x02, Context: 0, Payload: []byte("cache_data")},
		{CommandID: 0x03, Context: 1, Payload: []byte("retrain")},
		{CommandID: 0x04, Context: 0, Payload: []byte("incremental")},
		{CommandID: 0x05, Context: 0},
	}
	out, err := client.DoBatch(ctx, batch)
	if err != nil {
		t.Fatalf("do batch: %v", err)
	}
	if len(out) != len(batch) {
		t.Fatalf("expected %d responses, got %d", len(batch), len(out))
	}
	for i, resp := range out {
		if resp.Key() != batch[i].Key() {
			t.Fatalf("response %d answers %v, want %v", i, resp.Key(), batch[i].Key())
		}
	}
	if out[4].Status != protocol.StatusUnknownCommand {
		t.Fatalf("expected last entry unknown, got %s", out[4].Status)
	}

	empty, err := client.DoBatch(ctx, nil)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty batch response, got %d", len(empty))
	}
}

func TestClientSendRefusedMessage(t *testing.T) {
	testlog.Start(t)
	client, _ := dialTestDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Send(ctx, []byte{0x07, 0x01})
	var remote *RemoteError
	if !errors.As(err, &remote) || !strings.Contains(remote.Message, "unsupported version") {
		t.Fatalf("expected remote version error, got %v", err)
	}

	// The stream survives a refused message.
	resp, err := client.Do(ctx, protocol.Instruction{CommandID: 0x04, Context: 1, Payload: []byte("abc")})
	if err != nil || resp.Status != protocol.StatusOK {
		t.Fatalf("stream unusable after refusal: %+v %v", resp, err)
	}
}

func TestClientClosed(t *testing.T) {
	testlog.Start(t)
	client, _ := dialTestDevice(t)
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := client.Do(context.Background(), protocol.Instruction{CommandID: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestClientClosedAfterTimeout(t *testing.T) {
	testlog.Start(t)
	dev := device.New("edge-slow", resolver.Default(), device.WithoutBuiltins())
	if err := dev.Handle(resolver.OpLocalWeightUpdate.Code, func(ctx context.Context, inst protocol.Instruction) ([]byte, error) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
		return []byte("late"), nil
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	client := dialDevice(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	inst := protocol.Instruction{CommandID: 0x01, Context: protocol.ContextLowResource, Payload: []byte("w")}
	if _, err := client.Do(ctx, inst); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, err := client.Do(context.Background(), inst); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after timeout, got %v", err)
	}
}

func TestFramesRequireToken(t *testing.T) {
	testlog.Start(t)
	srv := NewServer(device.New("edge-auth", nil), ":0", nil, WithValidator(auth.StaticToken{Token: "s3cret"}))
	ts := newTestServerOrSkip(t, srv.Router())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + FramesPath

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Dial(ctx, url); err == nil {
		t.Fatalf("expected dial without token to fail")
	}
	if _, err := Dial(ctx, url, WithToken("wrong")); err == nil {
		t.Fatalf("expected dial with wrong token to fail")
	}
	client, err := Dial(ctx, url, WithToken("s3cret"))
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	defer client.Close()
	resp, err := client.Do(ctx, protocol.Instruction{CommandID: 0x01, Context: 0, Payload: []byte("w")})
	if err != nil || resp.Status != protocol.StatusOK {
		t.Fatalf("authorized request failed: %+v %v", resp, err)
	}

	// Probes stay open.
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected open /health, got %d", rr.Code)
	}
}
