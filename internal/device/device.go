// Package device owns edge-side execution.
//
// Ownership boundary:
// - frame decode at the receive side
// - SoC resolution through a resolver.Table
// - operation dispatch to registered handlers
// - response encoding
//
// Lifecycle per instruction:
// - decode -> resolve -> execute -> respond
//
// A failure never escapes as a Go error for a single instruction or batch
// entry; it becomes the Status of that entry's Response.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/qlang/internal/observability"
	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/protocol/wire"
	"github.com/danmuck/qlang/internal/resolver"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danmuck/qlang/internal/device"

var (
	ErrNoHandler     = errors.New("device: no handler for operation")
	ErrHandlerExists = errors.New("device: handler already registered")
	ErrEmptyPayload  = errors.New("device: operation requires a payload")
	ErrReplyKind     = errors.New("device: reply kinds are not accepted")
)

// Handler executes one resolved operation and returns the result payload.
type Handler func(ctx context.Context, inst protocol.Instruction) ([]byte, error)

// Device executes instructions against local state.
type Device struct {
	id     string
	table  *resolver.Table
	logger zerolog.Logger
	tracer trace.Tracer
	state  *State

	mu       sync.RWMutex
	handlers map[uint8]Handler
}

type Option func(*Device)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Device) {
		d.tracer = tracer
	}
}

// WithoutBuiltins starts the device with no handlers registered.
func WithoutBuiltins() Option {
	return func(d *Device) {
		d.handlers = make(map[uint8]Handler)
	}
}

// New creates a device over table with the built-in handlers registered.
func New(id string, table *resolver.Table, opts ...Option) *Device {
	if table == nil {
		table = resolver.Default()
	}
	d := &Device{
		id:     id,
		table:  table,
		logger: log.Logger,
		tracer: otel.Tracer(tracerName),
		state:  NewState(),
	}
	d.handlers = d.state.builtins()
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("device", id).Logger()
	return d
}

func (d *Device) ID() string {
	return d.id
}

func (d *Device) Table() *resolver.Table {
	return d.table
}

func (d *Device) State() *State {
	return d.state
}

// Handle registers h for an operation code.
func (d *Device) Handle(code uint8, h Handler) error {
	if h == nil {
		return fmt.Errorf("device: nil handler for 0x%02X", code)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[code]; ok {
		return fmt.Errorf("%w: 0x%02X", ErrHandlerExists, code)
	}
	d.handlers[code] = h
	return nil
}

func (d *Device) handler(code uint8) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[code]
	return h, ok
}

// Execute resolves and runs inst and always returns a Response.
func (d *Device) Execute(ctx context.Context, inst protocol.Instruction) protocol.Response {
	start := time.Now()
	resp := protocol.Response{CommandID: inst.CommandID, Context: inst.Context}

	op, err := d.table.ResolveInstruction(inst)
	if err != nil {
		resp.Status = StatusFor(err)
		observability.RecordInstruction(d.id, "", resp.Status.String(), 0)
		d.logger.Warn().
			Uint32("command_id", inst.CommandID).
			Uint8("context", uint8(inst.Context)).
			Err(err).
			Msg("instruction rejected")
		return resp
	}

	ctx, span := d.tracer.Start(ctx, "device.execute",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("qlang.device", d.id),
			attribute.Int64("qlang.command_id", int64(inst.CommandID)),
			attribute.Int("qlang.context", int(inst.Context)),
			attribute.String("qlang.operation", op.Name),
			attribute.Int("qlang.payload_len", len(inst.Payload)),
		),
	)
	defer span.End()

	result, err := d.run(ctx, op, inst)
	elapsed := time.Since(start)
	if err != nil {
		resp.Status = StatusFor(err)
		resp.Result = []byte(err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error().
			Uint32("command_id", inst.CommandID).
			Str("operation", op.Name).
			Err(err).
			Msg("operation failed")
	} else {
		resp.Status = protocol.StatusOK
		resp.Result = result
		d.logger.Debug().
			Uint32("command_id", inst.CommandID).
			Str("operation", op.Name).
			Dur("elapsed", elapsed).
			Msg("operation executed")
	}
	observability.RecordInstruction(d.id, op.Name, resp.Status.String(), elapsed)
	return resp
}

func (d *Device) run(ctx context.Context, op resolver.Operation, inst protocol.Instruction) ([]byte, error) {
	h, ok := d.handler(op.Code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, op)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h(ctx, inst)
}

// ExecuteBatch executes every entry independently; response i answers
// instruction i.
func (d *Device) ExecuteBatch(ctx context.Context, batch protocol.Batch) protocol.BatchResponse {
	out := make(protocol.BatchResponse, len(batch))
	for i, inst := range batch {
		out[i] = d.Execute(ctx, inst)
	}
	return out
}

// HandleFrame decodes one instruction frame and returns the encoded response.
func (d *Device) HandleFrame(ctx context.Context, frame []byte) []byte {
	inst, err := protocol.DecodeInstruction(frame)
	if err != nil {
		observability.RecordInstruction(d.id, "", protocol.StatusTruncatedFrame.String(), 0)
		d.logger.Warn().Int("len", len(frame)).Err(err).Msg("frame rejected")
		return protocol.EncodeResponse(protocol.Response{Status: StatusFor(err)})
	}
	return protocol.EncodeResponse(d.Execute(ctx, inst))
}

// HandleBatchFrame executes an encoded batch. A batch whose entry boundaries
// cannot be determined fails as a whole with protocol.ErrMalformedBatch.
func (d *Device) HandleBatchFrame(ctx context.Context, b []byte) ([]byte, error) {
	entries, err := protocol.DecodeBatch(b)
	if err != nil {
		d.logger.Warn().Int("len", len(b)).Err(err).Msg("batch rejected")
		return nil, err
	}
	out := make(protocol.BatchResponse, len(entries))
	for i, entry := range entries {
		if entry.Err != nil {
			out[i] = protocol.Response{Status: StatusFor(entry.Err)}
			observability.RecordInstruction(d.id, "", out[i].Status.String(), 0)
			continue
		}
		out[i] = d.Execute(ctx, entry.Instruction)
	}
	return protocol.EncodeBatchResponse(out), nil
}

// HandleMessage serves one versioned wire message and returns the reply
// message.
func (d *Device) HandleMessage(ctx context.Context, b []byte) ([]byte, error) {
	msg, err := wire.Decode(b)
	if err != nil {
		return nil, err
	}
	switch msg.Kind {
	case wire.KindInstruction:
		return wire.Encode(wire.KindResponse, d.HandleFrame(ctx, msg.Body)), nil
	case wire.KindEnvelope:
		env, err := protocol.DecodeEnvelope(msg.Body)
		if err != nil {
			return wire.EncodeResponse(protocol.Response{Status: StatusFor(err)}), nil
		}
		d.logger.Debug().
			Uint8("priority", env.Metadata.Priority).
			Uint32("origin_id", env.Metadata.OriginID).
			Uint64("timestamp_ms", env.Metadata.TimestampMS).
			Msg("envelope received")
		return wire.EncodeResponse(d.Execute(ctx, env.Instruction)), nil
	case wire.KindBatch:
		body, err := d.HandleBatchFrame(ctx, msg.Body)
		if err != nil {
			return nil, err
		}
		return wire.Encode(wire.KindBatchResponse, body), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrReplyKind, msg.Kind)
	}
}

// StatusFor maps an execution error to its response status.
func StatusFor(err error) protocol.Status {
	switch {
	case err == nil:
		return protocol.StatusOK
	case errors.Is(err, resolver.ErrUnknownCommand):
		return protocol.StatusUnknownCommand
	case errors.Is(err, protocol.ErrTruncatedFrame):
		return protocol.StatusTruncatedFrame
	case errors.Is(err, ErrNoHandler):
		return protocol.StatusNoHandler
	default:
		return protocol.StatusExecutionFailed
	}
}
