package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/qlang/internal/auth"
	"github.com/danmuck/qlang/internal/protocol"
	"github.com/danmuck/qlang/internal/protocol/wire"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed         = errors.New("transport: client closed")
	ErrUnexpectedKind = errors.New("transport: unexpected reply kind")
)

// RemoteError is a request the device refused to serve.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "transport: device refused message: " + e.Message
}

// Client is a controller-side connection to one device. Requests are
// serialised: one request is in flight at a time.
//
// A request that fails on the connection (including a context timeout while
// waiting for the reply) closes the client, since a late reply would pair
// with the next request. Later calls return ErrClosed; dial again.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

type dialConfig struct {
	token string
}

type DialOption func(*dialConfig)

// WithToken presents token as a bearer token.
func WithToken(token string) DialOption {
	return func(c *dialConfig) {
		c.token = token
	}
}

// Dial opens a frame stream to url, e.g. ws://127.0.0.1:9400/v1/frames.
func Dial(ctx context.Context, url string, opts ...DialOption) (*Client, error) {
	var cfg dialConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, auth.BearerHeader(cfg.token))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &Client{conn: conn}, nil
}

// Do sends one instruction and waits for its response.
func (c *Client) Do(ctx context.Context, inst protocol.Instruction) (protocol.Response, error) {
	body, err := c.roundTrip(ctx, wire.EncodeInstruction(inst), wire.KindResponse)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(body)
}

// DoEnvelope sends an instruction with its metadata block.
func (c *Client) DoEnvelope(ctx context.Context, env protocol.Envelope) (protocol.Response, error) {
	body, err := c.roundTrip(ctx, wire.EncodeEnvelope(env), wire.KindResponse)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(body)
}

// DoBatch sends a batch and returns one response per instruction, in order.
func (c *Client) DoBatch(ctx context.Context, batch protocol.Batch) (protocol.BatchResponse, error) {
	body, err := c.roundTrip(ctx, wire.EncodeBatch(batch), wire.KindBatchResponse)
	if err != nil {
		return nil, err
	}
	entries, err := protocol.DecodeBatchResponse(body)
	if err != nil {
		return nil, err
	}
	return protocol.CollectResponses(entries)
}

// Send writes a raw wire message and returns the raw reply message.
func (c *Client) Send(ctx context.Context, msg []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	deadline := time.Now().Add(defaultWriteTimeout + defaultReadTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		c.abandon()
		return nil, fmt.Errorf("transport: write: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	_ = c.conn.SetReadDeadline(deadline)
	mt, reply, err := c.conn.ReadMessage()
	if err != nil {
		c.abandon()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("transport: read: %w", context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	if mt == websocket.TextMessage {
		return nil, &RemoteError{Message: string(reply)}
	}
	return reply, nil
}

func (c *Client) roundTrip(ctx context.Context, msg []byte, want wire.Kind) ([]byte, error) {
	reply, err := c.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	m, err := wire.Decode(reply)
	if err != nil {
		return nil, err
	}
	if m.Kind != want {
		return nil, fmt.Errorf("%w: got %s want %s", ErrUnexpectedKind, m.Kind, want)
	}
	return m.Body, nil
}

// abandon drops a connection whose stream position is unknown. c.mu is held.
func (c *Client) abandon() {
	c.closed = true
	_ = c.conn.Close()
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
