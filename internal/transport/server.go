// Package transport carries wire messages between a controller and a device
// over websocket binary messages.
//
// One websocket binary message holds exactly one wire message. The device
// answers every request message with one reply message, in order. A request
// the device cannot serve at all (bad wire header, malformed batch, reply
// kind) is answered with a text message holding the error string; the
// connection stays open.
package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/danmuck/qlang/internal/auth"
	"github.com/danmuck/qlang/internal/device"
	"github.com/danmuck/qlang/internal/observability"
	"github.com/danmuck/qlang/internal/protocol/wire"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FramesPath = "/v1/frames"

	defaultReadTimeout     = 60 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	maxMessageSize         = 16 << 20
)

// Server exposes one device over HTTP.
type Server struct {
	device    *device.Device
	addr      string
	router    *gin.Engine
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
	started   time.Time
	validator auth.Validator
}

type ServerOption func(*Server)

// WithValidator requires a token on the frame stream.
func WithValidator(v auth.Validator) ServerOption {
	return func(s *Server) {
		s.validator = v
	}
}

// NewServer builds the router for dev. corsOrigins gates both the CORS
// middleware and the websocket origin check; an empty list falls back to
// http://localhost:3000.
func NewServer(dev *device.Device, addr string, corsOrigins []string, opts ...ServerOption) *Server {
	observability.RegisterMetrics()
	origins := normalizeOrigins(corsOrigins)
	logger := log.Logger.With().Str("component", "transport").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPMiddleware(logger, dev.ID()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", auth.HeaderAuthorization},
		MaxAge:       12 * time.Hour,
	}))
	if err := r.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
		logger.Warn().Err(err).Msg("trusted proxies not set")
	}

	s := &Server{
		device:  dev,
		addr:    addr,
		router:  r,
		logger:  logger,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
			"device": s.device.ID(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ops", func(c *gin.Context) {
		table := s.device.Table()
		c.JSON(http.StatusOK, gin.H{
			"device":   s.device.ID(),
			"contexts": table.Contexts(),
			"entries":  table.Entries(),
		})
	})

	s.router.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.device.State().Snapshot())
	})

	s.router.GET(FramesPath, auth.Require(s.validator), s.serveFrames)
}

// Serve listens on the configured address until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Str("device", s.device.ID()).Msg("device listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Str("addr", s.addr).Msg("device stopped")
		return nil
	}
}

func (s *Server) serveFrames(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	remote := conn.RemoteAddr().String()
	s.logger.Info().Str("remote", remote).Msg("frame stream opened")
	defer s.logger.Info().Str("remote", remote).Msg("frame stream closed")

	ctx := c.Request.Context()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error().Err(err).Str("remote", remote).Msg("frame read failed")
			}
			return
		}
		if mt != websocket.BinaryMessage {
			if !s.write(conn, websocket.TextMessage, []byte("transport: binary messages only")) {
				return
			}
			continue
		}
		observability.RecordWireMessage(s.device.ID(), messageKind(msg), "in", len(msg))

		reply, err := s.device.HandleMessage(ctx, msg)
		if err != nil {
			s.logger.Warn().Err(err).Str("remote", remote).Int("len", len(msg)).Msg("message rejected")
			if !s.write(conn, websocket.TextMessage, []byte(err.Error())) {
				return
			}
			continue
		}
		observability.RecordWireMessage(s.device.ID(), messageKind(reply), "out", len(reply))
		if !s.write(conn, websocket.BinaryMessage, reply) {
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, mt int, data []byte) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteMessage(mt, data); err != nil {
		s.logger.Error().Err(err).Msg("frame write failed")
		return false
	}
	return true
}

func messageKind(b []byte) string {
	if len(b) < wire.HeaderSize {
		return "invalid"
	}
	return wire.Kind(b[1]).String()
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// originChecker admits requests with no Origin header (non-browser clients)
// and browsers from an allowed origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}
