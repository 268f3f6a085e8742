// Package wsapi serves the utterance streaming protocol over WebSocket. Each
// connection gets its own session goroutine; a reader goroutine feeds it
// inbound frames so that a dropped connection cancels an in-flight pipeline.
package wsapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/observability/metrics"
	"github.com/yusin8/WERO/internal/protocol"
	"github.com/yusin8/WERO/internal/service/session"
)

// Config holds transport settings.
type Config struct {
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	// InboundBuffer is how many decoded-but-unhandled frames may queue
	// while a pipeline runs.
	InboundBuffer int
	Limits        session.Limits
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageBytes: 10 * 1024 * 1024,
		WriteTimeout:    10 * time.Second,
		PingInterval:    20 * time.Second,
		PongWait:        60 * time.Second,
		InboundBuffer:   64,
		Limits:          session.DefaultLimits(),
	}
}

// Server upgrades HTTP requests and runs one session per connection.
type Server struct {
	cfg       Config
	processor session.Processor
	upgrader  websocket.Upgrader
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server that hands closed utterances to processor.
func New(cfg Config, processor session.Processor) *Server {
	def := DefaultConfig()
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 3 * cfg.PingInterval
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = def.InboundBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		processor: processor,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		metrics: metrics.DefaultMetrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ServeHTTP upgrades the request and serves the connection until either side
// closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger := logging.WithComponent("ws")
		logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.serve(conn, uuid.NewString())
}

// Close cancels every open connection and waits for their goroutines.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// connection is one accepted WebSocket. Only the session goroutine writes
// data frames; the keepalive goroutine shares the write mutex for pings.
type connection struct {
	conn   *websocket.Conn
	cfg    Config
	logger zerolog.Logger
	mu     sync.Mutex
}

func (c *connection) write(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
}

func (c *connection) closeWith(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(c.cfg.WriteTimeout))
}

func (s *Server) serve(ws *websocket.Conn, id string) {
	logger := logging.WithSession(id)
	c := &connection{conn: ws, cfg: s.cfg, logger: logger}
	defer ws.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	started := time.Now()
	s.metrics.RecordSessionStart()
	logger.Info().Str("remote", ws.RemoteAddr().String()).Msg("Connection opened")

	sess := session.New(id, s.processor, s.cfg.Limits)
	defer func() {
		sess.Close()
		s.metrics.RecordSessionEnd(time.Since(started).Seconds())
		logger.Info().
			Int("utterances", sess.Utterances()).
			Dur("duration", time.Since(started)).
			Msg("Connection closed")
	}()

	ws.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	frames := make(chan []byte, s.cfg.InboundBuffer)
	go s.read(ctx, cancel, c, frames)
	go s.keepalive(ctx, cancel, c)

	for {
		var data []byte
		select {
		case <-ctx.Done():
			if s.ctx.Err() != nil {
				c.closeWith(websocket.CloseGoingAway, "server shutting down")
			}
			return
		case d, ok := <-frames:
			if !ok {
				return
			}
			data = d
		}

		replies, err := sess.HandleFrame(ctx, data)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("Pipeline cancelled: connection closed")
			} else {
				logger.Error().Err(err).Msg("Session failed")
			}
			return
		}
		for _, reply := range replies {
			if err := c.write(reply); err != nil {
				logger.Warn().Err(err).Str("type", string(reply.Type())).Msg("Write failed")
				return
			}
		}
	}
}

// read forwards inbound data frames until the connection fails, then cancels
// the session context.
func (s *Server) read(ctx context.Context, cancel context.CancelFunc, c *connection, frames chan<- []byte) {
	defer close(frames)
	defer cancel()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("Read failed")
			}
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) keepalive(ctx context.Context, cancel context.CancelFunc, c *connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed")
				cancel()
				return
			}
		}
	}
}
