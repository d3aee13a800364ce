// Package ws manages the WebSocket side of a participant connection: accept,
// heartbeat, inbound dispatch to the session engine, and the reconnect grace
// period that runs before a closed connection counts as leaving.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/cortexuvula/roomsync/internal/config"
	"github.com/cortexuvula/roomsync/internal/metrics"
	"github.com/cortexuvula/roomsync/internal/registry"
	"github.com/cortexuvula/roomsync/internal/security"
)

// Heartbeat tokens exchanged as plain text frames, outside the event pipeline.
const (
	pingToken = "PING"
	pongToken = "PONG"
)

const leaveTimeout = 10 * time.Second

// Engine is the part of the session engine the transport drives.
type Engine interface {
	Open(ctx context.Context, key registry.Key, conn registry.Conn) error
	HandleMessage(ctx context.Context, key registry.Key, raw []byte) error
	Leave(ctx context.Context, key registry.Key) error
	Registry() *registry.Registry
}

// Handler accepts participant WebSocket connections for an already resolved
// (room code, participant id) key.
type Handler struct {
	Config      *config.Config
	Engine      Engine
	Stats       *Stats
	RateLimiter *security.RateLimiter // optional, nil if connection rate limiting is disabled
	Metrics     *metrics.Metrics      // optional, nil if metrics disabled
	ShutdownCtx context.Context       // cancelled on server shutdown

	// drainCtx is cancelled when the server begins draining connections.
	// Active connections watch this to send graceful close frames.
	drainCtx    context.Context
	drainCancel context.CancelFunc

	// leaves tracks grace timers that have fired and are running Leave.
	leaves sync.WaitGroup

	// mu protects Config during hot-reload
	mu sync.RWMutex
}

// NewHandler creates a new connection handler.
func NewHandler(cfg *config.Config, engine Engine, stats *Stats, rl *security.RateLimiter, shutdownCtx context.Context) *Handler {
	drainCtx, drainCancel := context.WithCancel(context.Background())
	return &Handler{
		Config:      cfg,
		Engine:      engine,
		Stats:       stats,
		RateLimiter: rl,
		ShutdownCtx: shutdownCtx,
		drainCtx:    drainCtx,
		drainCancel: drainCancel,
	}
}

// StartDrain signals all active connections to begin graceful shutdown.
// Participants closed by a drain are not removed from their rooms, so they
// can rejoin the restarted server.
func (h *Handler) StartDrain() {
	h.drainCancel()
}

func (h *Handler) draining() bool {
	return h.drainCtx.Err() != nil
}

// WaitLeaves blocks until every fired grace timer has finished its Leave.
func (h *Handler) WaitLeaves() {
	h.leaves.Wait()
}

// GetConfig returns the current config (thread-safe for hot-reload).
func (h *Handler) GetConfig() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Config
}

// UpdateConfig swaps the config (called on SIGHUP).
func (h *Handler) UpdateConfig(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Config = cfg
}

// Serve upgrades the request and runs the connection until it closes.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, key registry.Key) {
	cfg := h.GetConfig()
	clientIP := security.ClientIP(r)
	log := slog.With("room", key.RoomCode, "participant", key.ParticipantID, "client_ip", clientIP)

	if h.draining() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	// 1. Connection rate limit
	if cfg.Security.RateLimit.Enabled && h.RateLimiter != nil && !h.RateLimiter.Allow(clientIP) {
		log.Warn("rate limit exceeded")
		h.countError("rate_limited")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	// 2. Connection limits (atomic check-and-increment)
	if reason := h.Stats.TryIncrementConnections(clientIP, cfg.Security.MaxConnections, cfg.Security.MaxConnectionsPerClient); reason != "" {
		if reason == LimitGlobal {
			log.Warn("max connections reached", "current", h.Stats.ConnectionCount(), "max", cfg.Security.MaxConnections)
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		} else {
			log.Warn("max connections per client reached", "current", h.Stats.ConnectionCountFor(clientIP))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		}
		h.countError(reason)
		return
	}
	defer h.Stats.DecrementConnections(clientIP)

	// 3. Accept
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: cfg.Server.AllowedOrigins,
	})
	if err != nil {
		log.Error("failed to accept WebSocket", "error", err)
		h.countError("accept_failure")
		return
	}
	wsConn.SetReadLimit(cfg.Server.MaxMessageSize)

	if h.Metrics != nil {
		h.Metrics.ConnectionsTotal.Inc()
		h.Metrics.ActiveConnections.Inc()
		defer h.Metrics.ActiveConnections.Dec()
	}

	connCtx, connCancel := context.WithCancel(h.ShutdownCtx)
	defer connCancel()

	conn := newConn(wsConn, cfg.Server.SendQueueSize, cfg.Server.WriteTimeout, connCancel)
	go conn.writeLoop(connCtx)

	// Ping must run concurrently with Read per coder/websocket docs.
	if cfg.Server.PingInterval > 0 {
		go h.keepAlive(connCtx, conn, cfg.Server.PingInterval, cfg.Server.PongTimeout)
	}

	// Drain watcher: on server drain, send a going-away close frame.
	go func() {
		select {
		case <-h.drainCtx.Done():
			conn.CloseWith(websocket.StatusGoingAway, "server shutting down")
		case <-connCtx.Done():
		}
	}()

	start := time.Now()
	log.Info("connection established")

	if err := h.Engine.Open(connCtx, key, conn); err != nil {
		log.Error("opening session failed", "error", err)
		h.countError("open_failure")
		conn.CloseWith(websocket.StatusInternalError, "room unavailable")
	} else {
		var msgLimiter *rate.Limiter
		if cfg.Security.RateLimit.Enabled {
			msgLimiter = security.NewMessageLimiter(cfg.Security.RateLimit.MessagesPerSecond)
		}
		h.readLoop(connCtx, conn, key, msgLimiter)
	}

	conn.CloseWith(websocket.StatusNormalClosure, "")
	log.Info("connection closed", "duration", time.Since(start).String())
	h.scheduleLeave(key, conn, cfg.Server.ReconnectGrace)
}

// readLoop dispatches inbound text frames until the connection closes.
// msgLimiter is optional; if non-nil, inbound messages are rate-limited.
func (h *Handler) readLoop(ctx context.Context, conn *Conn, key registry.Key, msgLimiter *rate.Limiter) {
	for {
		// No read deadline: keepalive pings detect dead peers and cancel ctx.
		msgType, data, err := conn.ws.Read(ctx)
		if err != nil {
			slog.Debug("read stopped", "room", key.RoomCode, "participant", key.ParticipantID, "reason", err)
			return
		}

		if msgLimiter != nil {
			if err := msgLimiter.Wait(ctx); err != nil {
				slog.Debug("message rate limit", "participant", key.ParticipantID, "reason", err)
				return
			}
		}

		if msgType != websocket.MessageText {
			slog.Debug("ignoring binary frame", "participant", key.ParticipantID)
			continue
		}
		h.Stats.IncrementMessages()

		if string(data) == pingToken {
			if err := conn.Send([]byte(pongToken)); err != nil {
				slog.Debug("pong not queued", "participant", key.ParticipantID, "error", err)
			}
			continue
		}
		// Errors are logged by the engine and never close the connection.
		_ = h.Engine.HandleMessage(ctx, key, data)
	}
}

// scheduleLeave runs Leave for key after grace, unless a newer connection
// has taken the key by then. The timer is never cancelled: the registry
// identity check at fire time decides.
func (h *Handler) scheduleLeave(key registry.Key, conn *Conn, grace time.Duration) {
	if h.draining() {
		return
	}
	time.AfterFunc(grace, func() {
		if !h.Engine.Registry().CompareAndRemove(key, conn) {
			slog.Debug("stale close ignored, participant reconnected", "room", key.RoomCode, "participant", key.ParticipantID)
			return
		}
		h.leaves.Add(1)
		defer h.leaves.Done()

		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := h.Engine.Leave(ctx, key); err != nil {
			slog.Error("leave failed", "room", key.RoomCode, "participant", key.ParticipantID, "error", err)
		}
	})
}

// keepAlive sends periodic WebSocket pings to detect dead connections.
// If a ping fails or times out, the connection is closed.
func (h *Handler) keepAlive(ctx context.Context, conn *Conn, interval, pongTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, pongTimeout)
			err := conn.ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				slog.Debug("keepalive ping failed, closing connection", "error", err)
				conn.CloseWith(websocket.StatusGoingAway, "keepalive timeout")
				return
			}
		}
	}
}

func (h *Handler) countError(kind string) {
	if h.Metrics != nil {
		h.Metrics.ErrorsTotal.WithLabelValues(kind).Inc()
	}
}
