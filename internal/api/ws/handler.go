package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fidulabs/chatlab/internal/bridge"
	"github.com/fidulabs/chatlab/internal/infrastructure/logging"
	"github.com/fidulabs/chatlab/internal/infrastructure/monitoring"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the wire frame pushed to connected UIs.
type Message struct {
	Type string           `json:"type"`
	Auth types.AuthStatus `json:"auth"`
}

// Handler streams bridge state changes to WebSocket clients. Each
// client gets the current AuthStatus on connect, then every change
// until it disconnects.
type Handler struct {
	bridge   *bridge.Store
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler bound to the bridge store.
func NewHandler(store *bridge.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		bridge: store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Origin policy is enforced by the CORS layer
			},
		},
	}
}

// WithMetrics attaches a metrics collector.
func (h *Handler) WithMetrics(m *monitoring.Metrics) *Handler {
	h.metrics = m
	return h
}

// HandleConnection upgrades the request and streams auth state until
// the client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	updates, cancel := h.bridge.Watch()
	defer cancel()

	// Read side exists only to surface the close; inbound frames are
	// ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.send(conn, h.bridge.AuthStatus()); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := h.send(conn, status); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, status types.AuthStatus) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(Message{Type: "auth-status", Auth: status})
}
