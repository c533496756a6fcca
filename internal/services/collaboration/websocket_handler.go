package collaboration

import (
	"context"
	"log/slog"
	"net/http"

	"watchparty/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// no auth and a separately hosted frontend; any origin may connect
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades HTTP requests and hands the connection to the
// session manager. Joining a session happens over the socket with
// join_session.
type WebSocketHandler struct {
	sessionManager *SessionManager
}

func NewWebSocketHandler(sessionManager *SessionManager) *WebSocketHandler {
	return &WebSocketHandler{sessionManager: sessionManager}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	// the pumps outlive the handler; keep trace values, drop cancellation
	ctx := context.WithoutCancel(r.Context())

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("remote.addr", r.RemoteAddr),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	client := h.sessionManager.Attach(conn)

	go client.WritePump()
	go client.ReadPump(ctx)

	slog.Info("websocket connected", "client_id", client.ID, "remote_addr", r.RemoteAddr)
}
