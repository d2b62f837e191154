package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"tuweeter/internal/httputil"
	"tuweeter/internal/logging"
	"tuweeter/internal/realtime"
	"tuweeter/internal/transport/http/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades GET /ws into a subscription on the event hub. The
// viewer identity comes from the optional auth middleware; anonymous
// subscribers only receive events of public authors.
type WSHandler struct {
	hub *realtime.Hub
	cfg realtime.ClientConfig
}

func NewWSHandler(hub *realtime.Hub, cfg realtime.ClientConfig) *WSHandler {
	return &WSHandler{hub: hub, cfg: cfg}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	logger := logging.Ctx(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, userID, h.cfg)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	logger.Debug().Str("client_id", client.ID).Msg("websocket connected")
	go client.WritePump()
	go client.ReadPump()
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
