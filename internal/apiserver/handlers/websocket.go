package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/crowdrank/crowdrank-backend/internal/apiserver/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebsocket upgrades the connection and attaches the client to the hub.
// A worker_id query parameter claims the worker room for this connection.
func (h *Handler) HandleWebsocket(c *gin.Context) {
	requestLogger := h.requestLogger(c)

	var workerID int64
	if raw := c.Query("worker_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, "INVALID_WORKER_ID", "worker_id must be a positive integer")
			return
		}
		workerID = parsed
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		requestLogger.Errorf("[HandleWebsocket] Upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(uuid.NewString(), workerID, conn, h.hub, h.logger)
	h.metrics.WebsocketClientsActive.Inc()
	client.OnClose = func() {
		h.metrics.WebsocketClientsActive.Dec()
	}

	h.hub.Register(client)
	requestLogger.Infof("[HandleWebsocket] Client %s connected (worker_id=%d)", client.ID, workerID)

	go client.WritePump()
	go client.ReadPump()
}
