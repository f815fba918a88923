package handlers

import (
	"clipboard-service/internal/api/middleware"
	"clipboard-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Establish a WebSocket connection for live clipboard updates and presence
// @Tags websocket
// @Param token query string false "JWT for authenticated connections"
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// Anonymous viewers are allowed; userID is "" without a valid token.
	websocket.ServeWS(h.hub, c.Writer, c.Request, middleware.UserID(c))
}
