package handler

import (
	"github.com/gin-gonic/gin"
)

// Events upgrades to a websocket and streams tileset events until the peer
// disconnects.
func (h *Handler) Events(c *gin.Context) {
	l := requestLogger(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn("websocket upgrade failed", "error", err)
		return
	}
	if err := h.events.Subscribe(conn); err != nil {
		l.Warn("event subscription rejected", "error", err)
	}
}
