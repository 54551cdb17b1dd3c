package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/server"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

// jobEvents upgrades to a websocket and streams the job's progress events
// as JSON until the job finishes or the client goes away.
func (h *Handler) jobEvents(c *gin.Context) {
	id := c.Param("id")
	events, unsubscribe, err := h.jobs.Subscribe(id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn("Websocket upgrade failed", logger.Fields(
			"job_id", id,
			"error", err.Error(),
		))
		return
	}
	defer conn.Close()

	// Drain client frames so close and pong control messages are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				deadline := time.Now().Add(eventWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
