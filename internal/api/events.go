package api

import (
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/bus"
)

const heartbeatInterval = 25 * time.Second

type ssePayload struct {
	ConnectionID string    `json:"connectionId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Data         any       `json:"data"`
}

// events streams bus events as server-sent events. The event name is the
// kind. ?connectionId= and ?kinds=a,b (kind prefixes) narrow the stream. A
// "snapshot" event with the current connection list is sent first.
func (s *Server) events(c *gin.Context) {
	filter := bus.Filter{ConnectionID: c.Query("connectionId")}
	if raw := c.Query("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				filter.Kinds = append(filter.Kinds, k)
			}
		}
	}

	ch, unsub := s.deps.Bus.Subscribe(filter, 256)
	defer unsub()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", ssePayload{Timestamp: time.Now(), Data: s.deps.Registry.List()})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", ssePayload{Timestamp: time.Now()})
			return true
		case evt := <-ch:
			c.SSEvent(evt.Kind, ssePayload{
				ConnectionID: evt.ConnectionID,
				Timestamp:    evt.Timestamp,
				Data:         evt.Payload,
			})
			return true
		}
	})
}
