package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/broadcast"
)

type broadcastRequest struct {
	Numbers  []string              `json:"numbers"`
	Messages []broadcast.Recipient `json:"messages"`
	Message  string                `json:"message"`
	// DelayMs is the fixed pause before each recipient.
	DelayMs int64  `json:"delay"`
	Mode    string `json:"mode"`
}

func (s *Server) startBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	recipients := make([]broadcast.Recipient, 0, len(req.Numbers)+len(req.Messages))
	for _, n := range req.Numbers {
		recipients = append(recipients, broadcast.Recipient{Number: n})
	}
	recipients = append(recipients, req.Messages...)

	job, err := s.deps.Broadcast.Run(c.Request.Context(), broadcast.Request{
		ConnectionID: c.Param("id"),
		Recipients:   recipients,
		Message:      req.Message,
		Delay:        time.Duration(req.DelayMs) * time.Millisecond,
		Mode:         broadcast.Mode(req.Mode),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) getBroadcast(c *gin.Context) {
	job, ok, err := s.deps.Broadcast.Job(c.Param("id"))
	switch {
	case err != nil:
		fail(c, err)
	case !ok:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown broadcast job"})
	default:
		c.JSON(http.StatusOK, job)
	}
}

func (s *Server) listBroadcasts(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	jobs, err := s.deps.Broadcast.Jobs(limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}
