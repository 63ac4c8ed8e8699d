package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/session"
	"go.uber.org/zap"
)

type connectionRequest struct {
	ConnectionID string `json:"connectionId"`
}

func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	sess, ok := s.deps.Registry.Get(id)
	if !ok {
		fail(c, fmt.Errorf("%w: %s", session.ErrUnknownConnection, id))
		return nil, false
	}
	return sess, true
}

func (s *Server) listConnections(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Registry.List())
}

func (s *Server) getConnection(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	resp := gin.H{"connection": sess.Info()}
	if s.deps.Store != nil {
		events, err := s.deps.Store.ListConnectionEvents(sess.ID(), 20)
		if err != nil {
			s.logger.Warn("list connection events", zap.String("connection", sess.ID()), zap.Error(err))
		}
		resp["events"] = events
		if counts, err := s.deps.Store.CountMessages(sess.ID()); err == nil {
			resp["messages"] = counts
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) startConnection(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConnectionID == "" {
		badRequest(c, "connectionId is required")
		return
	}
	sess, err := s.deps.Registry.Start(c.Request.Context(), req.ConnectionID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess.Info())
}

func (s *Server) disconnectConnection(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConnectionID == "" {
		badRequest(c, "connectionId is required")
		return
	}
	if err := s.deps.Registry.Disconnect(c.Request.Context(), req.ConnectionID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connectionId": req.ConnectionID, "disconnected": true})
}

// disconnectAll logs out every session. Failures on some sessions do not stop
// the others; the response lists what was running beforehand.
func (s *Server) disconnectAll(c *gin.Context) {
	ids := []string{}
	for _, info := range s.deps.Registry.List() {
		ids = append(ids, info.ID)
	}
	if err := s.deps.Registry.DisconnectAll(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "connections": ids})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": ids})
}

func (s *Server) reinitConnection(c *gin.Context) {
	sess, err := s.deps.Registry.Reinit(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

func (s *Server) qrCode(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	dataURL, code := sess.QR()
	resp := gin.H{"status": sess.Status(), "qr": nil, "code": nil}
	if dataURL != "" {
		resp["qr"] = dataURL
		resp["code"] = code
	}
	c.JSON(http.StatusOK, resp)
}
