package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/scheduler"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
)

type scheduleRequest struct {
	ConnectionID string    `json:"connectionId"`
	Number       string    `json:"number"`
	Message      string    `json:"message"`
	FireAt       time.Time `json:"fireAt"`
	Recurring    bool      `json:"recurring"`
}

type syncRequest struct {
	ConnectionID string     `json:"connectionId"`
	URL          string     `json:"url"`
	Rows         [][]string `json:"rows"`
}

func (s *Server) addSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	task, err := s.deps.Scheduler.Add(c.Request.Context(), req.ConnectionID, req.Number, req.Message, req.FireAt, req.Recurring)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) listSchedule(c *gin.Context) {
	tasks, err := s.deps.Scheduler.List()
	if err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	if err := s.deps.Scheduler.Delete(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true})
}

// syncSchedule imports reminder rows given inline or fetched from a sheet.
// A sync that creates nothing answers 200 with warnings.
func (s *Server) syncSchedule(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.ConnectionID == "" {
		badRequest(c, "connectionId is required")
		return
	}

	var (
		res scheduler.ImportResult
		err error
	)
	switch {
	case len(req.Rows) > 0:
		res, err = s.deps.Scheduler.ImportTabular(c.Request.Context(), req.Rows, req.ConnectionID)
	case s.deps.NewSource != nil:
		res, err = s.deps.Scheduler.Sync(c.Request.Context(), s.deps.NewSource(req.URL), req.ConnectionID)
	default:
		badRequest(c, "no rows given and no sheet source configured")
		return
	}
	if err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrExternalService, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"created":  res.Created,
		"skipped":  res.Skipped,
		"warnings": res.Warnings,
		"warning":  res.Created == 0,
	})
}
