package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
)

func (s *Server) getWebhook(c *gin.Context) {
	ws, err := s.deps.Store.WebhookSettings()
	if err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": ws.URL, "hasSecret": ws.Secret != ""})
}

func (s *Server) setWebhook(c *gin.Context) {
	var ws store.WebhookSettings
	if err := c.ShouldBindJSON(&ws); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	ws.URL = strings.TrimSpace(ws.URL)
	if ws.URL != "" {
		u, err := url.Parse(ws.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			badRequest(c, "url must be an absolute http(s) URL")
			return
		}
	}
	if err := s.deps.Store.SetWebhookSettings(ws); err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": ws.URL, "hasSecret": ws.Secret != ""})
}

func (s *Server) listAutoReplies(c *gin.Context) {
	rules, err := s.deps.Store.ListKeywordReplies()
	if err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	if rules == nil {
		rules = []store.KeywordReply{}
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) addAutoReply(c *gin.Context) {
	var rule store.KeywordReply
	if err := c.ShouldBindJSON(&rule); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rule.Keyword = strings.TrimSpace(rule.Keyword)
	if rule.Keyword == "" || strings.TrimSpace(rule.Response) == "" {
		badRequest(c, "keyword and response are required")
		return
	}
	if err := s.deps.Store.AddKeywordReply(&rule); err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// replaceAutoReplies swaps the whole rule list; body order becomes match order.
func (s *Server) replaceAutoReplies(c *gin.Context) {
	var rules []store.KeywordReply
	if err := c.ShouldBindJSON(&rules); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	for i := range rules {
		rules[i].Keyword = strings.TrimSpace(rules[i].Keyword)
		if rules[i].Keyword == "" || strings.TrimSpace(rules[i].Response) == "" {
			badRequest(c, fmt.Sprintf("rule %d: keyword and response are required", i))
			return
		}
	}
	if err := s.deps.Store.ReplaceKeywordReplies(rules); err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	s.listAutoReplies(c)
}

func (s *Server) deleteAutoReply(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "id must be an integer")
		return
	}
	deleted, err := s.deps.Store.DeleteKeywordReply(id)
	if err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	if !deleted {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "auto-reply not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}
