package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
)

type fileRequest struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type sendRequest struct {
	Number  string       `json:"number"`
	Message string       `json:"message"`
	File    *fileRequest `json:"file,omitempty"`
}

// bindSend reads a JSON body, or a multipart form with an optional "file" part.
func bindSend(c *gin.Context) (sendRequest, *wa.Attachment, error) {
	var req sendRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req.Number = c.PostForm("number")
		req.Message = c.PostForm("message")
		fh, err := c.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil, nil
		}
		if err != nil {
			return req, nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return req, nil, err
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			return req, nil, err
		}
		return req, &wa.Attachment{
			Name:     fh.Filename,
			MIMEType: fh.Header.Get("Content-Type"),
			Data:     data,
		}, nil
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		return req, nil, err
	}
	if req.File == nil || len(req.File.Data) == 0 {
		return req, nil, nil
	}
	return req, &wa.Attachment{Name: req.File.Name, MIMEType: req.File.MIMEType, Data: req.File.Data}, nil
}

func (s *Server) sendMessage(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	req, att, err := bindSend(c)
	if err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec, err := sess.SendMessage(c.Request.Context(), req.Number, req.Message, att)
	if err != nil {
		if rec != nil {
			// Delivered but not recorded.
			c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error(), "message": rec})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listMessages(c *gin.Context) {
	s.messages(c, store.Direction(c.Query("direction")))
}

func (s *Server) listOutgoing(c *gin.Context) {
	s.messages(c, store.Outgoing)
}

func (s *Server) messages(c *gin.Context, dir store.Direction) {
	id := c.Param("id")
	if _, ok := s.deps.Registry.Get(id); !ok {
		// History outlives the session; only reject ids that never had messages.
		if counts, err := s.deps.Store.CountMessages(id); err != nil || len(counts) == 0 {
			fail(c, fmt.Errorf("%w: %s", session.ErrUnknownConnection, id))
			return
		}
	}
	if dir != "" && dir != store.Incoming && dir != store.Outgoing {
		badRequest(c, "direction must be incoming or outgoing")
		return
	}
	f := store.MessageFilter{Direction: dir, Query: c.Query("q")}
	var err error
	if f.Limit, err = intQuery(c, "limit", 100); err != nil {
		badRequest(c, err.Error())
		return
	}
	before, err := intQuery(c, "before", 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	f.BeforeTs = int64(before)

	msgs, err := s.deps.Store.ListMessages(id, f)
	if err != nil {
		fail(c, fmt.Errorf("%w: %w", session.ErrPersistence, err))
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
