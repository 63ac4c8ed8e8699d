package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/broadcast"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
)

// DefaultBaseURL is the daemon address used when none is configured.
const DefaultBaseURL = "http://127.0.0.1:8080"

// BaseURLFor turns a listen address such as "[::]:8080" into a URL a local
// client can dial.
func BaseURLFor(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the daemon HTTP API.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the daemon at baseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health is the daemon liveness summary.
type Health struct {
	Status      string         `json:"status"`
	UptimeMs    int64          `json:"uptimeMs"`
	Connections map[string]int `json:"connections"`
}

// ConnectionDetail is one connection with its recent lifecycle events.
type ConnectionDetail struct {
	Connection session.Info            `json:"connection"`
	Events     []store.ConnectionEvent `json:"events"`
	Messages   map[store.Direction]int `json:"messages"`
}

// QR is the pairing state of a connection. QR is a PNG data URL, Code the raw payload.
type QR struct {
	Status string `json:"status"`
	QR     string `json:"qr"`
	Code   string `json:"code"`
}

// File is an attachment sent inline as base64 JSON.
type File struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data"`
}

// MessageQuery narrows a message listing.
type MessageQuery struct {
	Direction store.Direction
	Query     string
	Limit     int
	Before    int64
}

// BroadcastRequest starts a broadcast job.
type BroadcastRequest struct {
	Numbers  []string              `json:"numbers,omitempty"`
	Messages []broadcast.Recipient `json:"messages,omitempty"`
	Message  string                `json:"message,omitempty"`
	DelayMs  int64                 `json:"delay,omitempty"`
	Mode     string                `json:"mode,omitempty"`
}

// ScheduleRequest adds one scheduled send.
type ScheduleRequest struct {
	ConnectionID string    `json:"connectionId"`
	Number       string    `json:"number"`
	Message      string    `json:"message"`
	FireAt       time.Time `json:"fireAt"`
	Recurring    bool      `json:"recurring"`
}

// SyncRequest imports reminders from a sheet URL or inline rows.
type SyncRequest struct {
	ConnectionID string     `json:"connectionId"`
	URL          string     `json:"url,omitempty"`
	Rows         [][]string `json:"rows,omitempty"`
}

// SyncResult is the outcome of a reminder import.
type SyncResult struct {
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings"`
	Warning  bool     `json:"warning"`
}

// Webhook is the notification target as reported by the daemon.
type Webhook struct {
	URL       string `json:"url"`
	HasSecret bool   `json:"hasSecret"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	return call[*Health](ctx, c, http.MethodGet, "/health", nil)
}

func (c *Client) Connections(ctx context.Context) ([]session.Info, error) {
	return call[[]session.Info](ctx, c, http.MethodGet, "/connections", nil)
}

func (c *Client) Connection(ctx context.Context, id string) (*ConnectionDetail, error) {
	return call[*ConnectionDetail](ctx, c, http.MethodGet, "/connections/"+url.PathEscape(id), nil)
}

func (c *Client) Start(ctx context.Context, id string) (*session.Info, error) {
	return call[*session.Info](ctx, c, http.MethodPost, "/connections/start", map[string]string{"connectionId": id})
}

func (c *Client) Disconnect(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/connections/disconnect", map[string]string{"connectionId": id}, nil)
}

// DisconnectAll logs out every connection and returns the ids that were running.
func (c *Client) DisconnectAll(ctx context.Context) ([]string, error) {
	resp, err := call[struct {
		Disconnected []string `json:"disconnected"`
	}](ctx, c, http.MethodPost, "/connections/disconnect-all", nil)
	return resp.Disconnected, err
}

func (c *Client) Reinit(ctx context.Context, id string) (*session.Info, error) {
	return call[*session.Info](ctx, c, http.MethodPost, "/connections/"+url.PathEscape(id)+"/reinit", nil)
}

func (c *Client) QR(ctx context.Context, id string) (*QR, error) {
	return call[*QR](ctx, c, http.MethodGet, "/"+url.PathEscape(id)+"/qrcode", nil)
}

// Send delivers one message. file may be nil.
func (c *Client) Send(ctx context.Context, id, number, message string, file *File) (*store.Message, error) {
	body := map[string]any{"number": number, "message": message}
	if file != nil {
		body["file"] = file
	}
	return call[*store.Message](ctx, c, http.MethodPost, "/"+url.PathEscape(id)+"/send-message", body)
}

func (c *Client) Messages(ctx context.Context, id string, q MessageQuery) ([]store.Message, error) {
	v := url.Values{}
	if q.Direction != "" {
		v.Set("direction", string(q.Direction))
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Before > 0 {
		v.Set("before", strconv.FormatInt(q.Before, 10))
	}
	path := "/" + url.PathEscape(id) + "/messages"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	return call[[]store.Message](ctx, c, http.MethodGet, path, nil)
}

func (c *Client) Broadcast(ctx context.Context, id string, req BroadcastRequest) (*store.BroadcastJob, error) {
	return call[*store.BroadcastJob](ctx, c, http.MethodPost, "/"+url.PathEscape(id)+"/broadcast-message", req)
}

func (c *Client) Broadcasts(ctx context.Context, limit int) ([]store.BroadcastJob, error) {
	path := "/broadcasts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return call[[]store.BroadcastJob](ctx, c, http.MethodGet, path, nil)
}

func (c *Client) BroadcastJob(ctx context.Context, id string) (*store.BroadcastJob, error) {
	return call[*store.BroadcastJob](ctx, c, http.MethodGet, "/broadcasts/"+url.PathEscape(id), nil)
}

func (c *Client) Schedule(ctx context.Context) ([]store.Task, error) {
	return call[[]store.Task](ctx, c, http.MethodGet, "/schedule", nil)
}

func (c *Client) AddSchedule(ctx context.Context, req ScheduleRequest) (*store.Task, error) {
	return call[*store.Task](ctx, c, http.MethodPost, "/schedule", req)
}

func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/schedule/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SyncSchedule(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	return call[*SyncResult](ctx, c, http.MethodPost, "/schedule/sync", req)
}

func (c *Client) Webhook(ctx context.Context) (*Webhook, error) {
	return call[*Webhook](ctx, c, http.MethodGet, "/webhook", nil)
}

func (c *Client) SetWebhook(ctx context.Context, target, secret string) (*Webhook, error) {
	return call[*Webhook](ctx, c, http.MethodPost, "/webhook", store.WebhookSettings{URL: target, Secret: secret})
}

func (c *Client) AutoReplies(ctx context.Context) ([]store.KeywordReply, error) {
	return call[[]store.KeywordReply](ctx, c, http.MethodGet, "/auto-replies", nil)
}

func (c *Client) AddAutoReply(ctx context.Context, keyword, response string) (*store.KeywordReply, error) {
	body := map[string]string{"keyword": keyword, "response": response}
	return call[*store.KeywordReply](ctx, c, http.MethodPost, "/auto-replies", body)
}

func (c *Client) DeleteAutoReply(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/auto-replies/"+strconv.FormatInt(id, 10), nil, nil)
}

func call[T any](ctx context.Context, c *Client, method, path string, in any) (T, error) {
	var out T
	err := c.do(ctx, method, path, in, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
