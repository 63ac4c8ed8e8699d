package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Event is one server-sent event from GET /events.
type Event struct {
	Kind         string          `json:"kind"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Events follows the daemon event stream until ctx is done or the stream
// ends. connectionID and kinds narrow the stream when set. Heartbeats are
// dropped.
func (c *Client) Events(ctx context.Context, connectionID string, kinds ...string) (<-chan Event, error) {
	v := url.Values{}
	if connectionID != "" {
		v.Set("connectionId", connectionID)
	}
	if len(kinds) > 0 {
		v.Set("kinds", strings.Join(kinds, ","))
	}
	target := c.base + "/events"
	if len(v) > 0 {
		target += "?" + v.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived; the client timeout would cut it.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach daemon: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeError(resp)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64<<10), 4<<20)
		var kind, data string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data += strings.TrimPrefix(line, "data:")
			case line == "":
				if kind != "" && kind != "ping" {
					evt := Event{Kind: kind}
					_ = json.Unmarshal([]byte(data), &evt)
					evt.Kind = kind
					select {
					case out <- evt:
					case <-ctx.Done():
						return
					}
				}
				kind, data = "", ""
			}
		}
	}()
	return out, nil
}
