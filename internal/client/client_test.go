package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestConnections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /connections", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []session.Info{{ID: "acme", Status: status.Connected, Phone: "6280000"}})
	})
	c := newTestClient(t, mux)

	list, err := c.Connections(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "acme" || list[0].Status != status.Connected {
		t.Errorf("Connections() = %+v", list)
	}
}

func TestStartSendsConnectionID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connections/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		writeJSON(w, http.StatusAccepted, session.Info{ID: body["connectionId"], Status: status.Connecting})
	})
	c := newTestClient(t, mux)

	info, err := c.Start(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "acme" || info.Status != status.Connecting {
		t.Errorf("Start() = %+v", info)
	}
}

func TestDisconnectAllAndBroadcastJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connections/disconnect-all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"disconnected": {"acme", "beta"}})
	})
	mux.HandleFunc("GET /broadcasts/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.BroadcastJob{ID: r.PathValue("id"), Total: 3, Sent: 3})
	})
	c := newTestClient(t, mux)

	ids, err := c.DisconnectAll(context.Background())
	if err != nil || len(ids) != 2 || ids[0] != "acme" {
		t.Errorf("DisconnectAll() = %v, %v", ids, err)
	}
	job, err := c.BroadcastJob(context.Background(), "job-1")
	if err != nil || job.ID != "job-1" || job.Sent != 3 {
		t.Errorf("BroadcastJob() = %+v, %v", job, err)
	}
}

func TestAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ghost/send-message", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown connection: ghost"})
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.Send(context.Background(), "ghost", "6281111", "hi", nil)
	if !IsNotFound(err) {
		t.Fatalf("Send() error = %v, want 404", err)
	}
	if got := err.Error(); got != "daemon returned 404: unknown connection: ghost" {
		t.Errorf("error = %q", got)
	}

	err = c.do(context.Background(), http.MethodGet, "/broken", nil, nil)
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Status != http.StatusBadGateway || apiErr.Message != "Bad Gateway" {
		t.Errorf("do() error = %#v", err)
	}
}

func TestSendWithFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /acme/send-message", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Number  string `json:"number"`
			Message string `json:"message"`
			File    File   `json:"file"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.File.Name != "a.txt" || string(body.File.Data) != "hello" {
			t.Errorf("file = %+v", body.File)
		}
		writeJSON(w, http.StatusOK, store.Message{Counterparty: body.Number, Body: body.Message, MessageType: "document"})
	})
	c := newTestClient(t, mux)

	rec, err := c.Send(context.Background(), "acme", "6281111", "doc", &File{Name: "a.txt", Data: []byte("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Counterparty != "6281111" || rec.MessageType != "document" {
		t.Errorf("Send() = %+v", rec)
	}
}

func TestMessagesQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /acme/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("direction") != "incoming" || q.Get("q") != "harga" || q.Get("limit") != "5" {
			t.Errorf("query = %v", q)
		}
		writeJSON(w, http.StatusOK, []store.Message{{Body: "harga?"}})
	})
	c := newTestClient(t, mux)

	msgs, err := c.Messages(context.Background(), "acme", MessageQuery{Direction: store.Incoming, Query: "harga", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "harga?" {
		t.Errorf("Messages() = %+v", msgs)
	}
}

func TestDeleteDiscardsBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /schedule/t1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "t1", "deleted": true})
	})
	c := newTestClient(t, mux)
	if err := c.DeleteSchedule(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
}

func TestEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("connectionId") != "acme" || r.URL.Query().Get("kinds") != "status,qr_code" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event:ping\ndata:{}\n\n")
		_, _ = fmt.Fprintf(w, "event:status\ndata:{\"connectionId\":\"acme\",\"timestamp\":\"2024-05-01T00:00:00Z\",\"data\":{\"to\":\"connected\"}}\n\n")
		_, _ = io.WriteString(w, "event:qr_code\ndata:{\"connectionId\":\"acme\",\"data\":\"2@abc\"}\n\n")
	})
	c := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := c.Events(ctx, "acme", "status", "qr_code")
	if err != nil {
		t.Fatal(err)
	}

	var got []Event
	for evt := range ch {
		got = append(got, evt)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(got), got)
	}
	if got[0].Kind != "status" || got[0].ConnectionID != "acme" || string(got[0].Data) != `{"to":"connected"}` {
		t.Errorf("first event = %+v", got[0])
	}
	if !got[0].Timestamp.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", got[0].Timestamp)
	}
	if got[1].Kind != "qr_code" || string(got[1].Data) != `"2@abc"` {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestBaseURLFor(t *testing.T) {
	tests := map[string]string{
		"[::]:8080":      "http://127.0.0.1:8080",
		"0.0.0.0:9000":   "http://127.0.0.1:9000",
		":8080":          "http://127.0.0.1:8080",
		"127.0.0.1:4242": "http://127.0.0.1:4242",
		"[::1]:8080":     "http://[::1]:8080",
	}
	for in, want := range tests {
		if got := BaseURLFor(in); got != want {
			t.Errorf("BaseURLFor(%q) = %q, want %q", in, got, want)
		}
	}
}
