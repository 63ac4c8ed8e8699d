package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/store"
)

// verify checks a signature the way a receiver would.
func verify(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

type staticSettings store.WebhookSettings

func (s staticSettings) WebhookSettings() (store.WebhookSettings, error) {
	return store.WebhookSettings(s), nil
}

type failingSettings struct{}

func (failingSettings) WebhookSettings() (store.WebhookSettings, error) {
	return store.WebhookSettings{}, errors.New("db locked")
}

func TestSignMatchesIndependentHMAC(t *testing.T) {
	body := []byte(`{"a":1}`)
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if got := Sign("s", body); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
	if !verify("s", body, want) {
		t.Error("verify() rejected a valid signature")
	}
	if verify("s", []byte(`{"a":2}`), want) {
		t.Error("verify() accepted a signature for a different body")
	}
	if verify("", body, want) {
		t.Error("verify() must reject when no secret is configured")
	}
}

func TestWebhookDeliverSignsBody(t *testing.T) {
	var gotSig, gotEvent string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(staticSettings{URL: srv.URL, Secret: "s"}, srv.Client())
	evt := Event{Event: EventMessageReceived, ConnectionID: "acme", Timestamp: time.Unix(1700000000, 0).UTC(), Data: map[string]any{"body": "halo"}}
	if err := w.Deliver(context.Background(), evt); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if gotEvent != EventMessageReceived {
		t.Errorf("event header = %q", gotEvent)
	}
	if !verify("s", gotBody, gotSig) {
		t.Errorf("signature %q does not match body %s", gotSig, gotBody)
	}
}

func TestWebhookWithoutSecretSendsNoSignature(t *testing.T) {
	var hasSig atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSig.Store(r.Header.Get(SignatureHeader) != "")
	}))
	defer srv.Close()

	w := NewWebhook(staticSettings{URL: srv.URL}, srv.Client())
	if err := w.Deliver(context.Background(), Event{Event: EventStatus}); err != nil {
		t.Fatal(err)
	}
	if hasSig.Load() {
		t.Error("signature header sent without a secret")
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(staticSettings{URL: srv.URL}, srv.Client())
	w.delay = time.Millisecond
	if err := w.Deliver(context.Background(), Event{Event: EventStatus}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWebhook(staticSettings{URL: srv.URL}, srv.Client())
	w.delay = time.Millisecond
	if err := w.Deliver(context.Background(), Event{Event: EventStatus}); err == nil {
		t.Fatal("Deliver() should fail on 401")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWebhookNoURLIsNoop(t *testing.T) {
	w := NewWebhook(staticSettings{}, nil)
	if err := w.Deliver(context.Background(), Event{Event: EventStatus}); err != nil {
		t.Errorf("Deliver() error = %v, want nil", err)
	}

	w = NewWebhook(failingSettings{}, nil)
	if err := w.Deliver(context.Background(), Event{Event: EventStatus}); err == nil {
		t.Error("Deliver() should surface settings errors")
	}
}
