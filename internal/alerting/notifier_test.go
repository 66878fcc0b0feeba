package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWebhookNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Broadcast(context.Background(), "24h < 90%:\n- Alpha - 70.00%"); err != nil {
		t.Fatalf("Broadcast should succeed: %v", err)
	}
	if received["content"] != "24h < 90%:\n- Alpha - 70.00%" {
		t.Fatalf("unexpected payload: %#v", received)
	}
}

func TestWebhookNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Broadcast(context.Background(), "hello"); err == nil {
		t.Fatal("non-2xx status should fail")
	}
}

type stubBroadcaster struct {
	got []string
	err error
}

func (s *stubBroadcaster) Broadcast(_ context.Context, text string) error {
	s.got = append(s.got, text)
	return s.err
}

func TestFanoutAttemptsEveryDestination(t *testing.T) {
	failing := &stubBroadcaster{err: errors.New("down")}
	healthy := &stubBroadcaster{}

	err := Fanout{failing, healthy}.Broadcast(context.Background(), "msg")
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(healthy.got) != 1 || healthy.got[0] != "msg" {
		t.Fatalf("healthy destination should still receive: %#v", healthy.got)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
