package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.SendMessage(context.Background(), "reserve alert"); err != nil {
		t.Fatalf("SendMessage should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id incorrect: %#v", received)
	}
	if received["text"] != "reserve alert" {
		t.Fatalf("text incorrect: %#v", received)
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.SendMessage(context.Background(), "reserve alert"); err == nil {
		t.Fatal("ok=false should return an error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.SendMessage(context.Background(), "reserve alert"); err == nil {
		t.Fatal("502 should return an error")
	}
}

func TestWebhookNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())

	if err := notifier.SendMessage(context.Background(), "reserve alert"); err != nil {
		t.Fatalf("SendMessage should succeed: %v", err)
	}
	if received["text"] != "reserve alert" {
		t.Fatalf("payload incorrect: %#v", received)
	}
}

func TestWebhookNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())

	if err := notifier.SendMessage(context.Background(), "reserve alert"); err == nil {
		t.Fatal("500 should return an error")
	}
}
