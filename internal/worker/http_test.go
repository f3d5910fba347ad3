package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/msgproxy/vchannel/internal/apperrors"
	"github.com/msgproxy/vchannel/internal/message"
)

func TestHTTPWorkerSuccess(t *testing.T) {
	var gotPath string
	var gotText string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotText = r.Form.Get("text")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	}))
	defer srv.Close()

	hw := NewHTTPWorker("test", HTTPConfig{URL: srv.URL, BotID: "123"}, nil)
	release, err := hw.Prepare()
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer release()

	m := message.New()
	m.Text = "hello"

	if err := hw.Operate(context.Background(), m); err != nil {
		t.Fatalf("operate: %v", err)
	}

	wantPath := "/bot123/sendMessage"
	if gotPath != wantPath {
		t.Fatalf("got path %q, want %q", gotPath, wantPath)
	}
	if gotText != "hello" {
		t.Fatalf("got text %q, want %q", gotText, "hello")
	}
}

func TestHTTPWorkerRetriableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hw := NewHTTPWorker("test", HTTPConfig{URL: srv.URL, BotID: "1"}, nil)

	err := hw.Operate(context.Background(), message.New())
	var await *apperrors.WorkerAwaitError
	if !errors.As(err, &await) {
		t.Fatalf("expected WorkerAwaitError, got %v", err)
	}
	if await.Delay != "7" && await.Delay != 7 {
		t.Fatalf("expected retry hint 7, got %v", await.Delay)
	}
}

func TestHTTPWorkerRetriableStatusBodyHintWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "99")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"ok":false,"retry_after":5}`))
	}))
	defer srv.Close()

	hw := NewHTTPWorker("test", HTTPConfig{URL: srv.URL, BotID: "1"}, nil)

	err := hw.Operate(context.Background(), message.New())
	var await *apperrors.WorkerAwaitError
	if !errors.As(err, &await) {
		t.Fatalf("expected WorkerAwaitError, got %v", err)
	}
	if f, ok := await.Delay.(float64); !ok || f != 5 {
		t.Fatalf("expected body retry_after=5 to win, got %v", await.Delay)
	}
}

func TestHTTPWorkerTerminalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"bad"}`))
	}))
	defer srv.Close()

	hw := NewHTTPWorker("test", HTTPConfig{URL: srv.URL, BotID: "1"}, nil)

	err := hw.Operate(context.Background(), message.New())
	var exec *apperrors.WorkerExecutionError
	if !errors.As(err, &exec) {
		t.Fatalf("expected WorkerExecutionError, got %v", err)
	}
	if exec.Reason != "bad" {
		t.Fatalf("expected reason %q, got %q", "bad", exec.Reason)
	}
}

func TestHTTPWorkerTerminalFailureSynthesizedReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	hw := NewHTTPWorker("test", HTTPConfig{URL: srv.URL, BotID: "1"}, nil)

	err := hw.Operate(context.Background(), message.New())
	var exec *apperrors.WorkerExecutionError
	if !errors.As(err, &exec) {
		t.Fatalf("expected WorkerExecutionError, got %v", err)
	}
	if exec.Reason != "Not specified, code: 400" {
		t.Fatalf("unexpected synthesized reason: %q", exec.Reason)
	}
}

func TestHTTPWorkerEndpointConstruction(t *testing.T) {
	hw := NewHTTPWorker("test", HTTPConfig{URL: "https://api.example.com/", BotID: "abc"}, nil)
	want := "https://api.example.com/botabc/sendMessage"
	if hw.endpoint != want {
		t.Fatalf("got endpoint %q, want %q", hw.endpoint, want)
	}
}

func TestHTTPWorkerStaticFieldsAndChatID(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = r.Form
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	hw := NewHTTPWorker("test", HTTPConfig{
		URL:          srv.URL,
		BotID:        "1",
		ChatID:       "chat-1",
		StaticFields: map[string]string{"parse_mode": "HTML"},
	}, nil)

	if err := hw.Operate(context.Background(), message.New()); err != nil {
		t.Fatalf("operate: %v", err)
	}

	if gotForm.Get("chat_id") != "chat-1" {
		t.Fatalf("expected chat_id forwarded, got %q", gotForm.Get("chat_id"))
	}
	if gotForm.Get("parse_mode") != "HTML" {
		t.Fatalf("expected static field forwarded, got %q", gotForm.Get("parse_mode"))
	}
}
