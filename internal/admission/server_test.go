package admission

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	appstate "github.com/msgproxy/vchannel/internal/app"
	"github.com/msgproxy/vchannel/internal/queue"
	"github.com/msgproxy/vchannel/internal/vchannel"
	"github.com/msgproxy/vchannel/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildTestApp(t *testing.T, channelName string, upstream *httptest.Server, queueSize int) *appstate.Application {
	t.Helper()

	cfg := map[string]vchannel.ChannelConfig{
		channelName: {
			Worker: vchannel.WorkerConfig{
				Class: "HTTP",
				Options: map[string]any{
					"url":    upstream.URL,
					"bot_id": "test",
				},
			},
			Queue:       vchannel.QueueConfig{Class: "BoundedQueue", Size: queueSize},
			MaxAttempts: 2,
		},
	}

	collection, err := vchannel.BuildFromConfig(cfg, worker.NewRegistry(), queue.NewRegistry(), discardLogger())
	if err != nil {
		t.Fatalf("build collection: %v", err)
	}

	a := appstate.New(collection, 30, discardLogger())
	if err := a.Start(); err != nil {
		t.Fatalf("start app: %v", err)
	}
	t.Cleanup(a.Shutdown)

	return a
}

func postForm(t *testing.T, fiberApp *fiber.App, path string, form url.Values) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, err := fiberApp.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestScenarioS1HappyPath(t *testing.T) {
	var gotForm url.Values
	var calls int32

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = r.ParseForm()
		gotForm = r.Form
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	}))
	defer upstream.Close()

	a := buildTestApp(t, "TestChannel", upstream, 10)
	app := NewServer(a, discardLogger())

	form := url.Values{"text": {"hello"}}
	resp := postForm(t, app, "/api/send/TestChannel", form)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&calls) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 upstream call, got %d", calls)
	}
	if gotForm.Get("text") != "hello" {
		t.Fatalf("expected text=hello forwarded, got %q", gotForm.Get("text"))
	}

	ch, _ := a.Channels.Get("TestChannel")
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && ch.GetState().Sent != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	st := ch.GetState()
	if st.Sent != 1 || st.Rejected != 0 || st.InQueue != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestScenarioS4TerminalReject(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"bad"}`))
	}))
	defer upstream.Close()

	a := buildTestApp(t, "TestChannel", upstream, 10)
	app := NewServer(a, discardLogger())

	resp := postForm(t, app, "/api/send/TestChannel", url.Values{"text": {"x"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 (enqueued), got %d", resp.StatusCode)
	}

	ch, _ := a.Channels.Get("TestChannel")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && ch.GetState().Rejected != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	st := ch.GetState()
	if st.Sent != 0 || st.Rejected != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestScenarioS5QueueFull(t *testing.T) {
	block := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()
	defer close(block)

	a := buildTestApp(t, "TestChannel", upstream, 3)
	app := NewServer(a, discardLogger())

	// The first message is picked up by the delivery loop and blocks in
	// the upstream handler, occupying the single in-flight worker slot
	// without consuming a queue slot. Let that happen before filling the
	// now-empty queue, mirroring the scenario's "worker very slow" setup.
	resp := postForm(t, app, "/api/send/TestChannel", url.Values{"text": {"x"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("priming request: expected 200, got %d", resp.StatusCode)
	}
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		resp := postForm(t, app, "/api/send/TestChannel", url.Values{"text": {"x"}})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp = postForm(t, app, "/api/send/TestChannel", url.Values{"text": {"x"}})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on full queue, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var decoded map[string]string
	json.Unmarshal(body, &decoded)
	if !strings.Contains(decoded["error"], "full") {
		t.Fatalf("expected full-queue error message, got %q", decoded["error"])
	}
}

func TestScenarioS6UnknownChannelEmptyMessageMaintenance(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	a := buildTestApp(t, "TestChannel", upstream, 10)
	app := NewServer(a, discardLogger())

	resp := postForm(t, app, "/api/send/no_such", url.Values{"text": {"x"}})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown channel, got %d", resp.StatusCode)
	}

	resp = postForm(t, app, "/api/send/TestChannel", url.Values{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty message, got %d", resp.StatusCode)
	}

	a.Shutdown()

	resp = postForm(t, app, "/api/send/TestChannel", url.Values{"text": {"x"}})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 in maintenance, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Service is temporary unawailable") {
		t.Fatalf("unexpected maintenance error body: %s", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	pingResp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if pingResp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 FAIL from ping in maintenance, got %d", pingResp.StatusCode)
	}
	if pingResp.Header.Get("Retry-After") != "30" {
		t.Fatalf("expected Retry-After: 30, got %q", pingResp.Header.Get("Retry-After"))
	}
}

func TestPingOK(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	a := buildTestApp(t, "TestChannel", upstream, 10)
	app := NewServer(a, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Fatalf("expected body %q, got %q", "OK", body)
	}
}

func TestStatEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	a := buildTestApp(t, "TestChannel", upstream, 10)
	app := NewServer(a, discardLogger())

	postForm(t, app, "/api/send/TestChannel", url.Values{"text": {"x"}})

	time.Sleep(100 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/stat/TestChannel", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var decoded statResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.IsRunning {
		t.Fatal("expected is_running=true")
	}
	if decoded.ChannelStat.WasSend != 1 {
		t.Fatalf("expected was_send=1, got %d", decoded.ChannelStat.WasSend)
	}
}
