package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/msgproxy/vchannel/internal/apperrors"
	"github.com/msgproxy/vchannel/internal/message"
)

// clientTotalTimeout is the total per-request timeout, spec §4.3.
const clientTotalTimeout = 30 * time.Second

// retriableStatus is the broader status set per the most recent source
// revision (spec §9 Open Questions resolves this in favour of the wider
// set rather than the historical {503}-only check).
var retriableStatus = map[int]bool{
	http.StatusRequestTimeout:     true, // 408
	http.StatusBadGateway:         true, // 502
	http.StatusServiceUnavailable: true, // 503
	http.StatusGatewayTimeout:     true, // 504
}

// HTTPConfig carries the per-channel options recognised for the HTTP
// worker, spec §4.3.
type HTTPConfig struct {
	URL          string
	Method       string // default POST
	ChatID       string
	BotID        string
	StaticFields map[string]string
}

// HTTPWorker is the reference worker: it posts to
// <url>/bot<bot_id>/sendMessage with a form-encoded body and interprets the
// response per spec §4.3.
type HTTPWorker struct {
	endpoint string
	method   string
	static   map[string]string
	client   *http.Client
	log      *slog.Logger
	channel  string
}

// NewHTTPWorker builds an HTTPWorker for the given channel from cfg.
func NewHTTPWorker(channel string, cfg HTTPConfig, log *slog.Logger) *HTTPWorker {
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	static := map[string]string{}
	for k, v := range cfg.StaticFields {
		static[k] = v
	}
	if cfg.ChatID != "" {
		static["chat_id"] = cfg.ChatID
	}

	base := strings.TrimRight(cfg.URL, "/")

	if log == nil {
		log = slog.Default()
	}

	return &HTTPWorker{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", base, cfg.BotID),
		method:   method,
		static:   static,
		log:      log,
		channel:  channel,
	}
}

// Prepare acquires the worker's HTTP client/transport, released when the
// owning channel deactivates. Implements worker.Preparer.
func (w *HTTPWorker) Prepare() (func(), error) {
	w.client = &http.Client{Timeout: clientTotalTimeout}
	return func() {
		w.client.CloseIdleConnections()
		w.client = nil
	}, nil
}

// Operate implements Worker.
func (w *HTTPWorker) Operate(ctx context.Context, m message.Message) error {
	form := url.Values{}
	if m.Text != "" {
		form.Set("text", m.Text)
	}
	for k, v := range m.Params {
		form.Set(k, v)
	}
	for k, v := range w.static {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.NewWorkerExecutionError(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := w.client
	if client == nil {
		client = &http.Client{Timeout: clientTotalTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		w.log.Warn("http worker request failed", "channel", w.channel, "err", err)
		return apperrors.NewWorkerAwaitError(0, err.Error(), nil)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	contentType := resp.Header.Get("Content-Type")

	var ok bool
	var description string
	var bodyRetryAfter any

	if strings.HasPrefix(contentType, "application/json") && gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		ok = parsed.Get("ok").Bool()
		description = parsed.Get("description").String()
		if ra := parsed.Get("retry_after"); ra.Exists() {
			bodyRetryAfter = ra.Num
		}
		if ok {
			w.log.Info("channel accepted the message",
				"channel", w.channel, "message_id", parsed.Get("result.message_id").Int())
		}
	} else {
		description = string(body) // tagged as {origin: text} conceptually; we just carry the text
	}

	if resp.StatusCode == http.StatusOK && ok {
		return nil
	}

	w.log.Warn("channel declined the message", "channel", w.channel, "status", resp.StatusCode, "reason", description)

	if retriableStatus[resp.StatusCode] {
		delay := retryHint(bodyRetryAfter, resp.Header.Get("Retry-After"))
		return apperrors.NewWorkerAwaitError(resp.StatusCode, description, delay)
	}

	if description == "" {
		description = fmt.Sprintf("Not specified, code: %d", resp.StatusCode)
	}
	return apperrors.NewWorkerExecutionError(resp.StatusCode, description)
}

// retryHint implements the precedence of spec §4.3: body retry_after, then
// the Retry-After header, then none.
func retryHint(bodyValue any, header string) any {
	if bodyValue != nil {
		if f, ok := bodyValue.(float64); ok && f != 0 {
			return f
		}
	}
	if header != "" {
		if n, err := strconv.Atoi(header); err == nil {
			return n
		}
		return header
	}
	return nil
}

var (
	_ Worker   = (*HTTPWorker)(nil)
	_ Preparer = (*HTTPWorker)(nil)
)
