package admission

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/msgproxy/vchannel/internal/apperrors"
	"github.com/msgproxy/vchannel/internal/message"
	"github.com/msgproxy/vchannel/internal/vchannel"
)

// ping implements GET /api/ping, spec §4.8.
func (s *server) ping(c *fiber.Ctx) error {
	if s.app.Maintenance() {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(s.app.RetryAfterSeconds))
		return c.Status(fiber.StatusServiceUnavailable).SendString("FAIL")
	}
	return c.Status(fiber.StatusOK).SendString("OK")
}

// sendRequest is the body shape POST /api/send/<channel> accepts, form or
// JSON, per spec §4.8.
type sendRequest struct {
	Text    string            `json:"text" form:"text"`
	Header  string            `json:"header" form:"header"`
	Payload string            `json:"payload" form:"payload"`
	Message string            `json:"message" form:"message"` // scenario S1's field name
	Params  map[string]string `json:"params" form:"params"`
}

// send implements POST /api/send/<channel>, spec §4.8.
func (s *server) send(c *fiber.Ctx) error {
	channel := c.Params("channel")

	ch, ok := s.app.Channels.Get(channel)
	if !ok {
		return apperrors.RequestParameter("Unknown channel " + channel)
	}

	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.RequestParameter(err.Error())
	}

	text := req.Text
	if text == "" {
		text = req.Message
	}

	m, err := message.FromRequestData(text, req.Header, []byte(req.Payload), req.Params, true)
	if err != nil {
		return err
	}

	if err := ch.AddMessage(m); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "success"})
}

// statResponse is the body GET /api/stat/<channel> returns, spec §4.8 plus
// the ambient latency percentiles of SPEC_FULL §2 item 16.
type statResponse struct {
	ChannelStat channelStat `json:"channel_stat"`
	IsRunning   bool        `json:"is_running"`
	LastError   *errorBody  `json:"last_error"`
}

type channelStat struct {
	WasSend     int64 `json:"was_send"`
	WasRejected int64 `json:"was_rejected"`
	InQueue     int   `json:"in_queue"`
	P50Micros   int64 `json:"p50_micros"`
	P99Micros   int64 `json:"p99_micros"`
}

type errorBody struct {
	Reason string `json:"reason"`
	Stamp  string `json:"stamp"`
}

// stat implements GET /api/stat/<channel>, spec §4.8.
func (s *server) stat(c *fiber.Ctx) error {
	channel := c.Params("channel")

	ch, ok := s.app.Channels.Get(channel)
	if !ok {
		return apperrors.RequestParameter("Unknown channel " + channel)
	}

	return c.Status(fiber.StatusOK).JSON(statSnapshot(ch))
}

// statSnapshot builds the JSON-facing stat body from a live channel.
func statSnapshot(ch *vchannel.Channel) statResponse {
	st := ch.GetState()
	p50, p99 := ch.LatencyPercentiles()

	resp := statResponse{
		ChannelStat: channelStat{
			WasSend:     st.Sent,
			WasRejected: st.Rejected,
			InQueue:     st.InQueue,
			P50Micros:   p50,
			P99Micros:   p99,
		},
		IsRunning: ch.IsRunning(),
	}

	if le := ch.GetLastError(false); le != nil {
		resp.LastError = &errorBody{Reason: le.Reason, Stamp: le.Stamp.Format(time.RFC3339)}
	}

	return resp
}
