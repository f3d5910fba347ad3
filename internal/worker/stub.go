package worker

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/msgproxy/vchannel/internal/message"
)

// StubConfig carries the options recognised by the Stub worker.
type StubConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Stub is a local/test worker that accepts every message after a random
// delay in [MinDelay, MaxDelay], logging instead of calling out to a real
// transport. Grounded on the original Service/Workers/stub.py, which the
// source carries a literal "replace later" TODO against — this is that
// replacement's config-driven Go counterpart, kept for the same
// local/test role.
type Stub struct {
	channel  string
	minDelay time.Duration
	maxDelay time.Duration
	log      *slog.Logger
}

// NewStub builds a Stub worker for channel from cfg, substituting 1s/5s
// for unset delays and raising MaxDelay to MinDelay when the range is
// inverted.
func NewStub(channel string, cfg StubConfig, log *slog.Logger) *Stub {
	minDelay, maxDelay := cfg.MinDelay, cfg.MaxDelay
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stub{channel: channel, minDelay: minDelay, maxDelay: maxDelay, log: log}
}

// Operate implements Worker.
func (s *Stub) Operate(ctx context.Context, m message.Message) error {
	delay := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span) + 1))
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("after delay, message was sent", "channel", s.channel, "delay", delay, "message_id", m.ID)
	return nil
}

var _ Worker = (*Stub)(nil)
