// Package vchannel owns the Virtual Channel state machine and its delivery
// loop: the queue-take/backoff/worker-operate cycle that is the hard
// engineering of the proxy (spec §4.6), plus the Collection that builds
// channels from config (spec §4.7).
package vchannel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/msgproxy/vchannel/internal/apperrors"
	"github.com/msgproxy/vchannel/internal/backoff"
	"github.com/msgproxy/vchannel/internal/message"
	"github.com/msgproxy/vchannel/internal/queue"
	"github.com/msgproxy/vchannel/internal/worker"
)

// State is one of the three states in the spec §4.6 table.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LastError is the snapshot returned by GetLastError.
type LastError struct {
	Reason string
	Trace  string
	Stamp  time.Time
}

// Stat is the snapshot returned by GetState.
type Stat struct {
	Sent     int64
	Rejected int64
	InQueue  int
}

// Channel is a Virtual Channel: one Queue + one Worker + one delivery loop,
// per spec §4.6. The delivery loop runs as a dedicated goroutine (the
// "equivalent implementation using threads" spec §5 explicitly allows);
// cancellation is threaded via context.Context rather than an asyncio task
// cancellation.
type Channel struct {
	Name string

	worker worker.Worker
	queue  queue.Queue
	policy backoff.Policy
	log    *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	sent      atomic.Int64
	rejected  atomic.Int64
	errMu     sync.Mutex
	lastError *LastError

	latency *hdrhistogram.Histogram
}

// New constructs an idle Channel around w, q and policy.
func New(name string, w worker.Worker, q queue.Queue, policy backoff.Policy, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		Name:    name,
		worker:  w,
		queue:   q,
		policy:  policy,
		log:     log,
		state:   Idle,
		latency: hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
	}
}

// IsRunning reports whether the delivery loop is active.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Running
}

// Activate starts the delivery loop, resetting counters and last_error, per
// spec §4.6. Fails with RequestExecutionError if already running.
func (c *Channel) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		return apperrors.RequestExecution("Virtual channel already is running")
	}

	release, err := prepareIfPreparer(c.worker)
	if err != nil {
		return apperrors.RequestExecution("worker failed to prepare: " + err.Error())
	}

	c.sent.Store(0)
	c.rejected.Store(0)
	c.errMu.Lock()
	c.lastError = nil
	c.errMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = Running

	c.log.Info("activating virtual channel", "channel", c.Name)

	go c.run(ctx, release)

	return nil
}

// Deactivate cancels the delivery loop, per spec §4.6. A no-op on an idle
// or already-stopped channel (property 6, idempotence).
func (c *Channel) Deactivate() error {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	c.log.Info("deactivating virtual channel", "channel", c.Name)
	cancel()
	<-done

	return nil
}

// AddMessage enqueues m; only accepted while running (spec §4.6 footnote 1).
func (c *Channel) AddMessage(m message.Message) error {
	if !c.IsRunning() {
		return apperrors.TemporaryUnavailable("Virtual channel is not running")
	}
	return c.queue.AddTask(m)
}

// GetState returns a stat snapshot, per spec §4.6.
func (c *Channel) GetState() Stat {
	return Stat{
		Sent:     c.sent.Load(),
		Rejected: c.rejected.Load(),
		InQueue:  c.queue.CurrentItemsCount(),
	}
}

// LatencyPercentiles returns p50/p99 delivery-attempt latency in
// microseconds, ambient to the core stat contract (SPEC_FULL §2 item 16).
func (c *Channel) LatencyPercentiles() (p50, p99 int64) {
	return c.latency.ValueAtPercentile(50), c.latency.ValueAtPercentile(99)
}

// GetLastError returns the last recorded error, optionally clearing it.
func (c *Channel) GetLastError(clear bool) *LastError {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	le := c.lastError
	if clear {
		c.lastError = nil
	}
	return le
}

func (c *Channel) recordError(reason string) {
	c.errMu.Lock()
	c.lastError = &LastError{Reason: reason, Stamp: time.Now()}
	c.errMu.Unlock()
}

// run is the delivery loop body, spec §4.6's central algorithm.
func (c *Channel) run(ctx context.Context, release func()) {
	defer func() {
		if release != nil {
			release()
		}
		c.mu.Lock()
		c.state = Stopped
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		m, err := c.queue.GetTask(ctx) // suspension point #1
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			c.log.Warn("queue take failed", "channel", c.Name, "err", err)
			return
		}

		if !c.deliver(ctx, m) {
			return
		}
	}
}

// deliver runs the attempt loop for a single message. Returns false if the
// channel should abort (cancellation or an unknown error), true otherwise.
func (c *Channel) deliver(ctx context.Context, m message.Message) bool {
	attempt := 0

	for attempt < c.policy.MaxAttempts {
		attempt++

		select {
		case <-ctx.Done():
			c.recordError("Worker was stopped")
			return false
		default:
		}

		start := time.Now()
		err := c.worker.Operate(ctx, m) // suspension point #2
		c.latency.RecordValue(time.Since(start).Microseconds())

		if err == nil {
			c.sent.Add(1)
			return true
		}

		var await *apperrors.WorkerAwaitError
		var exec *apperrors.WorkerExecutionError

		switch {
		case errors.As(err, &await):
			if attempt == c.policy.MaxAttempts {
				c.recordError(await.Error())
				c.rejected.Add(1)
				return true
			}
			wait := c.policy.Wait(attempt, await.Delay)
			c.log.Debug("retrying after backoff", "channel", c.Name, "attempt", attempt, "wait", wait)
			select {
			case <-time.After(wait): // suspension point #3
			case <-ctx.Done():
				c.recordError("Worker was stopped")
				return false
			}
		case errors.As(err, &exec):
			c.recordError(exec.Error())
			c.rejected.Add(1)
			return true
		case errors.Is(err, context.Canceled):
			c.recordError("Worker was stopped")
			return false
		default:
			c.log.Error("unknown error in delivery loop, halting channel", "channel", c.Name, "err", err)
			c.recordError(err.Error())
			c.rejected.Add(1)
			return false
		}
	}

	return true
}

func prepareIfPreparer(w worker.Worker) (func(), error) {
	p, ok := w.(worker.Preparer)
	if !ok {
		return nil, nil
	}
	return p.Prepare()
}
