package vchannel

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/msgproxy/vchannel/internal/backoff"
	"github.com/msgproxy/vchannel/internal/queue"
	"github.com/msgproxy/vchannel/internal/worker"
)

// NamePattern is the HTTP route's channel-name pattern, spec §4.7/§6.
var NamePattern = regexp.MustCompile(`^[\w\-]{4,24}$`)

// WorkerConfig is the "worker" block of a channel config entry, spec §4.7.
type WorkerConfig struct {
	Class   string
	Options map[string]any
}

// QueueConfig is the "queue" block of a channel config entry, spec §4.7.
type QueueConfig struct {
	Class string
	Size  int
}

// ChannelConfig is one entry of the top-level config mapping, spec §4.7/§6.
type ChannelConfig struct {
	Worker        WorkerConfig
	Queue         QueueConfig
	MinRetryAfter int // seconds
	MaxRetryAfter int // seconds
	MaxAttempts   int
	RetryBase     float64
}

// Collection is the Channel Collection of spec §4.7: name -> Virtual
// Channel, built once and immutable thereafter.
type Collection struct {
	channels map[string]*Channel
}

// BuildFromConfig resolves worker/queue classes by name against the given
// registries and constructs one Channel per entry. Unknown names, invalid
// channel names, or invalid worker/queue options fail construction.
func BuildFromConfig(
	cfg map[string]ChannelConfig,
	workers *worker.Registry,
	queues *queue.Registry,
	log *slog.Logger,
) (*Collection, error) {
	if log == nil {
		log = slog.Default()
	}

	channels := make(map[string]*Channel, len(cfg))

	for name, entry := range cfg {
		if !NamePattern.MatchString(name) {
			return nil, fmt.Errorf("vchannel: invalid channel name %q, must match %s", name, NamePattern.String())
		}

		workerFactory, err := workers.Resolve(entry.Worker.Class)
		if err != nil {
			return nil, fmt.Errorf("vchannel: channel %q: %w", name, err)
		}
		w, err := workerFactory(name, entry.Worker.Options, log)
		if err != nil {
			return nil, fmt.Errorf("vchannel: channel %q: worker construction failed: %w", name, err)
		}

		queueFactory, err := queues.Resolve(entry.Queue.Class)
		if err != nil {
			return nil, fmt.Errorf("vchannel: channel %q: %w", name, err)
		}
		if entry.Queue.Size <= 0 {
			return nil, fmt.Errorf("vchannel: channel %q: queue_size must be positive, got %d", name, entry.Queue.Size)
		}
		q := queueFactory(entry.Queue.Size)

		policy := backoff.New(
			secondsToDuration(entry.MinRetryAfter),
			secondsToDuration(entry.MaxRetryAfter),
			entry.RetryBase,
			entry.MaxAttempts,
		)

		channels[name] = New(name, w, q, policy, log.With("channel", name))
	}

	return &Collection{channels: channels}, nil
}

// Get returns the named channel, or false if absent.
func (c *Collection) Get(name string) (*Channel, bool) {
	ch, ok := c.channels[name]
	return ch, ok
}

// Names returns every configured channel name.
func (c *Collection) Names() []string {
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	return names
}

// ActivateAll activates every channel, stopping and returning the first
// error encountered (used at application startup).
func (c *Collection) ActivateAll() error {
	for name, ch := range c.channels {
		if err := ch.Activate(); err != nil {
			return fmt.Errorf("vchannel: activating %q: %w", name, err)
		}
	}
	return nil
}

// DeactivateAll deactivates every channel (used at application shutdown).
func (c *Collection) DeactivateAll() {
	for _, ch := range c.channels {
		_ = ch.Deactivate()
	}
}

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
