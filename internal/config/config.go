// Package config loads the YAML channel configuration described in spec
// §4.7/§6: a top-level mapping of channel_name -> {worker, queue, retry
// tuning}. A malformed file or an entry without worker.class fails in Load;
// an invalid channel name fails in vchannel.BuildFromConfig at startup.
// Either way the error surfaces before the first request (SPEC_FULL §2
// item 11).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/msgproxy/vchannel/internal/vchannel"
)

// rawWorker/rawQueue/rawChannel mirror the YAML shape directly; Load
// translates them into vchannel.ChannelConfig, keeping the wire format
// decoupled from the internal type.
type rawWorker struct {
	Class   string         `yaml:"class"`
	Options map[string]any `yaml:"options"`
}

type rawQueue struct {
	Class     string `yaml:"class"`
	QueueSize int    `yaml:"queue_size"`
}

type rawChannel struct {
	Worker        rawWorker `yaml:"worker"`
	Queue         rawQueue  `yaml:"queue"`
	MinRetryAfter int       `yaml:"minRetryAfter"`
	MaxRetryAfter int       `yaml:"maxRetryAfter"`
	MaxAttempts   int       `yaml:"maxAttempts"`
	RetryBase     float64   `yaml:"retryBase"`
}

// Load reads and validates the channel config file at path, returning a map
// ready to hand to vchannel.BuildFromConfig. Channel name validation
// against the route pattern happens in BuildFromConfig; Load only checks
// the file parses and each entry names a worker class.
func Load(path string) (map[string]vchannel.ChannelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var raw map[string]rawChannel
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	out := make(map[string]vchannel.ChannelConfig, len(raw))
	for name, entry := range raw {
		if entry.Worker.Class == "" {
			return nil, fmt.Errorf("config: channel %q is missing worker.class", name)
		}
		if entry.Queue.Class == "" {
			entry.Queue.Class = "BoundedQueue"
		}

		out[name] = vchannel.ChannelConfig{
			Worker: vchannel.WorkerConfig{
				Class:   entry.Worker.Class,
				Options: entry.Worker.Options,
			},
			Queue: vchannel.QueueConfig{
				Class: entry.Queue.Class,
				Size:  entry.Queue.QueueSize,
			},
			MinRetryAfter: entry.MinRetryAfter,
			MaxRetryAfter: entry.MaxRetryAfter,
			MaxAttempts:   entry.MaxAttempts,
			RetryBase:     entry.RetryBase,
		}
	}

	return out, nil
}
