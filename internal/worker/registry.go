package worker

import (
	"fmt"
	"log/slog"
	"time"
)

// Factory builds a Worker for the named channel from raw config options.
// Registered under a class name in a Registry and resolved at config-load
// time (spec §4.7), mirroring internal/queue's Factory/Registry pair.
type Factory func(channel string, options map[string]any, log *slog.Logger) (Worker, error)

// Registry resolves a config-file "class" name to a Factory. Unknown names
// fail construction, per spec §4.7.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the built-in "HTTP"
// and "Stub" classes.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("HTTP", newHTTPFromOptions)
	r.Register("Stub", newStubFromOptions)
	return r
}

// Register adds or replaces the factory for a class name.
func (r *Registry) Register(class string, f Factory) {
	r.factories[class] = f
}

// Resolve looks up class and returns its Factory, or an error naming the
// unresolved class.
func (r *Registry) Resolve(class string) (Factory, error) {
	f, ok := r.factories[class]
	if !ok {
		return nil, fmt.Errorf("worker: unknown class %q", class)
	}
	return f, nil
}

func newHTTPFromOptions(channel string, options map[string]any, log *slog.Logger) (Worker, error) {
	cfg := HTTPConfig{StaticFields: map[string]string{}}

	if v, ok := options["url"].(string); ok {
		cfg.URL = v
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("worker %q: HTTP class requires a url", channel)
	}
	if v, ok := options["method"].(string); ok {
		cfg.Method = v
	}
	if v, ok := options["bot_id"].(string); ok {
		cfg.BotID = v
	}
	if v, ok := options["chat_id"].(string); ok {
		cfg.ChatID = v
	}
	if fields, ok := options["static_fields"].(map[string]any); ok {
		for k, v := range fields {
			if s, ok := v.(string); ok {
				cfg.StaticFields[k] = s
			}
		}
	}

	return NewHTTPWorker(channel, cfg, log), nil
}

func newStubFromOptions(channel string, options map[string]any, log *slog.Logger) (Worker, error) {
	cfg := StubConfig{}
	if v, ok := options["minDelay"].(int); ok {
		cfg.MinDelay = secondsToDuration(v)
	}
	if v, ok := options["maxDelay"].(int); ok {
		cfg.MaxDelay = secondsToDuration(v)
	}
	return NewStub(channel, cfg, log), nil
}

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
