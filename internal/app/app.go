// Package app wires the Application State of spec §3: the process-wide
// maintenance flag and its two lifecycle transitions, plus the Channel
// Collection and ambient health monitor it serves over HTTP.
package app

import (
	"log/slog"
	"sync/atomic"

	"github.com/msgproxy/vchannel/internal/health"
	"github.com/msgproxy/vchannel/internal/vchannel"
)

// Application is the Application State of spec §3. maintenance starts
// true, flips to false when the server begins serving, and flips back to
// true before teardown (spec §3, §9 design notes).
type Application struct {
	Channels          *vchannel.Collection
	Health            *health.Monitor
	RetryAfterSeconds int

	maintenance atomic.Bool
	log         *slog.Logger
}

// New builds an Application in maintenance mode, per spec §3's init=true.
func New(channels *vchannel.Collection, retryAfterSeconds int, log *slog.Logger) *Application {
	if log == nil {
		log = slog.Default()
	}
	a := &Application{
		Channels:          channels,
		Health:            health.NewMonitor(0),
		RetryAfterSeconds: retryAfterSeconds,
		log:               log,
	}
	a.maintenance.Store(true)
	return a
}

// Start activates every channel and flips maintenance off, so admission
// begins accepting writes.
func (a *Application) Start() error {
	a.log.Info("starting application, activating channels")
	if err := a.Channels.ActivateAll(); err != nil {
		return err
	}
	a.maintenance.Store(false)
	a.log.Info("application serving")
	return nil
}

// Shutdown flips maintenance back on then deactivates every channel, the
// mirror image of Start.
func (a *Application) Shutdown() {
	a.log.Info("shutting down application")
	a.maintenance.Store(true)
	a.Channels.DeactivateAll()
}

// Maintenance reports whether the process is in maintenance mode. Safe for
// concurrent reads while Start/Shutdown write it (spec §5, §9).
func (a *Application) Maintenance() bool {
	return a.maintenance.Load()
}
