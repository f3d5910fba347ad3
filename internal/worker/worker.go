// Package worker defines the delivery capability a Virtual Channel drives
// its messages through, plus the reference HTTP worker and a Stub worker
// for local/test channel configs. The capability set is intentionally
// small — operate + prepare — so that config-time resolution by name (see
// Registry) is the only polymorphism the system needs, in the same spirit
// as the teacher's broker.Option functional-options / registered handler.
package worker

import (
	"context"

	"github.com/msgproxy/vchannel/internal/message"
)

// Worker consumes one Message and attempts delivery. Operate returns nil on
// success, an *apperrors.WorkerAwaitError when the attempt is retriable, or
// an *apperrors.WorkerExecutionError when it is terminal.
type Worker interface {
	Operate(ctx context.Context, m message.Message) error
}

// Preparer is implemented by workers that hold an expensive per-channel
// resource (e.g. an HTTP client transport) that must be released when the
// owning channel deactivates. Prepare returns a release func; it is always
// called exactly once by the delivery loop, on every exit path.
type Preparer interface {
	Prepare() (release func(), err error)
}
