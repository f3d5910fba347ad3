// Package message defines the unit of work carried through a virtual
// channel's queue to its worker.
package message

import (
	"strings"

	"github.com/google/uuid"

	"github.com/msgproxy/vchannel/internal/apperrors"
)

// Message carries a delivery payload plus a generated identifier, stable
// and unique for the lifetime of the instance.
type Message struct {
	ID      string
	Text    string
	Header  string
	Payload []byte
	Params  map[string]string
}

// New assigns a fresh id and returns an otherwise-empty Message.
func New() Message {
	return Message{ID: uuid.NewString()}
}

// FromRequestData builds a Message out of the three recognised admission
// fields, failing validation when required is true and all three are
// blank. params carries any extra form/JSON fields the caller wants to pass
// through to the worker (e.g. to a chat API's static body fields).
func FromRequestData(text, header string, payload []byte, params map[string]string, required bool) (Message, error) {
	m := New()
	m.Text = text
	m.Header = header
	m.Payload = payload
	m.Params = params

	if required && strings.TrimSpace(text) == "" && strings.TrimSpace(header) == "" && len(payload) == 0 {
		return Message{}, apperrors.RequestParameter("Message could not empty")
	}

	return m, nil
}
