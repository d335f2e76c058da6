// Package publisher emits run-level events so downstream consumers learn
// when a harvest artifact is ready.
package publisher

import "context"

// Publisher pushes one payload to a named topic and returns a message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
