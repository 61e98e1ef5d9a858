// Package messaging delivers outbound text messages to phone identities.
package messaging

import (
	"context"
	"errors"
)

// ErrNoRoute is returned by a Sender that cannot reach the recipient.
var ErrNoRoute = errors.New("messaging: no route to recipient")

// Sender delivers one text message to a phone identity.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, text string) error

// SendText implements Sender.
func (f SenderFunc) SendText(ctx context.Context, to, text string) error {
	return f(ctx, to, text)
}

// Chain tries senders in order and stops at the first one that has a route.
type Chain []Sender

// SendText implements Sender.
func (c Chain) SendText(ctx context.Context, to, text string) error {
	for _, s := range c {
		if s == nil {
			continue
		}
		err := s.SendText(ctx, to, text)
		if errors.Is(err, ErrNoRoute) {
			continue
		}
		return err
	}
	return ErrNoRoute
}
