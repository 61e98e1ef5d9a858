// Package middleware holds the telebot middleware chain shared by every handler.
package middleware

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

// StoreContext attaches ctx to the update so handlers reuse the same request id.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context stored by Logging, or context.Background.
func ContextFrom(c tele.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(contextKey).(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}
