package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/membo/vtubot/core/messaging"
	"github.com/membo/vtubot/core/netutil"
	"github.com/membo/vtubot/core/users"
)

// SendText delivers text to the chat linked to phone. Unlinked numbers yield
// messaging.ErrNoRoute so a chain can fall through to the next transport.
func (b *Bot) SendText(ctx context.Context, to, text string) error {
	link, err := b.links.ByPhone(ctx, users.NormalizePhone(to))
	if errors.Is(err, ErrNotLinked) {
		return messaging.ErrNoRoute
	}
	if err != nil {
		return err
	}
	if _, err := b.bot.Send(tele.ChatID(link.ChatID), text); err != nil {
		return sendError(err)
	}
	return nil
}

// sendError maps Bot API failures to netutil.StatusError so retry and
// classification treat both transports alike. Transport errors pass through wrapped.
func sendError(err error) error {
	if code := statusFromError(err); code > 0 {
		return &netutil.StatusError{Service: "telegram", Code: code, Body: err.Error()}
	}
	return fmt.Errorf("telegram: send: %w", err)
}

func statusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	// Unknown API errors only carry the code as "description (code)".
	msg := err.Error()
	open, closing := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if open >= 0 && closing > open+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : closing])); convErr == nil {
			return code
		}
	}
	return 0
}
