package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/replies"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/users"
	"github.com/membo/vtubot/core/wallet"
)

func (e *Engine) handleAdmin(ctx context.Context, sess *session.Session, msg string) (string, error) {
	id := sess.Identity

	switch sess.State {
	case session.StateAdminMenu:
		switch msg {
		case "1":
			n, err := e.users.Count(ctx)
			if err != nil {
				return "", err
			}
			return replies.TotalUsers(n), nil
		case "2":
			n, err := e.ledger.CountTransactions(ctx)
			if err != nil {
				return "", err
			}
			return replies.TotalTransactions(n), nil
		case "3":
			sum, err := e.ledger.SumSuccessful(ctx)
			if err != nil {
				return "", err
			}
			return replies.TotalRevenue(sum), nil
		case "4":
			return replies.AskBroadcast, e.sessions.SetState(ctx, id, session.StateAdminBroadcast, session.Blank{})
		case "5":
			return replies.AskCreditPhone, e.sessions.SetState(ctx, id, session.StateAdminCreditPhone, session.Blank{})
		}
		return replies.AdminMenu, nil

	case session.StateAdminBroadcast:
		if msg == "" {
			return replies.AskBroadcast, nil
		}
		sum, err := e.broadcast.Send(ctx, msg)
		if err != nil {
			return "", err
		}
		return replies.BroadcastSent(sum.Delivered, sum.Total, sum.Failed), e.home(ctx, sess)

	case session.StateAdminCreditPhone:
		phone := users.NormalizePhone(msg)
		if len(phone) < minRecipientDigits {
			return replies.InvalidCreditPhone, nil
		}
		return replies.AskAmount, e.sessions.SetState(ctx, id, session.StateAdminCreditAmount, session.Credit{TargetPhone: phone})

	case session.StateAdminCreditAmount:
		amount, ok := ParseAmount(msg)
		if !ok {
			return replies.InvalidAmount, nil
		}
		form, _ := sess.Form.(session.Credit)
		target, err := e.users.FindByPhone(ctx, form.TargetPhone)
		if errors.Is(err, users.ErrNotFound) {
			return replies.UserNotFound(), e.home(ctx, sess)
		}
		if err != nil {
			return "", err
		}
		err = e.ledger.Credit(ctx, target.ID, amount)
		if errors.Is(err, wallet.ErrUserNotFound) {
			return replies.UserNotFound(), e.home(ctx, sess)
		}
		if err != nil {
			return "", err
		}
		logger.Flow.InfoContext(ctx, "wallet credited by admin",
			slog.String("event", "admin.credit"),
			slog.String("status", "ok"),
			slog.String("user_id", target.ID),
			slog.String("amount", amount.String()),
		)
		return replies.WalletCredited(form.TargetPhone, amount), e.home(ctx, sess)
	}

	return replies.AdminMenu, e.home(ctx, sess)
}
