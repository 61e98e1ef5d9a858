package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/membo/vtubot/core/catalog"
	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/replies"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/users"
	"github.com/membo/vtubot/core/wallet"
)

const minRecipientDigits = 10

func (e *Engine) handleUser(ctx context.Context, sess *session.Session, u *users.User, msg string) (string, error) {
	id := sess.Identity

	switch sess.State {
	case session.StateMenu:
		switch msg {
		case "1":
			return replies.Balance(u.WalletBalance), nil
		case "2":
			return catalog.NetworkMenu(), e.sessions.SetState(ctx, id, session.StateBuyAirtimeNetwork, session.Blank{})
		case "3":
			return catalog.NetworkMenu(), e.sessions.SetState(ctx, id, session.StateBuyDataNetwork, session.Blank{})
		case "4":
			return replies.AskAIMessage, e.sessions.SetState(ctx, id, session.StateAIChat, session.Blank{})
		case "5":
			return replies.Help, nil
		}
		return replies.UserMenu, nil

	case session.StateBuyAirtimeNetwork:
		n, ok := catalog.PickNetwork(msg)
		if !ok {
			return catalog.NetworkMenu(), nil
		}
		return replies.AskRechargePhone, e.sessions.SetState(ctx, id, session.StateBuyAirtimePhone, session.Airtime{Network: n})

	case session.StateBuyAirtimePhone:
		to := users.NormalizePhone(msg)
		if len(to) < minRecipientDigits {
			return replies.InvalidRechargePhone, nil
		}
		form, _ := sess.Form.(session.Airtime)
		if !form.Network.Valid() {
			break
		}
		form.Recipient = to
		return replies.AskAmount, e.sessions.SetState(ctx, id, session.StateBuyAirtimeAmount, form)

	case session.StateBuyAirtimeAmount:
		amount, ok := ParseAmount(msg)
		if !ok {
			return replies.InvalidAmount, nil
		}
		form, _ := sess.Form.(session.Airtime)
		if !form.Network.Valid() || form.Recipient == "" {
			break
		}
		p := wallet.Purchase{Type: wallet.TxAirtime, Network: form.Network, Recipient: form.Recipient}
		return e.purchase(ctx, sess, u, amount, p, replies.AirtimeSuccess(form.Network, form.Recipient, amount))

	case session.StateBuyDataNetwork:
		n, ok := catalog.PickNetwork(msg)
		if !ok {
			return catalog.NetworkMenu(), nil
		}
		return catalog.PlanMenu(n), e.sessions.SetState(ctx, id, session.StateBuyDataPlan, session.Data{Network: n})

	case session.StateBuyDataPlan:
		form, _ := sess.Form.(session.Data)
		if !form.Network.Valid() {
			break
		}
		plan, ok := catalog.FindPlan(form.Network, msg)
		if !ok {
			return catalog.PlanMenu(form.Network), nil
		}
		next := session.Data{Network: form.Network, PlanCode: plan.Code, PlanLabel: plan.Label, PlanAmount: plan.Amount}
		return replies.AskDataPhone, e.sessions.SetState(ctx, id, session.StateBuyDataPhone, next)

	case session.StateBuyDataPhone:
		to := users.NormalizePhone(msg)
		if len(to) < minRecipientDigits {
			return replies.InvalidDataPhone, nil
		}
		form, _ := sess.Form.(session.Data)
		if !form.Network.Valid() || form.PlanCode == "" || !form.PlanAmount.IsPositive() {
			break
		}
		p := wallet.Purchase{Type: wallet.TxData, Network: form.Network, Recipient: to}
		return e.purchase(ctx, sess, u, form.PlanAmount, p, replies.DataSuccess(form.Network, to, form.PlanLabel, form.PlanAmount))

	case session.StateAIChat:
		if msg == "" {
			return replies.AskAIMessage, nil
		}
		answer, err := e.chat.Complete(ctx, msg)
		if err != nil {
			return "", err
		}
		return replies.AIAnswer(answer), e.home(ctx, sess)
	}

	// Unreachable state for a user, or a form that lost its earlier fields.
	return replies.UserMenu, e.home(ctx, sess)
}

// purchase debits the wallet and returns to the menu. The balance check is part
// of the debit itself.
func (e *Engine) purchase(ctx context.Context, sess *session.Session, u *users.User, amount decimal.Decimal, p wallet.Purchase, success string) (string, error) {
	tx, err := e.ledger.Debit(ctx, u.ID, amount, p)
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		logger.Flow.InfoContext(ctx, "purchase declined",
			slog.String("event", "purchase"),
			slog.String("status", "rejected"),
			slog.String("op", string(p.Type)),
			slog.String("amount", amount.String()),
		)
		return replies.InsufficientBalance(), e.home(ctx, sess)
	case errors.Is(err, wallet.ErrUserNotFound):
		reply, _, err := e.sessionError(ctx, sess)
		return reply, err
	case err != nil:
		return "", err
	}

	logger.Flow.InfoContext(ctx, "purchase completed",
		slog.String("event", "purchase"),
		slog.String("status", "ok"),
		slog.String("op", string(p.Type)),
		slog.String("tx_id", tx.ID),
		slog.String("network", string(p.Network)),
		slog.String("recipient", p.Recipient),
		slog.String("amount", amount.String()),
	)
	return success, e.home(ctx, sess)
}
