// Package whatsapp receives WhatsApp Cloud API webhooks and answers each message.
package whatsapp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/membo/vtubot/core/flow"
	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/messaging"
	"github.com/membo/vtubot/core/users"
)

// Channel tags turns that arrive over WhatsApp.
const Channel = "whatsapp"

// Turner runs one conversation turn.
type Turner interface {
	Handle(ctx context.Context, in flow.Inbound) (string, error)
}

// Payload is the part of the webhook body the bot reads.
type Payload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Extract returns the first message of the payload. ok is false when there is
// no message or its sender has no digits.
func (p Payload) Extract() (flow.Inbound, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return flow.Inbound{}, false
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return flow.Inbound{}, false
	}
	from := users.NormalizePhone(msgs[0].From)
	if from == "" {
		return flow.Inbound{}, false
	}
	return flow.Inbound{
		Identity: from,
		Text:     strings.TrimSpace(msgs[0].Text.Body),
		Channel:  Channel,
	}, true
}

// Webhook serves the WhatsApp callback URL.
type Webhook struct {
	turner      Turner
	sender      messaging.Sender
	verifyToken string
	appSecret   string
}

// NewWebhook builds the webhook handler. Replies go out through sender.
func NewWebhook(turner Turner, sender messaging.Sender, verifyToken, appSecret string) *Webhook {
	return &Webhook{turner: turner, sender: sender, verifyToken: verifyToken, appSecret: appSecret}
}

// Register mounts GET and POST on path.
func (w *Webhook) Register(r gin.IRouter, path string) {
	r.GET(path, w.Verify)
	r.POST(path, Signature(w.appSecret), w.Receive)
}

// Verify answers the subscription handshake.
func (w *Webhook) Verify(c *gin.Context) {
	if c.Query("hub.mode") == "subscribe" && w.verifyToken != "" && c.Query("hub.verify_token") == w.verifyToken {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	c.AbortWithStatus(http.StatusForbidden)
}

// Receive runs a turn for the first message in the body and sends the reply.
func (w *Webhook) Receive(c *gin.Context) {
	ctx := logger.WithChannel(c.Request.Context(), Channel)
	ctx = logger.WithHandler(ctx, "receive")

	var p Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		logger.WA.WarnContext(ctx, "webhook payload rejected",
			slog.String("event", "webhook.decode"),
			slog.String("status", "rejected"),
			slog.String("err", err.Error()),
		)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	in, ok := p.Extract()
	if !ok {
		// status updates and other notifications carry no message
		c.Status(http.StatusOK)
		return
	}
	ctx = logger.WithIdentity(ctx, in.Identity)

	reply, err := w.turner.Handle(ctx, in)
	if err == nil && reply != "" {
		err = w.sender.SendText(ctx, in.Identity, reply)
	}
	if err != nil {
		logger.WA.ErrorContext(ctx, "webhook turn failed",
			slog.String("event", "webhook.turn"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.Status(http.StatusOK)
}
