package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/netutil"
)

const (
	whatsappTimeout      = 15 * time.Second
	whatsappMaxErrorBody = 512
)

// WhatsApp sends text messages through the WhatsApp Cloud API.
type WhatsApp struct {
	client   *http.Client
	endpoint string
	token    string
}

// NewWhatsApp builds a Cloud API client. A nil client gets the shared retrying client.
func NewWhatsApp(cfg config.WhatsAppConfig, client *http.Client) *WhatsApp {
	if client == nil {
		client = netutil.NewHTTPClient(whatsappTimeout)
	}
	return &WhatsApp{
		client:   client,
		endpoint: fmt.Sprintf("%s/%s/messages", strings.TrimRight(cfg.APIBaseURL, "/"), cfg.PhoneNumberID),
		token:    cfg.Token,
	}
}

type textBody struct {
	Body string `json:"body"`
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// SendText implements Sender.
func (w *WhatsApp) SendText(ctx context.Context, to, text string) error {
	body, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("whatsapp: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, whatsappMaxErrorBody))
		return &netutil.StatusError{Service: "whatsapp", Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
