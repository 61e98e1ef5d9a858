// Package chat talks to an OpenAI-compatible chat completion API.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/netutil"
)

// NoResponse is returned when the model answers with nothing usable.
const NoResponse = "No response."

const maxErrorBody = 512

// Completer produces a single answer to a user prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DeepSeek is a Completer backed by the DeepSeek chat completions endpoint.
type DeepSeek struct {
	client      *http.Client
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// NewDeepSeek builds a client from the ai config section. A nil client gets the
// shared retrying client.
func NewDeepSeek(cfg config.AIConfig, client *http.Client) *DeepSeek {
	if client == nil {
		client = netutil.NewHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}
	return &DeepSeek{
		client:      client,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first choice.
func (d *DeepSeek) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	body, err := json.Marshal(completionRequest{
		Model:       d.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	answer, err := d.do(req)
	logger.Debug(ctx, "chat", "chat.complete",
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", netutil.Redact(err)),
	)
	return answer, err
}

func (d *DeepSeek) do(req *http.Request) (string, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &netutil.StatusError{Service: "deepseek", Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return NoResponse, nil
	}
	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	if answer == "" {
		return NoResponse, nil
	}
	return answer, nil
}
