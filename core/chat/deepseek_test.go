package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/netutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *DeepSeek {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewDeepSeek(config.AIConfig{
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/",
		Model:       "deepseek-chat",
		MaxTokens:   300,
		Temperature: 0.7,
	}, srv.Client())
}

func TestCompleteSendsPrompt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		assert.Equal(t, 300, req.MaxTokens)
		assert.InDelta(t, 0.7, req.Temperature, 1e-9)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, message{Role: "user", Content: "what is VTU?"}, req.Messages[0])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Virtual top-up.  "}}]}`))
	})

	answer, err := c.Complete(context.Background(), "what is VTU?")
	require.NoError(t, err)
	assert.Equal(t, "Virtual top-up.", answer)
}

func TestCompleteEmptyAnswer(t *testing.T) {
	for _, body := range []string{`{"choices":[]}`, `{"choices":[{"message":{"content":"   "}}]}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		answer, err := c.Complete(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, NoResponse, answer)
	}
}

func TestCompleteStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	})

	_, err := c.Complete(context.Background(), "hi")
	var statusErr *netutil.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, "invalid key", statusErr.Body)
}
