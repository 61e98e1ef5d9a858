package whatsapp

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/membo/vtubot/core/logger"
)

const (
	// HeaderSignature carries "sha256=<hex hmac>" of the raw request body.
	HeaderSignature = "X-Hub-Signature-256"

	maxBodyBytes = 1 << 20
)

// Sign returns the X-Hub-Signature-256 value of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether header is a correct signature of body.
func ValidSignature(secret, header string, body []byte) bool {
	algo, provided, ok := strings.Cut(header, "=")
	if !ok || algo != "sha256" || provided == "" {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Signature rejects requests whose body is not signed with the app secret.
// The raw body is restored for later handlers.
func Signature(appSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(HeaderSignature)
		if header == "" {
			reject(c, "missing")
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))

		if !ValidSignature(appSecret, header, raw) {
			reject(c, "mismatch")
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, reason string) {
	logger.WA.WarnContext(c.Request.Context(), "webhook signature rejected",
		slog.String("event", "webhook.signature"),
		slog.String("status", "rejected"),
		slog.String("cause", reason),
	)
	c.AbortWithStatus(http.StatusUnauthorized)
}
