package httpapi

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"

	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/security"
	"github.com/membo/vtubot/core/users"
)

const (
	// HeaderRequestID is echoed back on every response.
	HeaderRequestID = "X-Request-Id"

	claimsKey = "access_claims"
)

// RequestID assigns a ksuid to requests that arrive without one and stores it in the context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if rid == "" || len(rid) > 64 {
			rid = ksuid.New().String()
		}
		c.Writer.Header().Set(HeaderRequestID, rid)
		c.Request = c.Request.WithContext(logger.WithRID(c.Request.Context(), rid))
		c.Next()
	}
}

// AccessLog writes one line per request to the HTTP component logger.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case c.Request.URL.Path == "/healthz":
			level = slog.LevelDebug
		}
		logger.LogEvent(c.Request.Context(), logger.HTTP, level, "http.request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("http_code", status),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}

// Recovery turns a handler panic into a 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP.ErrorContext(c.Request.Context(), "panic recovered",
					slog.String("event", "http.panic"),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			}
		}()
		c.Next()
	}
}

// RequireAdmin accepts bearer tokens carrying the ADMIN role.
func RequireAdmin(tokens *security.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		if claims.Role != string(users.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}
