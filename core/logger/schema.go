package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rejected":     "rejected",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
}

// maskedKeys hold phone numbers and are masked before output.
var maskedKeys = map[string]struct{}{
	"identity":  {},
	"phone":     {},
	"recipient": {},
	"to":        {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := allowedStatus[status]; ok {
		return mapped
	}
	return status
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"ts_unix_nano",
	"channel",
	"identity",
	"handler",
	"state",
	"next_state",
	"role",
	"user_id",
	"op",
	"duration_ms",
	"method",
	"path",
	"http_code",
	"network",
	"recipient",
	"amount",
	"balance",
	"tx_id",
	"total",
	"delivered",
	"failed",
	"mode",
	"listen",
	"driver",
	"host",
	"port",
	"db",
	"err",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
}
