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

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// enum describes a field whose values come from a closed vocabulary.
// Strict enums drop values outside the vocabulary; lenient ones keep them lowercased.
type enum struct {
	values map[string]struct{}
	strict bool
}

func newEnum(strict bool, values ...string) enum {
	e := enum{values: make(map[string]struct{}, len(values)), strict: strict}
	for _, v := range values {
		e.values[v] = struct{}{}
	}
	return e
}

func (e enum) normalize(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}
	if _, ok := e.values[v]; ok || !e.strict {
		return v, true
	}
	return "", false
}

// enumFields lists the vocabularies enforced on every record.
var enumFields = map[string]enum{
	"status": newEnum(false,
		"ok", "fail", "error", "skip", "retry", "rate_limited", "cancelled", "suppressed",
	),
	// outcome tags the user-visible result of a handled update.
	"outcome": newEnum(true,
		"ok", "noop", "reprompt", "fail", "cancelled", "rate_limited", "suppressed",
		"unknown", "pending", "awaiting_input", "already_resolved", "fulfillment_failed",
	),
	"from_status":   newEnum(false, "pending", "completed", "failed", "cancelled"),
	"to_status":     newEnum(false, "pending", "completed", "failed", "cancelled"),
	"delivery_type": newEnum(false, "code", "id", "email", "phone", "manual"),
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"bot",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"action",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"order_id",
	"category_id",
	"delivery_type",
	"from_status",
	"to_status",
	"amount",
	"state",
	"count",
	"payload",
	"username",
	"addr",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
}
