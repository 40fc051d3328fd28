package logger

import "strings"

// Outcomes are a closed set; anything else is dropped from the line.
var outcomes = map[string]bool{
	"ok":        true,
	"fail":      true,
	"fallback":  true,
	"cancelled": true,
}

// normalizeStatus lowercases status values; unknown ones pass through.
func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "canceled" {
		return "cancelled"
	}
	return s
}

func normalizeOutcome(s string) (string, bool) {
	s = normalizeStatus(s)
	return s, outcomes[s]
}

// defaultKeyOrder lists keys that lead every line. The rest follow sorted.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "trace_id", "span_id",
	"update_id", "user_id", "chat_id", "chat_type",
	"handler", "op", "cb_key", "outcome", "duration_ms",
	"messages", "kb",
	"prev_state", "state", "turn", "tier", "history_len",
	"provider", "model", "reply_len",
	"sessions", "count",
	"mode", "listen", "addr", "public_url", "http_code",
	"err", "err_code", "retryable", "attempts", "backoff_ms",
}
