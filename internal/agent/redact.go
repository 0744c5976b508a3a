package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	redacted = "[redacted]"
	// maxLoggedString caps string values copied into events and session logs.
	// Image tool output carries base64 payloads that are already stored.
	maxLoggedString = 512
)

// credentialKeys are matched case-insensitively after stripping '-' and '_'
var credentialKeys = []string{"passkey", "password", "apikey", "token", "secret", "authorization"}

func isCredentialKey(k string) bool {
	k = strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(k))
	for _, c := range credentialKeys {
		if strings.Contains(k, c) {
			return true
		}
	}
	return false
}

// Scrub prepares a JSON document for events and session logs: credential-like
// keys are masked and long strings are shortened. Input that is not JSON is
// only shortened.
func Scrub(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return clip(raw)
	}
	b, err := json.Marshal(scrubValue(v))
	if err != nil {
		return clip(raw)
	}
	return string(b)
}

func scrubValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			if isCredentialKey(k) {
				out[k] = redacted
				continue
			}
			out[k] = scrubValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = scrubValue(t[i])
		}
		return out
	case string:
		return clip(t)
	default:
		return v
	}
}

func clip(s string) string {
	if len(s) <= maxLoggedString {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:maxLoggedString], len(s))
}
