// Package redact masks key material before it reaches logs or the run store.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	neverPersistKey = "never_persist"
	redactedSecret  = "[REDACTED_SECRET]"
)

// sensitiveKeys are metadata keys whose values are always masked.
var sensitiveKeys = map[string]struct{}{
	"key":        {},
	"key_hex":    {},
	"iv":         {},
	"iv_hex":     {},
	"secret":     {},
	"plaintext":  {},
	"suffix":     {},
	"hidden_key": {},
}

var (
	kvSecretRe = regexp.MustCompile(`(?i)\b((?:key|iv|secret)(?:_hex)?\s*[:=]\s*)(['"]?)([^\s'",&]{4,})(['"]?)`)
	longHexRe  = regexp.MustCompile(`\b(?:[0-9a-fA-F]{2}){16,}\b`)
)

// String masks key=value pairs for key material and hex runs of 16 bytes or
// more, which is the size of an AES-128 key or IV.
func String(in string) string {
	if strings.TrimSpace(in) == "" {
		return in
	}
	masked := kvSecretRe.ReplaceAllString(in, `$1$2`+redactedSecret+`$4`)
	return longHexRe.ReplaceAllString(masked, redactedSecret)
}

// Bytes reports only the length of b.
func Bytes(b []byte) string {
	return fmt.Sprintf("[%d bytes]", len(b))
}

// Interface redacts recognised sensitive values within nested structures.
func Interface(value any) any {
	switch v := value.(type) {
	case string:
		return String(v)
	case []byte:
		return Bytes(v)
	case fmt.Stringer:
		return String(v.String())
	case []string:
		return Slice(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Interface(elem)
		}
		return out
	case map[string]string:
		return MapString(v)
	case map[string]any:
		return Map(v)
	default:
		return value
	}
}

// Map redacts sensitive values within a map of arbitrary values. Keys listed
// under "never_persist" are masked along with the built-in sensitive keys,
// and the never_persist entry itself is dropped.
func Map(in map[string]any) map[string]any {
	return scrubMap(in, collectNeverPersist, Interface, redactedSecret)
}

// MapString is Map for string values.
func MapString(in map[string]string) map[string]string {
	return scrubMap(in, splitList, String, redactedSecret)
}

func scrubMap[V any](in map[string]V, listed func(V) []string, scrub func(V) V, mask V) map[string]V {
	if len(in) == 0 {
		return nil
	}
	hidden := make(map[string]struct{})
	for k, v := range in {
		if !strings.EqualFold(k, neverPersistKey) {
			continue
		}
		for _, name := range listed(v) {
			if name = strings.TrimSpace(name); name != "" {
				hidden[name] = struct{}{}
			}
		}
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		switch {
		case strings.EqualFold(k, neverPersistKey):
		case isMasked(k, hidden):
			out[k] = mask
		default:
			out[k] = scrub(v)
		}
	}
	return out
}

// Slice redacts sensitive values within a slice of strings.
func Slice(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = String(v)
	}
	return out
}

func isMasked(key string, extra map[string]struct{}) bool {
	lower := strings.ToLower(key)
	if _, ok := sensitiveKeys[lower]; ok {
		return true
	}
	_, ok := extra[key]
	return ok
}

func collectNeverPersist(value any) []string {
	switch v := value.(type) {
	case string:
		return splitList(v)
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			out = append(out, fmt.Sprint(elem))
		}
		return out
	default:
		return nil
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
