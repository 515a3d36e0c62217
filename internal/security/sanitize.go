package security

import (
	"regexp"
	"strings"
)

var (
	scriptLike = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	htmlTag    = regexp.MustCompile(`(?s)<[^>]+>`)
)

// Sanitize strips script-like substrings and HTML tags, truncates to
// maxLen, removes NUL bytes, and recurses into maps/lists (spec.md §4.1).
// allowHTML disables tag stripping for callers that explicitly need markup
// preserved.
func (g *Gate) Sanitize(value any, allowHTML bool) any {
	return sanitizeValue(value, g.cfg.MaxStringLength, allowHTML)
}

func sanitizeValue(v any, maxLen int, allowHTML bool) any {
	switch val := v.(type) {
	case string:
		return sanitizeString(val, maxLen, allowHTML)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[sanitizeString(k, maxLen, allowHTML).(string)] = sanitizeValue(sub, maxLen, allowHTML)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = sanitizeValue(sub, maxLen, allowHTML)
		}
		return out
	default:
		return v
	}
}

func sanitizeString(s string, maxLen int, allowHTML bool) any {
	s = strings.ReplaceAll(s, "\x00", "")
	s = scriptLike.ReplaceAllString(s, "")
	if !allowHTML {
		s = htmlTag.ReplaceAllString(s, "")
	}
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
