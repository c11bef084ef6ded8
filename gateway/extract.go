package gateway

import (
	"strings"

	"github.com/bytedance/sonic"
)

// ExtractJSON pulls a JSON object or array out of a model response. Models
// often wrap the payload in prose or code fences, so the fallback scans for
// the first balanced {...} or [...] span.
func ExtractJSON(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrExtraction
	}

	if parsed, ok := tryParse(trimmed); ok {
		return parsed, nil
	}
	if fenced, ok := stripCodeFence(trimmed); ok {
		if parsed, ok := tryParse(fenced); ok {
			return parsed, nil
		}
	}
	if span, ok := balancedSpan(trimmed); ok {
		if parsed, ok := tryParse(span); ok {
			return parsed, nil
		}
	}
	return nil, ErrExtraction
}

func tryParse(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := sonic.UnmarshalString(s, &obj); err == nil {
		return obj, true
	}
	// Arrays are valid structured output too; wrap so callers always see an
	// object.
	var arr []any
	if err := sonic.UnmarshalString(s, &arr); err == nil {
		return map[string]any{"items": arr}, true
	}
	return nil, false
}

func stripCodeFence(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedSpan finds the first balanced {...} or [...] region, ignoring
// braces inside string literals.
func balancedSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
