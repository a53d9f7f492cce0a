package llm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// cleanModelJSON removes markdown code fences the model may add despite instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return strings.Trim(s, "`")
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}

// ParseReply turns a model reply into a field map. It prefers the outermost JSON object and
// falls back to key: value lines.
func ParseReply(reply string) map[string]any {
	s := cleanModelJSON(reply)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		dec := json.NewDecoder(bytes.NewReader([]byte(s[start : end+1])))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err == nil && out != nil {
			return out
		}
	}

	return parseKeyValue(s)
}

// parseKeyValue reads "key: value" lines, coercing booleans, numbers and nulls.
func parseKeyValue(text string) map[string]any {
	out := make(map[string]any)
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		key = strings.Trim(key, `"'-* `)
		key = strings.ReplaceAll(key, " ", "_")
		if key == "" {
			continue
		}
		out[key] = coerceScalar(strings.TrimSuffix(strings.TrimSpace(value), ","))
	}
	return out
}

func coerceScalar(value string) any {
	value = strings.Trim(value, `"`)
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	case "", "null", "none":
		return nil
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if isDecimalLiteral(value) {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return value
}

func isDecimalLiteral(s string) bool {
	dots := 0
	digits := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case r >= '0' && r <= '9':
			digits++
		default:
			return false
		}
	}
	return dots <= 1 && digits > 0
}
