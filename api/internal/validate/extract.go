package validate

import (
	"encoding/json"
	"strings"
)

// StripCodeFences removes a surrounding ```json ... ``` block.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// ExtractObject returns the first balanced {...} span of text that is valid
// JSON. Prose around the object is ignored.
func ExtractObject(text string) (string, bool) {
	text = StripCodeFences(text)
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end < 0 {
			continue
		}
		if cand := text[i : end+1]; json.Valid([]byte(cand)) {
			return cand, true
		}
	}
	return "", false
}

// matchBrace returns the index of the brace closing text[open], skipping
// braces inside JSON strings, or -1.
func matchBrace(text string, open int) int {
	depth := 0
	inStr, esc := false, false
	for j := open; j < len(text); j++ {
		c := text[j]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// Object extracts the first JSON object of text as a map.
func Object(text string) (map[string]any, bool) {
	obj, ok := ExtractObject(text)
	if !ok {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return nil, false
	}
	return m, true
}

// StringField returns the trimmed string value of key in the first JSON
// object of text.
func StringField(text, key string) (string, bool) {
	m, ok := Object(text)
	if !ok {
		return "", false
	}
	s, ok := m[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}
