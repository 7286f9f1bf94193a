package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONObject is returned when a model response has no balanced {...} block.
var ErrNoJSONObject = errors.New("llm: response contains no JSON object")

// ExtractJSONObject returns the first balanced {...} block in text. Braces
// inside JSON strings are ignored, and prose around the block is dropped.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace finds the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// DecodeJSON extracts the first JSON object from a model response and
// unmarshals it into v.
func DecodeJSON(text string, v any) error {
	block, ok := ExtractJSONObject(text)
	if !ok {
		return ErrNoJSONObject
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return fmt.Errorf("llm: malformed JSON object: %w", err)
	}
	return nil
}
