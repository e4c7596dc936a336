package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"promptforge/pkg/domain"
)

// ErrExtraction indicates no valid project object could be recovered from
// the model response.
var ErrExtraction = errors.New("no valid project JSON found in response")

// Extract recovers a path-to-content object from raw model output. The
// output is rarely pure JSON: prose, markdown fences, and trailing
// commentary are tolerated. Returned paths preserve the key order of the
// parsed document so callers can emit files in the order the model wrote
// them.
func Extract(raw string) (domain.FileState, []string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil, nil, fmt.Errorf("%w: empty response", ErrExtraction)
	}

	if fenced, ok := fencedJSONBlock(candidate); ok {
		candidate = fenced
	} else if span, ok := braceSpan(candidate); ok {
		candidate = span
	}
	candidate = stripFences(candidate)

	files, order, err := parseProjectObject(candidate)
	if err == nil {
		return files, order, nil
	}

	// The model often emits almost-JSON (trailing commas, unterminated
	// strings when truncated mid-file). Run a repair pass before giving up.
	repaired, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	files, order, repairedErr := parseProjectObject(repaired)
	if repairedErr != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	slog.Warn("project JSON required repair before parsing", "parse_error", err.Error())
	return files, order, nil
}

// fencedJSONBlock returns the interior of the first ```json fenced block.
func fencedJSONBlock(text string) (string, bool) {
	lower := strings.ToLower(text)
	start := strings.Index(lower, "```json")
	if start < 0 {
		return "", false
	}
	body := text[start+len("```json"):]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	return body, true
}

// braceSpan finds the span from the first '{' to its matching '}' while
// ignoring braces inside string literals. When the document is cut off
// before the closing brace, the remainder is returned so the repair pass
// can complete it.
func braceSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
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
				return text[start : i+1], true
			}
		}
	}
	return text[start:], true
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// parseProjectObject decodes a JSON object of path -> content, preserving
// key order. Non-string values are coerced to their compact JSON text with
// a logged warning rather than rejected.
func parseProjectObject(candidate string) (domain.FileState, []string, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("parse: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("top-level value is not an object")
	}

	files := domain.FileState{}
	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("parse key: %w", err)
		}
		path, ok := keyTok.(string)
		if !ok || path == "" {
			return nil, nil, fmt.Errorf("invalid file path key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("parse value for %q: %w", path, err)
		}
		var content string
		if err := json.Unmarshal(raw, &content); err != nil {
			content = string(raw)
			slog.Warn("coerced non-string file content", "path", path)
		}
		if _, seen := files[path]; !seen {
			order = append(order, path)
		}
		files[path] = content
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("parse: %w", err)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("object has no entries")
	}
	return files, order, nil
}
