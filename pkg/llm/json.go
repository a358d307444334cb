package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkBlock matches the reasoning preamble some local models (deepseek-r1, qwq)
// emit before answering.
var thinkBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>`)

// ExtractJSON returns the first complete JSON object or array in a model
// reply. Reasoning preambles, markdown fences and surrounding prose are skipped.
func ExtractJSON(reply string) (string, error) {
	text := thinkBlock.ReplaceAllString(reply, "")

	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return string(raw), nil
		}
	}
	return "", fmt.Errorf("no valid JSON found in %d byte reply", len(reply))
}

// ParseJSONResponse extracts JSON from a reply and decodes it into T.
func ParseJSONResponse[T any](reply string) (T, error) {
	var result T

	raw, err := ExtractJSON(reply)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
