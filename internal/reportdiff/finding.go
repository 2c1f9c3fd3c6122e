package reportdiff

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned for malformed findings
var ErrInvalidInput = errors.New("invalid input")

// Finding is one defect observation in an inspection's ordered result set
type Finding struct {
	PartIndex   int    `json:"part_index"`     // position in the result set
	Part        string `json:"part,omitempty"` // explicit part identifier, optional
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// ParseFindings decodes a JSON array of finding objects.
// severity, description and part must be strings when present; null counts
// as absent and unknown keys are ignored. A null document is an empty list.
// The array may also arrive as a JSON string of model output, optionally
// wrapped in a markdown code fence.
func ParseFindings(data []byte) ([]Finding, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, fmt.Errorf("%w: findings string: %w", ErrInvalidInput, err)
		}
		data = []byte(stripCodeFence(text))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: findings document is empty", ErrInvalidInput)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: findings must be a JSON array: %w", ErrInvalidInput, err)
	}

	findings := make([]Finding, 0, len(items))
	for i, item := range items {
		f, err := parseFinding(item)
		if err != nil {
			return nil, fmt.Errorf("%w: finding %d: %w", ErrInvalidInput, i, err)
		}
		f.PartIndex = i
		findings = append(findings, f)
	}
	return findings, nil
}

func parseFinding(item json.RawMessage) (Finding, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return Finding{}, errors.New("not a JSON object")
	}

	var f Finding
	for key, dst := range map[string]*string{
		"part":        &f.Part,
		"severity":    &f.Severity,
		"description": &f.Description,
	} {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return Finding{}, fmt.Errorf("%s must be a string", key)
		}
	}
	return f, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
