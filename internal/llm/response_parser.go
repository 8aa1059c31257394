package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// extractJSON extracts the first JSON object from a string that may contain extra text.
// Models often wrap the object in markdown fences or add a sentence before/after it.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // let the decoder fail
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text[start:] // unterminated, let the decoder fail
}

// decodeReply extracts the JSON object from raw, checks the template's required
// keys and decodes it into out. Unknown keys are ignored.
func decodeReply(tmpl *Template, raw string, out Schema) error {
	body := []byte(extractJSON(raw))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return &ParseError{Template: tmpl.Name, Raw: raw, Err: err}
	}

	for _, key := range tmpl.Required {
		v, ok := fields[key]
		if !ok || string(v) == "null" {
			return &SchemaError{Template: tmpl.Name, Field: key, Err: ErrMissingField}
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &SchemaError{Template: tmpl.Name, Field: typeErr.Field, Err: err}
		}
		return &SchemaError{Template: tmpl.Name, Err: err}
	}

	if err := out.Validate(); err != nil {
		return &SchemaError{Template: tmpl.Name, Err: err}
	}
	return nil
}
