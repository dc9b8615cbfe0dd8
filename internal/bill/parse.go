package bill

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// parseResponse pulls the outermost JSON object out of the model's text and
// decodes it. Numbers are kept as json.Number so coercion sees exactly what
// the model wrote.
func parseResponse(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ParseError{Reason: "empty response"}
	}

	// Remove markdown code fences if present
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, &ParseError{Reason: "no JSON object found in response"}
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, &ParseError{Reason: "unterminated JSON object in response"}
	}
	text = text[startIdx : endIdx+1]

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		// Models occasionally leave a trailing comma before a closing bracket
		repaired := trailingComma.ReplaceAllString(text, "$1")
		if repaired == text {
			return nil, &ParseError{Reason: "invalid JSON", Err: err}
		}
		dec = json.NewDecoder(strings.NewReader(repaired))
		dec.UseNumber()
		data = nil
		if err2 := dec.Decode(&data); err2 != nil {
			return nil, &ParseError{Reason: "invalid JSON", Err: err}
		}
	}
	if data == nil {
		return nil, &ParseError{Reason: "response is JSON null"}
	}
	return data, nil
}
