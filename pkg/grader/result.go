package grader

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Output markers printed by the grading script around its JSON payload.
const (
	StartMarker = "<<<JSON_START>>>"
	EndMarker   = "<<<JSON_END>>>"
)

const resultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["score"],
  "properties": {
    "score": {"type": "number"}
  }
}`

var resultValidator = jsonschema.MustCompileString("grader-result.json", resultSchema)

// Result is the parsed grader verdict. A zero Result means the grader produced
// nothing usable.
type Result struct {
	Score   *float64               `json:"score"`
	Comment string                 `json:"comment"`
	Details map[string]interface{} `json:"details"`
}

// Usable reports whether the result carries a score.
func (r Result) Usable() bool {
	return r.Score != nil
}

// ParseOutput extracts the grader verdict from raw stdout. The payload between
// the first start marker and the following end marker wins; otherwise the span
// from the first '{' to the last '}' is tried. Anything unparseable or lacking
// a numeric score yields the zero Result.
func ParseOutput(stdout string) Result {
	payload := extractPayload(stdout)
	if payload == "" {
		return Result{}
	}

	return decodePayload(payload)
}

func extractPayload(stdout string) string {
	if strings.TrimSpace(stdout) == "" {
		return ""
	}

	if start := strings.Index(stdout, StartMarker); start >= 0 {
		rest := stdout[start+len(StartMarker):]
		if end := strings.Index(rest, EndMarker); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	first := strings.Index(stdout, "{")
	last := strings.LastIndex(stdout, "}")
	if first < 0 || last <= first {
		return ""
	}

	return stdout[first : last+1]
}

func decodePayload(payload string) Result {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return Result{}
	}
	if err := resultValidator.Validate(doc); err != nil {
		return Result{}
	}

	var raw struct {
		Score   float64     `json:"score"`
		Comment interface{} `json:"comment"`
		Details interface{} `json:"details"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Result{}
	}

	score := raw.Score
	result := Result{Score: &score}
	if comment, ok := raw.Comment.(string); ok {
		result.Comment = comment
	}
	if details, ok := raw.Details.(map[string]interface{}); ok {
		result.Details = details
	}

	return result
}
