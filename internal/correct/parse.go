package correct

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// strictReply is the JSON object the model is instructed to emit.
type strictReply struct {
	Original     string   `json:"original"`
	Corrected    *string  `json:"corrected"`
	Changes      []Change `json:"changes"`
	Confidence   float64  `json:"confidence"`
	LanguageHint string   `json:"language_hint"`
}

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")

var errNoJSONObject = errors.New("no JSON object in model reply")

// parseStrictReply extracts the strict-correction object from model output,
// tolerating fences and stray prose around it: direct parse first, then a
// fenced block, then the outermost brace span.
func parseStrictReply(content string) (strictReply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return strictReply{}, errNoJSONObject
	}

	var reply strictReply
	if err := json.Unmarshal([]byte(content), &reply); err == nil && reply.Corrected != nil {
		return reply, nil
	}

	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &reply); err == nil && reply.Corrected != nil {
			return reply, nil
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err == nil && reply.Corrected != nil {
			return reply, nil
		}
	}

	return strictReply{}, errNoJSONObject
}
