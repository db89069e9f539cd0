package correct

import (
	"context"
	"time"
)

// Change is a single edit the model reports.
type Change struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result captures corrector output.
type Result struct {
	Corrected    string
	Confidence   float64
	LanguageHint string
	Changes      []Change
	Latency      time.Duration
}

// Corrector abstracts the correction backend. Implementations must be
// idempotent-safe for repeated calls with the same input: the pipeline may
// legitimately re-send a text after a failure or cache expiry.
type Corrector interface {
	Correct(ctx context.Context, text string) (Result, error)
}

// truncateInput bounds the text sent to the model so an overlong frame does
// not blow the token budget or truncate the JSON reply.
func truncateInput(text string, maxChars int) string {
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}
