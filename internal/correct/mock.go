package correct

import (
	"context"
	"strings"
	"time"
)

type mockCorrector struct{}

// NewMockCorrector returns a corrector that echoes its input after a short
// delay, for development without a model backend.
func NewMockCorrector() Corrector {
	return &mockCorrector{}
}

func (m *mockCorrector) Correct(ctx context.Context, text string) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return Result{
		Corrected:    strings.TrimSpace(text),
		Confidence:   1.0,
		LanguageHint: "en",
		Latency:      20 * time.Millisecond,
	}, nil
}
