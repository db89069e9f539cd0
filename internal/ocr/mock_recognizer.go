package ocr

import (
	"context"
	"time"

	"github.com/loupelabs/loupe/internal/protocol"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that derives text from the frame
// payload, for development and tests without an OCR engine.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Recognize(_ context.Context, frame protocol.Frame) (Result, error) {
	start := time.Now()
	text := ""
	if len(frame.Data) > 0 {
		// Frames produced by the mock capture source carry their text inline.
		text = string(frame.Data)
	}
	return Result{
		Text:       text,
		Confidence: 0.99,
		Latency:    time.Since(start),
	}, nil
}
