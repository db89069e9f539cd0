package ocr

import (
	"context"
	"time"

	"github.com/loupelabs/loupe/internal/protocol"
)

// Result captures recognizer output. Text may legitimately be empty with a
// nil error when nothing is visible in the frame.
type Result struct {
	Text       string
	Confidence float64
	Latency    time.Duration
}

// Recognizer abstracts OCR backends.
type Recognizer interface {
	Recognize(ctx context.Context, frame protocol.Frame) (Result, error)
}
