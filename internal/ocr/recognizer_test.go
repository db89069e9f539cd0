package ocr

import (
	"context"
	"runtime"
	"testing"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/protocol"
)

func TestMockRecognizerEchoesPayload(t *testing.T) {
	r := NewMockRecognizer()
	result, err := r.Recognize(context.Background(), protocol.Frame{Data: []byte("hello screen")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello screen" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.Confidence <= 0 {
		t.Fatal("expected a positive confidence")
	}
}

func TestMockRecognizerEmptyFrame(t *testing.T) {
	r := NewMockRecognizer()
	result, err := r.Recognize(context.Background(), protocol.Frame{})
	if err != nil {
		t.Fatalf("empty text with no error is a legitimate recognition: %v", err)
	}
	if result.Text != "" {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestNewExecRecognizerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecRecognizer(config.OCRConfig{Command: ""}); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := NewExecRecognizer(config.OCRConfig{Command: "unterminated 'quote"}); err == nil {
		t.Fatal("expected error for unparsable command")
	}
}

func TestExecRecognizerParsesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	r, err := NewExecRecognizer(config.OCRConfig{
		Command: `sh -c 'echo {\"text\":\"detected words\",\"confidence\":0.87}' --`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := r.Recognize(context.Background(), protocol.Frame{Encoding: "png", Data: []byte{0x89}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "detected words" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.Confidence != 0.87 {
		t.Fatalf("unexpected confidence %f", result.Confidence)
	}
}

func TestExecRecognizerConfidenceFloor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	r, err := NewExecRecognizer(config.OCRConfig{
		Command:       `sh -c 'echo {\"text\":\"noise\",\"confidence\":0.10}' --`,
		MinConfidence: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := r.Recognize(context.Background(), protocol.Frame{Data: []byte("junk")})
	if err != nil {
		t.Fatalf("a low-confidence read is not an error: %v", err)
	}
	if result.Text != "" {
		t.Fatalf("text below the confidence floor should be dropped, got %q", result.Text)
	}
}

func TestFrameExtension(t *testing.T) {
	cases := map[string]string{"png": "png", "gray8": "raw", "jpeg": "jpg", "": "jpg"}
	for encoding, want := range cases {
		if got := frameExtension(protocol.Frame{Encoding: encoding}); got != want {
			t.Errorf("encoding %q: expected %q, got %q", encoding, want, got)
		}
	}
}
