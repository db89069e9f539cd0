package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/protocol"
	"github.com/mattn/go-shellwords"
)

type execRecognizer struct {
	cmd []string
	cfg config.OCRConfig
	mu  sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewExecRecognizer runs an external OCR command per frame. The command
// receives the frame via --image and must print a JSON object
// {"text": ..., "confidence": ...} on stdout.
func NewExecRecognizer(cfg config.OCRConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse ocr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ocr command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Recognize(ctx context.Context, frame protocol.Frame) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	file, err := os.CreateTemp(os.TempDir(), "loupe_frame_*."+frameExtension(frame))
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(frame.Data); err != nil {
		return Result{}, fmt.Errorf("write frame: %w", err)
	}

	base := r.cmd[0]
	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--image", file.Name())
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}
	if r.cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", r.cfg.Language)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("ocr command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode ocr response: %w", err)
	}
	if resp.Confidence < r.cfg.MinConfidence {
		// Below the floor the text is likely garbage; report nothing visible.
		return Result{Confidence: resp.Confidence, Latency: time.Since(start)}, nil
	}
	return Result{
		Text:       resp.Text,
		Confidence: resp.Confidence,
		Latency:    time.Since(start),
	}, nil
}

func frameExtension(frame protocol.Frame) string {
	switch frame.Encoding {
	case "png":
		return "png"
	case "gray8":
		return "raw"
	default:
		return "jpg"
	}
}
