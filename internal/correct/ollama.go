package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loupelabs/loupe/internal/config"
)

// strictSystem pins the model to proofreading-only edits and a bare JSON
// reply so the output stays machine-parseable.
const strictSystem = `You are a proofreader. Output ONLY a single JSON object. No reasoning, no explanation. The first character of your reply MUST be { and the last must be }.

Rules: Fix only spelling, punctuation, case, spaces, French contractions. Do not change meaning or rephrase.

Format (output nothing else):
{"original":"<exact input>","corrected":"<corrected text>","changes":[{"from":"...","to":"..."}],"confidence":0.0,"language_hint":"en|fr|zh|mixed"}
If no change: corrected equals original, changes is [].`

const strictUserTemplate = "Correct the text below (spelling/punctuation/case/spaces only). Output ONLY the JSON object, no other words:\n\n%s"

type ollamaCorrector struct {
	endpoint      string
	model         string
	maxTokens     int
	temperature   float64
	inputMaxChars int
	client        *http.Client
}

// NewOllamaCorrector corrects text through an Ollama generate endpoint.
func NewOllamaCorrector(cfg config.CorrectConfig) Corrector {
	return &ollamaCorrector{
		endpoint:      cfg.Endpoint,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		inputMaxChars: cfg.InputMaxChars,
		client:        &http.Client{},
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (g *ollamaCorrector) Correct(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Corrected: text}, nil
	}

	start := time.Now()
	truncated := truncateInput(text, g.inputMaxChars)

	response, err := g.generate(ctx, strictSystem, fmt.Sprintf(strictUserTemplate, truncated))
	if err != nil {
		return Result{}, err
	}

	reply, err := parseStrictReply(response)
	if err != nil {
		return Result{}, fmt.Errorf("parse correction reply: %w", err)
	}

	return Result{
		Corrected:    strings.TrimSpace(*reply.Corrected),
		Confidence:   reply.Confidence,
		LanguageHint: reply.LanguageHint,
		Changes:      reply.Changes,
		Latency:      time.Since(start),
	}, nil
}

// generate runs one non-streaming completion and returns the raw model text.
func (g *ollamaCorrector) generate(ctx context.Context, system, prompt string) (string, error) {
	payload := ollamaRequest{
		Model:  g.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Options: ollamaOptions{
			Temperature: g.temperature,
			NumPredict:  g.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var generated ollamaResponse
	if err := json.Unmarshal(raw, &generated); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return generated.Response, nil
}
