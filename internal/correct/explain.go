package correct

import (
	"context"
	"fmt"
	"strings"
)

// Explainer answers free-form helper requests about a recognized text:
// translation, pronunciation guidance, example sentences, or open chat.
// Replies are plain prose, not the strict correction protocol.
type Explainer interface {
	Explain(ctx context.Context, verb, text string) (string, error)
}

var explainPrompts = map[string]string{
	"translate": "Translate the following text. Reply with the translation only:\n\n%s",
	"pronounce": "Explain how to pronounce the following text, syllable by syllable. Keep it short:\n\n%s",
	"examples":  "Give two short example sentences using the key words of the following text:\n\n%s",
	"chat":      "You are a concise reading assistant. Answer the user's message:\n\n%s",
}

func (g *ollamaCorrector) Explain(ctx context.Context, verb, text string) (string, error) {
	template, ok := explainPrompts[verb]
	if !ok {
		return "", fmt.Errorf("unknown explain verb %q", verb)
	}
	text = truncateInput(strings.TrimSpace(text), g.inputMaxChars)
	if text == "" {
		return "", nil
	}
	response, err := g.generate(ctx, "", fmt.Sprintf(template, text))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

func (m *mockCorrector) Explain(ctx context.Context, verb, text string) (string, error) {
	if _, ok := explainPrompts[verb]; !ok {
		return "", fmt.Errorf("unknown explain verb %q", verb)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return fmt.Sprintf("%s: %s", verb, strings.TrimSpace(text)), nil
}
