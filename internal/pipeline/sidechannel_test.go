package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/loupelabs/loupe/internal/correct"
	"github.com/loupelabs/loupe/internal/protocol"
)

type recordingExplainer struct {
	fail bool
}

func (r *recordingExplainer) Explain(_ context.Context, verb, text string) (string, error) {
	if r.fail {
		return "", fmt.Errorf("model offline")
	}
	return verb + ": " + text, nil
}

func testCoordinatorWithExplainer(t *testing.T, explainer correct.Explainer) *Coordinator {
	t.Helper()
	c := testCoordinator(t, echoRecognizer{}, &countingCorrector{})
	c.explainer = explainer
	return c
}

func waitChatReply(t *testing.T, c *Coordinator) protocol.ChatMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		history := c.exchange.ChatHistory()
		if n := len(history); n > 0 && history[n-1].Role == "assistant" {
			return history[n-1]
		}
		select {
		case <-deadline:
			t.Fatal("assistant reply never arrived")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSideChannelTranslateCommand(t *testing.T) {
	c := testCoordinatorWithExplainer(t, &recordingExplainer{})
	c.exchange.PublishResult(protocol.DisplayResult{CorrectedText: "bonjour"})
	c.exchange.SetPendingCommand(protocol.Command{Verb: "translate"})

	c.pollSideChannel()
	reply := waitChatReply(t, c)
	if !strings.Contains(reply.Text, "translate: bonjour") {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
	title, body := c.exchange.Explanation()
	if title != "Translation" || body != "translate: bonjour" {
		t.Fatalf("unexpected explanation %q %q", title, body)
	}
}

func TestSideChannelCommandWithoutContent(t *testing.T) {
	c := testCoordinatorWithExplainer(t, &recordingExplainer{})
	c.exchange.SetPendingCommand(protocol.Command{Verb: "examples"})

	c.pollSideChannel()
	reply := waitChatReply(t, c)
	if reply.Text != "(no text on screen)" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

func TestSideChannelCommandFailure(t *testing.T) {
	c := testCoordinatorWithExplainer(t, &recordingExplainer{fail: true})
	c.exchange.PublishResult(protocol.DisplayResult{CorrectedText: "some text"})
	c.exchange.SetPendingCommand(protocol.Command{Verb: "pronounce"})

	c.pollSideChannel()
	reply := waitChatReply(t, c)
	if reply.Text != "(Pronunciation failed)" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

func TestSideChannelChat(t *testing.T) {
	c := testCoordinatorWithExplainer(t, &recordingExplainer{})
	c.exchange.PublishResult(protocol.DisplayResult{CorrectedText: "menu du jour"})
	c.exchange.AppendChat("user", "what does this say?", "")
	c.exchange.SetPendingChat("what does this say?")

	c.pollSideChannel()
	reply := waitChatReply(t, c)
	if !strings.Contains(reply.Text, "what does this say?") {
		t.Fatalf("reply should address the question, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "menu du jour") {
		t.Fatalf("reply should include the screen context, got %q", reply.Text)
	}
}

func TestSideChannelCommandConsumedOnce(t *testing.T) {
	c := testCoordinatorWithExplainer(t, &recordingExplainer{})
	c.exchange.PublishResult(protocol.DisplayResult{CorrectedText: "once"})
	c.exchange.SetPendingCommand(protocol.Command{Verb: "translate"})

	c.pollSideChannel()
	waitChatReply(t, c)
	before := len(c.exchange.ChatHistory())
	c.pollSideChannel()
	time.Sleep(10 * time.Millisecond)
	if got := len(c.exchange.ChatHistory()); got != before {
		t.Fatalf("a consumed command must not resolve twice: %d -> %d", before, got)
	}
}
