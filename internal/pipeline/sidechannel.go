package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/loupelabs/loupe/internal/protocol"
	"github.com/nats-io/nats.go"
)

var explainTitles = map[string]string{
	"translate": "Translation",
	"pronounce": "Pronunciation",
	"examples":  "Examples",
}

// handleCommand feeds a bus command into the lossy single-slot mailbox. A
// newer command silently replaces an unconsumed older one.
func (c *Coordinator) handleCommand(msg *nats.Msg) {
	var cmd protocol.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		c.logger.Warn("failed to decode command", slogError(err))
		return
	}
	if cmd.Verb == "" {
		parts := strings.Split(msg.Subject, ".")
		cmd.Verb = parts[len(parts)-1]
	}
	if cmd.SentAt.IsZero() {
		cmd.SentAt = time.Now().UTC()
	}
	c.exchange.SetPendingCommand(cmd)
}

func (c *Coordinator) handleChat(msg *nats.Msg) {
	var chat protocol.ChatMessage
	if err := json.Unmarshal(msg.Data, &chat); err != nil {
		c.logger.Warn("failed to decode chat message", slogError(err))
		return
	}
	text := strings.TrimSpace(chat.Text)
	if text == "" {
		return
	}
	c.exchange.AppendChat("user", text, "")
	c.exchange.SetPendingChat(text)
}

// pollSideChannel consumes at most one pending command and one pending chat
// message per cycle. Resolution runs off the coordinator goroutine so a slow
// model never blocks recognition.
func (c *Coordinator) pollSideChannel() {
	if cmd, ok := c.exchange.TakePendingCommand(); ok {
		c.resolveCommand(cmd)
	}
	if msg, ok := c.exchange.TakePendingChat(); ok {
		c.resolveChat(msg)
	}
}

func (c *Coordinator) resolveCommand(cmd protocol.Command) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		content = c.exchange.ContentForCommand()
	}

	switch cmd.Verb {
	case "read":
		if content == "" {
			c.exchange.AppendChat("assistant", "(no text to read)", "")
			return
		}
		c.requestSpeak("", content)
		c.exchange.AppendChat("assistant", "Reading the current text aloud.", "")
	case "translate", "pronounce", "examples":
		if content == "" {
			c.exchange.AppendChat("assistant", "(no text on screen)", "")
			return
		}
		if c.explainer == nil {
			return
		}
		title := explainTitles[cmd.Verb]
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := c.explainContext()
			defer cancel()
			answer, err := c.explainer.Explain(ctx, cmd.Verb, content)
			if err != nil || strings.TrimSpace(answer) == "" {
				if err != nil {
					c.logger.Warn("command resolution failed",
						slog.String("verb", cmd.Verb), slogError(err))
				}
				c.exchange.AppendChat("assistant", "("+title+" failed)", "")
				return
			}
			c.exchange.SetExplanation(title, answer)
			c.postAssistantReply("[" + title + "]\n" + answer)
		}()
	default:
		c.logger.Warn("unknown command verb", slog.String("verb", cmd.Verb))
	}
}

func (c *Coordinator) resolveChat(message string) {
	if c.explainer == nil {
		return
	}
	prompt := message
	if content := c.exchange.ContentForCommand(); content != "" {
		prompt = message + "\n\nText currently on screen:\n" + content
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.explainContext()
		defer cancel()
		reply, err := c.explainer.Explain(ctx, "chat", prompt)
		if err != nil {
			c.logger.Warn("chat resolution failed", slogError(err))
			c.exchange.AppendChat("assistant", "(assistant error: "+preview(err.Error(), 50)+")", "")
			return
		}
		c.postAssistantReply(reply)
	}()
}

// postAssistantReply records the reply in chat history and broadcasts it.
func (c *Coordinator) postAssistantReply(text string) {
	c.exchange.AppendChat("assistant", text, "")
	if c.bus == nil {
		return
	}
	msg := protocol.ChatMessage{Role: "assistant", Text: text, SentAt: time.Now().UTC()}
	if data, err := json.Marshal(msg); err == nil {
		_ = c.bus.Conn().Publish(protocol.SubjectChatReply, data)
	}
}

func (c *Coordinator) explainContext() (ctx context.Context, cancel context.CancelFunc) {
	timeout := time.Duration(c.cfg.Correct.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(c.ctx, timeout)
}
