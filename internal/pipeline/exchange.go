package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/loupelabs/loupe/internal/protocol"
)

const maxChatHistory = 64

// Exchange is the only point of contention between the frame producer and
// the pipeline goroutine: a latest-value-wins, lock-protected holder for the
// newest captured frame, the latest published display result, and the
// out-of-band command/chat slots.
//
// The lock is held only for value swaps and shallow copies. Recognition and
// correction never execute under it. The frame slot does not queue: older
// unconsumed frames are silently dropped, and the producer never blocks.
type Exchange struct {
	mu sync.Mutex

	latestResult protocol.DisplayResult

	currentFrame   *protocol.Frame
	frameCount     int64
	lastTakenCount int64

	pendingCommand    protocol.Command
	hasPendingCommand bool

	pendingChat    string
	hasPendingChat bool

	pendingPlayAudio string

	explanationTitle string
	explanationBody  string

	chatHistory []protocol.ChatMessage
}

func NewExchange() *Exchange {
	return &Exchange{
		lastTakenCount: -1 << 30,
	}
}

// PublishFrame overwrites the single frame slot with a private copy of the
// frame and advances the frame counter. Never blocks, never queues.
func (e *Exchange) PublishFrame(frame protocol.Frame) {
	data := make([]byte, len(frame.Data))
	copy(data, frame.Data)
	frame.Data = data

	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentFrame = &frame
	e.frameCount++
}

// TakeFrame returns a private copy of the newest frame once at least
// minGapFrames frames have arrived since the last take; otherwise ok is
// false. This implements process-every-Nth-frame skip sampling.
func (e *Exchange) TakeFrame(minGapFrames int) (protocol.Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentFrame == nil {
		return protocol.Frame{}, false
	}
	if e.frameCount-e.lastTakenCount < int64(minGapFrames) {
		return protocol.Frame{}, false
	}
	e.lastTakenCount = e.frameCount

	out := *e.currentFrame
	data := make([]byte, len(out.Data))
	copy(data, out.Data)
	out.Data = data
	return out, true
}

// PendingFrames reports how many frames arrived since the last take. Used
// for metrics; in a single-slot exchange this is a backlog indicator, not a
// queue length.
func (e *Exchange) PendingFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentFrame == nil {
		return 0
	}
	n := e.frameCount - e.lastTakenCount
	if n < 0 {
		return 0
	}
	return int(n)
}

// PublishResult overwrites the published result wholesale.
func (e *Exchange) PublishResult(result protocol.DisplayResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latestResult = result
}

// Result returns a consistent snapshot of the latest published result.
func (e *Exchange) Result() protocol.DisplayResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestResult
}

// SetPendingCommand stores a user command in the single command slot. A
// newer command silently replaces an unconsumed older one; this mailbox is
// deliberately lossy, not a queue.
func (e *Exchange) SetPendingCommand(cmd protocol.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingCommand = cmd
	e.hasPendingCommand = true
}

// TakePendingCommand removes and returns the pending command, if any. A
// write followed by a take delivers each command at most once.
func (e *Exchange) TakePendingCommand() (protocol.Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasPendingCommand {
		return protocol.Command{}, false
	}
	cmd := e.pendingCommand
	e.pendingCommand = protocol.Command{}
	e.hasPendingCommand = false
	return cmd, true
}

// SetPendingChat stores a user chat message in the single chat slot.
func (e *Exchange) SetPendingChat(message string) {
	message = strings.TrimSpace(message)
	e.mu.Lock()
	defer e.mu.Unlock()
	if message == "" {
		e.pendingChat = ""
		e.hasPendingChat = false
		return
	}
	e.pendingChat = message
	e.hasPendingChat = true
}

// TakePendingChat removes and returns the pending chat message, if any.
func (e *Exchange) TakePendingChat() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasPendingChat {
		return "", false
	}
	msg := e.pendingChat
	e.pendingChat = ""
	e.hasPendingChat = false
	return msg, true
}

// AppendChat records a conversation entry. An audio path on an assistant
// entry also arms the pending play-audio slot.
func (e *Exchange) AppendChat(role, text, audioPath string) {
	entry := protocol.ChatMessage{
		Role:      role,
		Text:      strings.TrimSpace(text),
		AudioPath: strings.TrimSpace(audioPath),
		SentAt:    time.Now().UTC(),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chatHistory = append(e.chatHistory, entry)
	if len(e.chatHistory) > maxChatHistory {
		e.chatHistory = e.chatHistory[len(e.chatHistory)-maxChatHistory:]
	}
	if entry.AudioPath != "" {
		e.pendingPlayAudio = entry.AudioPath
	}
}

// ChatHistory returns a copy of the conversation history.
func (e *Exchange) ChatHistory() []protocol.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]protocol.ChatMessage, len(e.chatHistory))
	copy(out, e.chatHistory)
	return out
}

// TakePendingPlayAudio removes and returns the queued playback path, if any.
func (e *Exchange) TakePendingPlayAudio() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingPlayAudio == "" {
		return "", false
	}
	path := e.pendingPlayAudio
	e.pendingPlayAudio = ""
	return path, true
}

// SetExplanation stores the explanation panel content.
func (e *Exchange) SetExplanation(title, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.explanationTitle = strings.TrimSpace(title)
	e.explanationBody = strings.TrimSpace(body)
}

// Explanation reads the explanation panel content.
func (e *Exchange) Explanation() (title, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.explanationTitle, e.explanationBody
}

// ContentForCommand returns the text a user command should act on: the
// corrected text when available, else the stable text.
func (e *Exchange) ContentForCommand() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := strings.TrimSpace(e.latestResult.CorrectedText); c != "" {
		return c
	}
	return strings.TrimSpace(e.latestResult.StableText)
}

// ContentAndConfidence returns the actionable text together with the
// recognition confidence behind it.
func (e *Exchange) ContentAndConfidence() (string, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := strings.TrimSpace(e.latestResult.CorrectedText)
	if c == "" {
		c = strings.TrimSpace(e.latestResult.StableText)
	}
	return c, e.latestResult.Confidence
}
