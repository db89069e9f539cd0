package protocol

import "time"

// Frame is an encoded camera frame streamed from a capture device. The
// sequence number increases monotonically per session; consumers must treat
// gaps as dropped frames, not errors.
type Frame struct {
	SessionID  string    `json:"session_id"`
	Sequence   uint64    `json:"sequence"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Encoding   string    `json:"encoding"` // jpeg, png, gray8
	Data       []byte    `json:"data"`
	CapturedAt time.Time `json:"captured_at"`
}

// DisplayResult is the single published artifact of the recognition pipeline.
// It is overwritten wholesale on every publish; readers always see a fully
// consistent snapshot.
type DisplayResult struct {
	SessionID     string    `json:"session_id,omitempty"`
	RawText       string    `json:"raw_text"`
	StableText    string    `json:"stable_text"`
	CorrectedText string    `json:"corrected_text"`
	Confidence    float64   `json:"confidence"`
	RecognitionMS int64     `json:"recognition_ms"`
	CorrectionMS  int64     `json:"correction_ms"`
	RecognitionOK bool      `json:"recognition_ok"`
	CorrectionOK  bool      `json:"correction_ok"`
	Degraded      bool      `json:"degraded,omitempty"`
	ErrorMsg      string    `json:"error_msg,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Command is an out-of-band user request delivered through the lossy
// single-slot mailbox. A newer command overwrites an unconsumed older one.
type Command struct {
	Verb    string    `json:"verb"` // read, translate, pronounce, examples
	Content string    `json:"content,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// ChatMessage is one entry in the assistant side channel. AudioPath, when
// set on an assistant entry, points at synthesized speech for the message.
type ChatMessage struct {
	Role      string    `json:"role"` // user, assistant
	Text      string    `json:"text"`
	AudioPath string    `json:"audio_path,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// SpeakRequest asks the speak service to synthesize and publish audio for a
// corrected text. Fire-and-forget: the pipeline never waits on it.
type SpeakRequest struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Voice     string    `json:"voice,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioChunk carries synthesized PCM back to playback consumers.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SpeakStatus signals completion of a speak request.
type SpeakStatus struct {
	SessionID string    `json:"session_id"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectFramePrefix   = "frame.captured"
	SubjectResultUpdated = "ocr.result.updated"
	SubjectCommandPrefix = "ocr.command"
	SubjectChatMessage   = "assistant.chat.message"
	SubjectChatReply     = "assistant.chat.reply"
	SubjectSpeakRequest  = "speak.request"
	SubjectSpeakAudio    = "speak.audio"
	SubjectSpeakDone     = "speak.done"
)
