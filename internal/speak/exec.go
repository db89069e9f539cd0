package speak

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// execSynth shells out to an external TTS engine that writes a WAV stream
// to stdout. The whole clip is decoded and re-chunked as raw PCM.
type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

const pcmChunkBytes = 32 * 1024

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speak command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speak command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	e.mu.Lock()
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer e.mu.Unlock()

		base := e.cmd[0]
		args := append([]string{}, e.cmd[1:]...)
		args = append(args, "--rate", fmt.Sprintf("%d", e.sampleRate))
		if req.Voice != "" {
			args = append(args, "--voice", req.Voice)
		}
		cmd := exec.CommandContext(ctx, base, args...)
		cmd.Stdin = bytes.NewReader([]byte(req.Text))

		out, err := cmd.Output()
		if err != nil {
			errs <- fmt.Errorf("speak command failed: %w", err)
			return
		}

		pcm, sampleRate, channels, err := decodeWAV(out)
		if err != nil {
			errs <- err
			return
		}

		sequence := 0
		for offset := 0; offset < len(pcm); offset += pcmChunkBytes {
			end := offset + pcmChunkBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			chunk := SynthChunk{
				SessionID:  req.SessionID,
				Sequence:   sequence,
				SampleRate: sampleRate,
				Channels:   channels,
				PCM:        pcm[offset:end],
				Final:      end == len(pcm),
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			sequence++
		}
		if len(pcm) == 0 {
			select {
			case chunks <- SynthChunk{SessionID: req.SessionID, SampleRate: sampleRate, Channels: channels, PCM: []byte{}, Final: true}:
			case <-ctx.Done():
			}
		}
	}()
	return chunks, errs
}

// decodeWAV extracts 16-bit little-endian PCM from a WAV clip.
func decodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("speak command produced invalid wav output")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode wav: %w", err)
	}
	return pcmBytes(buf), buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func pcmBytes(buf *audio.IntBuffer) []byte {
	out := make([]byte, 0, len(buf.Data)*2)
	var scratch [2]byte
	for _, sample := range buf.Data {
		if sample > 32767 {
			sample = 32767
		} else if sample < -32768 {
			sample = -32768
		}
		binary.LittleEndian.PutUint16(scratch[:], uint16(int16(sample)))
		out = append(out, scratch[0], scratch[1])
	}
	return out
}
