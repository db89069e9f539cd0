package speak

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/loupelabs/loupe/internal/bus"
	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/protocol"
	"github.com/nats-io/nats.go"
)

type Service struct {
	cfg    config.SpeakConfig
	bus    *bus.Client
	synth  Synthesizer
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.SpeakConfig, busClient *bus.Client, synth Synthesizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		synth:  synth,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "speak-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeakRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speak request", slogError(err))
		return
	}
	if req.Text == "" {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
		defer cancel()

		voice := req.Voice
		if voice == "" {
			voice = s.cfg.Voice
		}
		chunks, errs := s.synth.Synthesize(ctx, SynthRequest{SessionID: req.SessionID, Text: req.Text, Voice: voice})
		sequence := 0
		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				chunk.Sequence = sequence
				sequence++
				s.publishChunk(req, chunk)
			case err, ok := <-errs:
				if ok && err != nil {
					s.logger.Warn("speak synthesis error", slogError(err))
				}
				errs = nil
			case <-ctx.Done():
				s.logger.Warn("speak synthesis cancelled", slogError(ctx.Err()))
				return
			}
			if chunks == nil && errs == nil {
				return
			}
		}
	}()
}

func (s *Service) publishChunk(req protocol.SpeakRequest, chunk SynthChunk) {
	packet := protocol.AudioChunk{
		SessionID:  req.SessionID,
		Sequence:   chunk.Sequence,
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		PCM:        chunk.PCM,
		Final:      chunk.Final,
	}
	data, err := json.Marshal(packet)
	if err != nil {
		s.logger.Warn("failed to marshal speak chunk", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeakAudio, data); err != nil {
		s.logger.Warn("failed to publish speak chunk", slogError(err))
	}
	if chunk.Final {
		done := protocol.SpeakStatus{SessionID: req.SessionID, Completed: true, Timestamp: time.Now().UTC()}
		if data, err := json.Marshal(done); err == nil {
			_ = s.bus.Conn().Publish(protocol.SubjectSpeakDone, data)
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
