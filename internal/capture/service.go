// Package capture feeds frames into the pipeline exchange. In bus mode it
// subscribes to frame subjects on NATS; in mock mode it synthesizes frames
// on a timer for development and integration tests.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loupelabs/loupe/internal/bus"
	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/pipeline"
	"github.com/loupelabs/loupe/internal/protocol"
	"github.com/nats-io/nats.go"
)

type Service struct {
	cfg      config.CaptureConfig
	bus      *bus.Client
	exchange *pipeline.Exchange
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *nats.Subscription
	wg       sync.WaitGroup
	ready    bool
}

func NewService(parent context.Context, cfg config.CaptureConfig, busClient *bus.Client, exchange *pipeline.Exchange) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		exchange: exchange,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() error {
	switch s.cfg.Mode {
	case "bus":
		subject := protocol.SubjectFramePrefix + ".>"
		sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
		if err != nil {
			return fmt.Errorf("subscribe frames: %w", err)
		}
		s.sub = sub
	case "mock":
		s.wg.Add(1)
		go s.runMock()
	default:
		return fmt.Errorf("unknown capture mode %q", s.cfg.Mode)
	}
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.Frame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.bus.Logger().Warn("failed to decode frame", slogError(err))
		return
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now().UTC()
	}
	// Latest wins. Publishing never blocks the producer side.
	s.exchange.PublishFrame(frame)
}

// runMock emits synthetic gray8 frames whose payload is the text an OCR
// mock will echo back. Useful for exercising the full loop without a
// camera or a real engine.
func (s *Service) runMock() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.MockIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sessionID := uuid.NewString()
	var seq uint64
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			seq++
			s.exchange.PublishFrame(protocol.Frame{
				SessionID:  sessionID,
				Sequence:   seq,
				Width:      s.cfg.MockWidth,
				Height:     s.cfg.MockHeight,
				Encoding:   "gray8",
				Data:       []byte(fmt.Sprintf("mock frame %d", seq)),
				CapturedAt: time.Now().UTC(),
			})
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
