// Package runtime assembles the daemon: telemetry, the message bus, the
// event store, and the capture/pipeline/speak services, plus the HTTP
// surface for health and the latest result.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loupelabs/loupe/internal/bus"
	"github.com/loupelabs/loupe/internal/capture"
	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/correct"
	"github.com/loupelabs/loupe/internal/eventstore"
	"github.com/loupelabs/loupe/internal/natsserver"
	"github.com/loupelabs/loupe/internal/ocr"
	"github.com/loupelabs/loupe/internal/pipeline"
	"github.com/loupelabs/loupe/internal/speak"
)

type service interface {
	Start() error
	Close()
	Healthy() bool
}

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error

	embedded *natsserver.EmbeddedServer
	busConn  *bus.Client
	store    *eventstore.Store
	exchange *pipeline.Exchange
	services []service

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the daemon up and blocks until ctx is cancelled, then shuts
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Embedded {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.embedded = embedded
	}

	busConn, err := bus.Connect(ctx, r.cfg.Bus, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busConn = busConn

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store

	r.exchange = pipeline.NewExchange()

	if err := r.buildServices(ctx); err != nil {
		return err
	}
	for _, svc := range r.services {
		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/result", r.handleResult)
	mux.HandleFunc("/chat", r.handleChat)
	mux.HandleFunc("/explanation", r.handleExplanation)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}

	for i := len(r.services) - 1; i >= 0; i-- {
		r.services[i].Close()
	}
	r.busConn.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildServices(ctx context.Context) error {
	recognizer, err := r.buildRecognizer()
	if err != nil {
		return err
	}
	corrector, explainer, err := r.buildCorrector()
	if err != nil {
		return err
	}

	captureSvc := capture.NewService(ctx, r.cfg.Capture, r.busConn, r.exchange)
	coordinator := pipeline.NewCoordinator(ctx, r.cfg, r.exchange, recognizer, corrector, explainer, r.busConn, r.store, r.logger)

	r.services = append(r.services, captureSvc, coordinator)

	if r.cfg.Speak.Enabled {
		synth, err := r.buildSynthesizer()
		if err != nil {
			return err
		}
		r.services = append(r.services, speak.NewService(ctx, r.cfg.Speak, r.busConn, synth, r.logger))
	}
	return nil
}

func (r *Runtime) buildRecognizer() (ocr.Recognizer, error) {
	switch r.cfg.OCR.Mode {
	case "exec":
		return ocr.NewExecRecognizer(r.cfg.OCR)
	case "mock":
		return ocr.NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown ocr mode %q", r.cfg.OCR.Mode)
	}
}

func (r *Runtime) buildCorrector() (correct.Corrector, correct.Explainer, error) {
	var base correct.Corrector
	switch r.cfg.Correct.Mode {
	case "ollama":
		base = correct.NewOllamaCorrector(r.cfg.Correct)
	case "mock":
		base = correct.NewMockCorrector()
	default:
		return nil, nil, fmt.Errorf("unknown correct mode %q", r.cfg.Correct.Mode)
	}
	explainer, _ := base.(correct.Explainer)
	return correct.NewRetrying(base, r.cfg.Correct.Retries), explainer, nil
}

func (r *Runtime) buildSynthesizer() (speak.Synthesizer, error) {
	switch r.cfg.Speak.Mode {
	case "exec":
		return speak.NewExecSynth(r.cfg.Speak.Command, r.cfg.Speak.SampleRate, r.cfg.Speak.Channels)
	case "mock":
		return speak.NewMockSynth(r.cfg.Speak.SampleRate, r.cfg.Speak.Channels), nil
	default:
		return nil, fmt.Errorf("unknown speak mode %q", r.cfg.Speak.Mode)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	for _, svc := range r.services {
		if !svc.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy"))
			return
		}
	}
	if !r.busConn.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleResult serves the latest published display result as JSON.
func (r *Runtime) handleResult(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.exchange.Result()); err != nil {
		r.logger.Warn("failed to encode result", slog.String("error", err.Error()))
	}
}

// handleExplanation serves the latest command explanation as JSON.
func (r *Runtime) handleExplanation(w http.ResponseWriter, _ *http.Request) {
	title, body := r.exchange.Explanation()
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]string{"title": title, "body": body}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Warn("failed to encode explanation", slog.String("error", err.Error()))
	}
}

// handleChat serves the conversation history as JSON.
func (r *Runtime) handleChat(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.exchange.ChatHistory()); err != nil {
		r.logger.Warn("failed to encode chat history", slog.String("error", err.Error()))
	}
}
