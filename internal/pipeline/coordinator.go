package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loupelabs/loupe/internal/bus"
	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/correct"
	"github.com/loupelabs/loupe/internal/eventstore"
	"github.com/loupelabs/loupe/internal/ocr"
	"github.com/loupelabs/loupe/internal/protocol"
	"github.com/nats-io/nats.go"
)

// correctionTask is the single in-flight correction call. The goroutine
// running the call reports through the buffered done channel; the
// coordinator polls it without blocking at the top of each cycle.
type correctionTask struct {
	stableText    string
	rawText       string
	confidence    float64
	recognitionMS int64
	sessionID     string
	langHint      string
	done          chan correctionOutcome
}

type correctionOutcome struct {
	result correct.Result
	err    error
}

// Coordinator runs the consumer side of the pipeline: take the freshest
// frame, recognize, vote, then correct through the cache, throttle and
// breaker gates. Exactly one correction call may be outstanding; its result
// is merged on a later cycle so a slow backend never stalls recognition.
//
// All pipeline state below is owned by the single run goroutine. Only the
// Exchange is shared.
type Coordinator struct {
	cfg        config.Config
	exchange   *Exchange
	recognizer ocr.Recognizer
	corrector  correct.Corrector
	explainer  correct.Explainer
	bus        *bus.Client
	store      *eventstore.Store
	logger     *slog.Logger

	voter    *Voter
	cache    *ResultCache
	throttle *Throttle
	breaker  *Breaker
	metrics  *Metrics

	lastSentText  string
	haveSentText  bool
	lastCorrected string
	haveCorrected bool
	lastLangHint  string
	pending       *correctionTask
	breakerOpen   bool

	// Cycle counters for the periodic stats line, owned by the run goroutine.
	statFrames      int64
	statCorrections int64
	statCacheHits   int64
	statThrottled   int64
	statsLast       time.Time

	subs   []*nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  bool
}

func NewCoordinator(parent context.Context, cfg config.Config, exchange *Exchange, recognizer ocr.Recognizer, corrector correct.Corrector, explainer correct.Explainer, busClient *bus.Client, store *eventstore.Store, log *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		cfg:        cfg,
		exchange:   exchange,
		recognizer: recognizer,
		corrector:  corrector,
		explainer:  explainer,
		bus:        busClient,
		store:      store,
		logger:     log.With(slog.String("component", "pipeline")),
		voter:      NewVoter(cfg.Vote.WindowSize, cfg.Vote.MinVotes, cfg.Vote.SimilarityVote),
		cache:      NewResultCache(cfg.Correct.CacheSize, time.Duration(cfg.Correct.CacheTTLSec)*time.Second),
		throttle:   NewThrottle(time.Duration(cfg.Correct.MinIntervalMS) * time.Millisecond),
		breaker:    NewBreaker(cfg.Correct.BreakerFailures, time.Duration(cfg.Correct.BreakerCooldownMS)*time.Millisecond),
		metrics:    NewMetrics(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (c *Coordinator) Start() error {
	if c.bus != nil {
		sub, err := c.bus.Conn().Subscribe(protocol.SubjectCommandPrefix+".>", c.handleCommand)
		if err != nil {
			return fmt.Errorf("subscribe commands: %w", err)
		}
		c.subs = append(c.subs, sub)
		sub, err = c.bus.Conn().Subscribe(protocol.SubjectChatMessage, c.handleChat)
		if err != nil {
			return fmt.Errorf("subscribe chat: %w", err)
		}
		c.subs = append(c.subs, sub)
	}
	c.wg.Add(1)
	go c.run()
	c.ready = true
	return nil
}

func (c *Coordinator) Close() {
	c.cancel()
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.wg.Wait()
}

func (c *Coordinator) Healthy() bool { return c.ready }

func (c *Coordinator) run() {
	defer c.wg.Done()
	c.statsLast = time.Now()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		c.runCycle()
		c.maybeLogStats()
	}
}

// maybeLogStats emits a throughput summary at the configured cadence and
// resets the window counters.
func (c *Coordinator) maybeLogStats() {
	interval := time.Duration(c.cfg.Telemetry.StatsIntervalSec) * time.Second
	if interval <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(c.statsLast) < interval {
		return
	}
	c.logger.Info("pipeline stats",
		slog.Int64("frames", c.statFrames),
		slog.Int64("corrections", c.statCorrections),
		slog.Int64("cache_hits", c.statCacheHits),
		slog.Int64("throttled", c.statThrottled),
		slog.Int("breaker_failures", c.breaker.Failures()))
	c.statFrames, c.statCorrections, c.statCacheHits, c.statThrottled = 0, 0, 0, 0
	c.statsLast = now
}

// runCycle executes one pass of the state machine. It never returns an
// error: every failure resolves to a published DisplayResult.
func (c *Coordinator) runCycle() {
	c.pollSideChannel()
	c.drainPendingCorrection()

	frame, ok := c.exchange.TakeFrame(c.cfg.Capture.FrameSkip)
	if !ok {
		// The only sleep point. Skip-sampling and idle both land here.
		c.idleSleep()
		return
	}
	c.metrics.recordFrame(c.ctx)
	c.statFrames++

	recognized, err := c.recognize(frame)
	recognitionMS := recognized.Latency.Milliseconds()
	c.metrics.recordRecognition(c.ctx, recognized.Latency)
	if err != nil {
		c.voter.Add("")
		stable := c.voter.Stable()
		c.logger.Warn("recognition failed", slogError(err))
		c.publish(protocol.DisplayResult{
			SessionID:     frame.SessionID,
			RawText:       stable,
			StableText:    stable,
			CorrectedText: stable,
			RecognitionMS: recognitionMS,
			RecognitionOK: false,
			CorrectionOK:  true,
			ErrorMsg:      err.Error(),
		})
		return
	}

	c.voter.Add(recognized.Text)
	stable := c.voter.Stable()
	settled := c.voter.IsStable()
	if !settled && c.cfg.Vote.SoftStableEnabled && stable != "" && recognized.Text != "" {
		settled = c.voter.IsSoftStable(c.cfg.Vote.SoftStableMin)
	}

	base := protocol.DisplayResult{
		SessionID:     frame.SessionID,
		RawText:       recognized.Text,
		StableText:    stable,
		Confidence:    recognized.Confidence,
		RecognitionMS: recognitionMS,
		RecognitionOK: true,
		CorrectionOK:  true,
	}

	// Not yet converged: show the raw recognition as a live preview.
	if strings.TrimSpace(stable) == "" || !settled {
		base.CorrectedText = recognized.Text
		c.publish(base)
		return
	}

	c.appendEvent(eventstore.Event{
		SessionID:     frame.SessionID,
		Type:          eventstore.EventRecognition,
		StableText:    stable,
		Confidence:    recognized.Confidence,
		RecognitionMS: recognitionMS,
	})

	// Same text as the previous dispatch: reuse its correction.
	if c.haveSentText && c.haveCorrected && stable == c.lastSentText {
		base.CorrectedText = c.lastCorrected
		c.publish(base)
		return
	}

	if entry, hit := c.cache.Get(stable, c.lastLangHint); hit {
		c.metrics.recordCacheHit(c.ctx)
		c.statCacheHits++
		base.CorrectedText = entry.Corrected
		base.CorrectionMS = entry.Latency.Milliseconds()
		c.publish(base)
		c.requestSpeak(frame.SessionID, entry.Corrected)
		return
	}

	if c.breaker.IsOpen() {
		base.CorrectedText = stable
		base.CorrectionOK = false
		base.Degraded = true
		base.ErrorMsg = "correction suppressed: breaker open"
		c.publish(base)
		return
	}

	if !c.throttle.TryAcquire() {
		c.metrics.recordThrottled(c.ctx)
		c.statThrottled++
		base.CorrectedText = stable
		c.publish(base)
		return
	}

	if c.pending != nil {
		base.CorrectedText = stable
		c.publish(base)
		return
	}

	c.dispatchCorrection(frame.SessionID, stable, recognized.Text, recognized.Confidence, recognitionMS)
	base.CorrectedText = stable
	c.publish(base)
}

// drainPendingCorrection polls the outstanding correction without blocking
// and merges its outcome into a fresh publish.
func (c *Coordinator) drainPendingCorrection() {
	if c.pending == nil {
		return
	}
	var outcome correctionOutcome
	select {
	case outcome = <-c.pending.done:
	default:
		return
	}
	task := c.pending
	c.pending = nil

	result := protocol.DisplayResult{
		SessionID:     task.sessionID,
		RawText:       task.rawText,
		StableText:    task.stableText,
		Confidence:    task.confidence,
		RecognitionMS: task.recognitionMS,
		RecognitionOK: true,
	}

	if outcome.err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("correction failed",
			slogError(outcome.err),
			slog.Int("consecutive_failures", c.breaker.Failures()))
		if c.breaker.IsOpen() && !c.breakerOpen {
			c.breakerOpen = true
			c.metrics.recordBreakerOpen(c.ctx)
			c.logger.Error("correction breaker opened")
			c.appendEvent(eventstore.Event{
				SessionID:  task.sessionID,
				Type:       eventstore.EventBreakerOpen,
				StableText: task.stableText,
			})
		}
		result.CorrectedText = task.stableText
		result.CorrectionOK = false
		result.ErrorMsg = outcome.err.Error()
		c.publish(result)
		return
	}

	c.breaker.RecordSuccess()
	c.breakerOpen = false
	res := outcome.result
	c.lastSentText = task.stableText
	c.haveSentText = true
	c.lastCorrected = res.Corrected
	c.haveCorrected = true
	if strings.TrimSpace(task.stableText) != "" {
		c.cache.Put(task.stableText, task.langHint, CacheEntry{
			Corrected:    res.Corrected,
			LanguageHint: res.LanguageHint,
			Latency:      res.Latency,
		})
	}
	if res.LanguageHint != "" {
		c.lastLangHint = res.LanguageHint
	}
	c.metrics.recordCorrection(c.ctx, res.Latency)
	c.statCorrections++

	result.CorrectedText = res.Corrected
	result.CorrectionMS = res.Latency.Milliseconds()
	result.CorrectionOK = true
	c.publish(result)

	c.appendEvent(eventstore.Event{
		SessionID:     task.sessionID,
		Type:          eventstore.EventCorrection,
		StableText:    task.stableText,
		CorrectedText: res.Corrected,
		Confidence:    task.confidence,
		RecognitionMS: task.recognitionMS,
		CorrectionMS:  res.Latency.Milliseconds(),
	})
	c.requestSpeak(task.sessionID, res.Corrected)
}

// dispatchCorrection submits the single asynchronous correction call. The
// call is never cancelled once in flight; a stale result is still merged and
// cached, and dedup supersedes it on the next relevant cycle.
func (c *Coordinator) dispatchCorrection(sessionID, stable, raw string, confidence float64, recognitionMS int64) {
	task := &correctionTask{
		stableText:    stable,
		rawText:       raw,
		confidence:    confidence,
		recognitionMS: recognitionMS,
		sessionID:     sessionID,
		langHint:      c.lastLangHint,
		done:          make(chan correctionOutcome, 1),
	}
	c.pending = task
	c.lastSentText = stable
	c.haveSentText = true

	c.logger.Info("dispatching correction", slog.String("text", preview(stable, 60)))
	go func() {
		res, err := c.corrector.Correct(c.ctx, task.stableText)
		task.done <- correctionOutcome{result: res, err: err}
	}()
}

// recognize bounds the engine call with the configured timeout so a hung
// engine cannot stall the loop. The orphaned goroutine finishes on its own.
func (c *Coordinator) recognize(frame protocol.Frame) (ocr.Result, error) {
	timeout := time.Duration(c.cfg.OCR.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	type recognition struct {
		result ocr.Result
		err    error
	}
	done := make(chan recognition, 1)
	start := time.Now()
	go func() {
		res, err := c.recognizer.Recognize(ctx, frame)
		done <- recognition{result: res, err: err}
	}()
	select {
	case r := <-done:
		if r.result.Latency == 0 {
			r.result.Latency = time.Since(start)
		}
		return r.result, r.err
	case <-ctx.Done():
		return ocr.Result{Latency: time.Since(start)}, fmt.Errorf("recognition timed out after %s", timeout)
	}
}

func (c *Coordinator) idleSleep() {
	sleep := time.Duration(c.cfg.Capture.IdleSleepMS) * time.Millisecond
	if sleep <= 0 {
		sleep = 50 * time.Millisecond
	}
	select {
	case <-c.ctx.Done():
	case <-time.After(sleep):
	}
}

// publish stamps the result and fans it out: exchange snapshot first, then
// best-effort bus broadcast. Total order is guaranteed by this goroutine.
func (c *Coordinator) publish(result protocol.DisplayResult) {
	result.Timestamp = time.Now().UTC()
	c.exchange.PublishResult(result)
	if c.bus == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("failed to marshal result", slogError(err))
		return
	}
	if err := c.bus.Conn().Publish(protocol.SubjectResultUpdated, data); err != nil {
		c.logger.Warn("failed to publish result", slogError(err))
	}
}

func (c *Coordinator) requestSpeak(sessionID, text string) {
	if c.bus == nil || !c.cfg.Speak.Enabled || strings.TrimSpace(text) == "" {
		return
	}
	req := protocol.SpeakRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     c.cfg.Speak.Voice,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return
	}
	if err := c.bus.Conn().Publish(protocol.SubjectSpeakRequest, data); err != nil {
		c.logger.Warn("failed to publish speak request", slogError(err))
	}
}

func (c *Coordinator) appendEvent(evt eventstore.Event) {
	if c.store == nil {
		return
	}
	if err := c.store.AppendSession(c.ctx, evt.SessionID); err != nil {
		c.logger.Warn("failed to record session", slogError(err))
		return
	}
	if err := c.store.AppendEvent(c.ctx, evt); err != nil {
		c.logger.Warn("failed to record event", slogError(err))
	}
}

func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
