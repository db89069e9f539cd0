package eventstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loupelabs/loupe/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "loupe.db"),
		RetentionMode: "persistent",
		RetentionDays: 30,
		MaxSessions:   100,
	}
	s, err := Open(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.AppendSession(ctx, "sess-1"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.AppendEvent(ctx, Event{
		SessionID:     "sess-1",
		Type:          EventRecognition,
		StableText:    "hello world",
		Confidence:    0.91,
		RecognitionMS: 120,
	}); err != nil {
		t.Fatalf("append recognition: %v", err)
	}
	if err := s.AppendEvent(ctx, Event{
		SessionID:     "sess-1",
		Type:          EventCorrection,
		StableText:    "hello world",
		CorrectedText: "Hello, world",
		CorrectionMS:  450,
	}); err != nil {
		t.Fatalf("append correction: %v", err)
	}

	events, err := s.ListSessionEvents(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventRecognition {
		t.Errorf("expected recognition first, got %q", events[0].Type)
	}
	if events[1].CorrectedText != "Hello, world" {
		t.Errorf("unexpected corrected text %q", events[1].CorrectedText)
	}
}

func TestEphemeralModeDiscards(t *testing.T) {
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("open ephemeral store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.AppendSession(ctx, "sess-1"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.AppendEvent(ctx, Event{SessionID: "sess-1", Type: EventRecognition}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := s.ListSessionEvents(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events in ephemeral mode, got %d", len(events))
	}
}

func TestPruneByAge(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.AppendSession(ctx, "old"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	old := time.Now().Add(-40 * 24 * time.Hour).UTC()
	if err := s.AppendEvent(ctx, Event{SessionID: "old", Type: EventRecognition, CreatedAt: old}); err != nil {
		t.Fatalf("append old event: %v", err)
	}
	if err := s.AppendSession(ctx, "new"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.AppendEvent(ctx, Event{SessionID: "new", Type: EventRecognition}); err != nil {
		t.Fatalf("append new event: %v", err)
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := s.ListSessionEvents(ctx, "old", 10)
	if err != nil {
		t.Fatalf("list old events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old events pruned, got %d", len(events))
	}
	events, err = s.ListSessionEvents(ctx, "new", 10)
	if err != nil {
		t.Fatalf("list new events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected new event kept, got %d", len(events))
	}
}
