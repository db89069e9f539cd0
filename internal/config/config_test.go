package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Vote.WindowSize != 6 || cfg.Vote.MinVotes != 4 {
		t.Fatalf("unexpected voting defaults: %+v", cfg.Vote)
	}
	if cfg.Correct.BreakerFailures != 3 {
		t.Fatalf("unexpected breaker default: %d", cfg.Correct.BreakerFailures)
	}
}

func TestLoadFile(t *testing.T) {
	data := []byte(`
capture:
  mode: mock
  frame_skip: 3
vote:
  window_size: 5
  min_votes: 3
  similarity_vote: 0
correct:
  min_interval_ms: 250
  cache_size: 16
`)
	path := filepath.Join(t.TempDir(), "loupe.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Mode != "mock" || cfg.Capture.FrameSkip != 3 {
		t.Fatalf("capture section not applied: %+v", cfg.Capture)
	}
	if cfg.Vote.WindowSize != 5 || cfg.Vote.MinVotes != 3 {
		t.Fatalf("vote section not applied: %+v", cfg.Vote)
	}
	if cfg.Vote.SimilarityVote != 0 {
		t.Fatalf("expected exact-match voting, got %v", cfg.Vote.SimilarityVote)
	}
	if cfg.Correct.MinIntervalMS != 250 || cfg.Correct.CacheSize != 16 {
		t.Fatalf("correct section not applied: %+v", cfg.Correct)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOUPE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOUPE_BUS_USERNAME", "alice")
	t.Setenv("LOUPE_CAPTURE_FRAME_SKIP", "4")
	t.Setenv("LOUPE_VOTE_MIN_VOTES", "2")
	t.Setenv("LOUPE_VOTE_SIMILARITY_VOTE", "0.75")
	t.Setenv("LOUPE_CORRECT_BREAKER_FAILURES", "5")
	t.Setenv("LOUPE_CORRECT_BREAKER_COOLDOWN_MS", "12000")
	t.Setenv("LOUPE_EVENT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" {
		t.Fatalf("expected username override")
	}
	if cfg.Capture.FrameSkip != 4 {
		t.Fatalf("expected frame skip override, got %d", cfg.Capture.FrameSkip)
	}
	if cfg.Vote.MinVotes != 2 {
		t.Fatalf("expected min votes override, got %d", cfg.Vote.MinVotes)
	}
	if cfg.Vote.SimilarityVote != 0.75 {
		t.Fatalf("expected similarity override, got %v", cfg.Vote.SimilarityVote)
	}
	if cfg.Correct.BreakerFailures != 5 || cfg.Correct.BreakerCooldownMS != 12000 {
		t.Fatalf("expected breaker overrides: %+v", cfg.Correct)
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
}

func TestValidateRejectsBadQuorum(t *testing.T) {
	t.Setenv("LOUPE_VOTE_MIN_VOTES", "9")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when min_votes exceeds window_size")
	}
}

func TestValidateRequiresExecCommand(t *testing.T) {
	t.Setenv("LOUPE_OCR_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when ocr mode=exec without command")
	}
}
