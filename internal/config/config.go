package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel         string `yaml:"log_level"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`
	OTLPInsecure     bool   `yaml:"otlp_insecure"`
	PrometheusBind   string `yaml:"prometheus_bind"`
	StatsIntervalSec int    `yaml:"stats_interval_sec"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	DaemonName  string           `yaml:"daemon_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Capture     CaptureConfig    `yaml:"capture"`
	OCR         OCRConfig        `yaml:"ocr"`
	Correct     CorrectConfig    `yaml:"correct"`
	Vote        VoteConfig       `yaml:"vote"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Speak       SpeakConfig      `yaml:"speak"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type CaptureConfig struct {
	Mode           string `yaml:"mode"` // mock, bus
	FrameSkip      int    `yaml:"frame_skip"`
	IdleSleepMS    int    `yaml:"idle_sleep_ms"`
	MockIntervalMS int    `yaml:"mock_interval_ms"`
	MockWidth      int    `yaml:"mock_width"`
	MockHeight     int    `yaml:"mock_height"`
}

type OCRConfig struct {
	Mode          string  `yaml:"mode"` // mock, exec
	Command       string  `yaml:"command"`
	ModelPath     string  `yaml:"model_path"`
	Language      string  `yaml:"language"`
	MinConfidence float64 `yaml:"min_confidence"`
	TimeoutMS     int     `yaml:"timeout_ms"`
}

type CorrectConfig struct {
	Mode              string  `yaml:"mode"` // mock, ollama
	Endpoint          string  `yaml:"endpoint"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TimeoutMS         int     `yaml:"timeout_ms"`
	Retries           int     `yaml:"retries"`
	InputMaxChars     int     `yaml:"input_max_chars"`
	MinIntervalMS     int     `yaml:"min_interval_ms"`
	CacheSize         int     `yaml:"cache_size"`
	CacheTTLSec       int     `yaml:"cache_ttl_sec"`
	BreakerFailures   int     `yaml:"breaker_failures"`
	BreakerCooldownMS int     `yaml:"breaker_cooldown_ms"`
}

type VoteConfig struct {
	WindowSize        int     `yaml:"window_size"`
	MinVotes          int     `yaml:"min_votes"`
	SimilarityVote    float64 `yaml:"similarity_vote"`
	SoftStableEnabled bool    `yaml:"soft_stable_enabled"`
	SoftStableMin     float64 `yaml:"soft_stable_min"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SpeakConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

func Default() Config {
	return Config{
		DaemonName:  "loupe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			OTLPEndpoint:     "",
			OTLPInsecure:     true,
			PrometheusBind:   ":9091",
			StatsIntervalSec: 30,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Capture: CaptureConfig{
			Mode:           "bus",
			FrameSkip:      2,
			IdleSleepMS:    50,
			MockIntervalMS: 66,
			MockWidth:      1280,
			MockHeight:     720,
		},
		OCR: OCRConfig{
			Mode:          "mock",
			Language:      "en",
			MinConfidence: 0.35,
			TimeoutMS:     15000,
		},
		Correct: CorrectConfig{
			Mode:              "mock",
			Endpoint:          "http://localhost:11434",
			Model:             "llama3.2:latest",
			MaxTokens:         280,
			Temperature:       0.2,
			TimeoutMS:         60000,
			Retries:           2,
			InputMaxChars:     800,
			MinIntervalMS:     1000,
			CacheSize:         200,
			CacheTTLSec:       600,
			BreakerFailures:   3,
			BreakerCooldownMS: 30000,
		},
		Vote: VoteConfig{
			WindowSize:        6,
			MinVotes:          4,
			SimilarityVote:    0.88,
			SoftStableEnabled: true,
			SoftStableMin:     0.92,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loupe-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Speak: SpeakConfig{
			Enabled:    false,
			Mode:       "mock",
			Voice:      "en-US",
			SampleRate: 22050,
			Channels:   1,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.DaemonName, "LOUPE_DAEMON_NAME")
	overrideString(&cfg.Environment, "LOUPE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOUPE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOUPE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOUPE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOUPE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOUPE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOUPE_TELEMETRY_PROMETHEUS_BIND")
	overrideInt(&cfg.Telemetry.StatsIntervalSec, "LOUPE_TELEMETRY_STATS_INTERVAL_SEC")
	overrideBool(&cfg.Bus.Embedded, "LOUPE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOUPE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOUPE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOUPE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOUPE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOUPE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOUPE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOUPE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Capture.Mode, "LOUPE_CAPTURE_MODE")
	overrideInt(&cfg.Capture.FrameSkip, "LOUPE_CAPTURE_FRAME_SKIP")
	overrideInt(&cfg.Capture.IdleSleepMS, "LOUPE_CAPTURE_IDLE_SLEEP_MS")
	overrideInt(&cfg.Capture.MockIntervalMS, "LOUPE_CAPTURE_MOCK_INTERVAL_MS")
	overrideString(&cfg.OCR.Mode, "LOUPE_OCR_MODE")
	overrideString(&cfg.OCR.Command, "LOUPE_OCR_COMMAND")
	overrideString(&cfg.OCR.ModelPath, "LOUPE_OCR_MODEL_PATH")
	overrideString(&cfg.OCR.Language, "LOUPE_OCR_LANGUAGE")
	overrideFloat(&cfg.OCR.MinConfidence, "LOUPE_OCR_MIN_CONFIDENCE")
	overrideInt(&cfg.OCR.TimeoutMS, "LOUPE_OCR_TIMEOUT_MS")
	overrideString(&cfg.Correct.Mode, "LOUPE_CORRECT_MODE")
	overrideString(&cfg.Correct.Endpoint, "LOUPE_CORRECT_ENDPOINT")
	overrideString(&cfg.Correct.Model, "LOUPE_CORRECT_MODEL")
	overrideInt(&cfg.Correct.MaxTokens, "LOUPE_CORRECT_MAX_TOKENS")
	overrideFloat(&cfg.Correct.Temperature, "LOUPE_CORRECT_TEMPERATURE")
	overrideInt(&cfg.Correct.TimeoutMS, "LOUPE_CORRECT_TIMEOUT_MS")
	overrideInt(&cfg.Correct.Retries, "LOUPE_CORRECT_RETRIES")
	overrideInt(&cfg.Correct.InputMaxChars, "LOUPE_CORRECT_INPUT_MAX_CHARS")
	overrideInt(&cfg.Correct.MinIntervalMS, "LOUPE_CORRECT_MIN_INTERVAL_MS")
	overrideInt(&cfg.Correct.CacheSize, "LOUPE_CORRECT_CACHE_SIZE")
	overrideInt(&cfg.Correct.CacheTTLSec, "LOUPE_CORRECT_CACHE_TTL_SEC")
	overrideInt(&cfg.Correct.BreakerFailures, "LOUPE_CORRECT_BREAKER_FAILURES")
	overrideInt(&cfg.Correct.BreakerCooldownMS, "LOUPE_CORRECT_BREAKER_COOLDOWN_MS")
	overrideInt(&cfg.Vote.WindowSize, "LOUPE_VOTE_WINDOW_SIZE")
	overrideInt(&cfg.Vote.MinVotes, "LOUPE_VOTE_MIN_VOTES")
	overrideFloat(&cfg.Vote.SimilarityVote, "LOUPE_VOTE_SIMILARITY_VOTE")
	overrideBool(&cfg.Vote.SoftStableEnabled, "LOUPE_VOTE_SOFT_STABLE_ENABLED")
	overrideFloat(&cfg.Vote.SoftStableMin, "LOUPE_VOTE_SOFT_STABLE_MIN")
	overrideString(&cfg.EventStore.Path, "LOUPE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOUPE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOUPE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOUPE_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOUPE_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Speak.Enabled, "LOUPE_SPEAK_ENABLED")
	overrideString(&cfg.Speak.Mode, "LOUPE_SPEAK_MODE")
	overrideString(&cfg.Speak.Command, "LOUPE_SPEAK_COMMAND")
	overrideString(&cfg.Speak.Voice, "LOUPE_SPEAK_VOICE")
	overrideInt(&cfg.Speak.SampleRate, "LOUPE_SPEAK_SAMPLE_RATE")
	overrideInt(&cfg.Speak.Channels, "LOUPE_SPEAK_CHANNELS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.DaemonName == "" {
		return errors.New("daemon_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Capture.Mode {
	case "mock", "bus":
	default:
		return errors.New("capture.mode must be one of mock|bus")
	}
	if cfg.Capture.FrameSkip < 1 {
		return errors.New("capture.frame_skip must be >= 1")
	}
	if cfg.Capture.IdleSleepMS <= 0 {
		return errors.New("capture.idle_sleep_ms must be positive")
	}
	switch cfg.OCR.Mode {
	case "mock", "exec":
	default:
		return errors.New("ocr.mode must be one of mock|exec")
	}
	if cfg.OCR.Mode == "exec" && cfg.OCR.Command == "" {
		return errors.New("ocr.command must be set when mode=exec")
	}
	if cfg.OCR.TimeoutMS <= 0 {
		return errors.New("ocr.timeout_ms must be positive")
	}
	if cfg.OCR.MinConfidence < 0 || cfg.OCR.MinConfidence > 1 {
		return errors.New("ocr.min_confidence must be within [0,1]")
	}
	switch cfg.Correct.Mode {
	case "mock", "ollama":
	default:
		return errors.New("correct.mode must be one of mock|ollama")
	}
	if cfg.Correct.Mode == "ollama" && cfg.Correct.Endpoint == "" {
		return errors.New("correct.endpoint must be set when mode=ollama")
	}
	if cfg.Correct.TimeoutMS <= 0 {
		return errors.New("correct.timeout_ms must be positive")
	}
	if cfg.Correct.Retries < 0 {
		return errors.New("correct.retries must be >= 0")
	}
	if cfg.Correct.CacheSize < 1 {
		return errors.New("correct.cache_size must be >= 1")
	}
	if cfg.Correct.CacheTTLSec < 1 {
		return errors.New("correct.cache_ttl_sec must be >= 1")
	}
	if cfg.Correct.BreakerFailures < 1 {
		return errors.New("correct.breaker_failures must be >= 1")
	}
	if cfg.Correct.BreakerCooldownMS < 0 {
		return errors.New("correct.breaker_cooldown_ms must be >= 0")
	}
	if cfg.Vote.WindowSize < 1 {
		return errors.New("vote.window_size must be >= 1")
	}
	if cfg.Vote.MinVotes < 1 {
		return errors.New("vote.min_votes must be >= 1")
	}
	if cfg.Vote.MinVotes > cfg.Vote.WindowSize {
		return errors.New("vote.min_votes must not exceed vote.window_size")
	}
	if cfg.Vote.SimilarityVote < 0 || cfg.Vote.SimilarityVote > 1 {
		return errors.New("vote.similarity_vote must be within [0,1]")
	}
	if cfg.Vote.SoftStableMin < 0 || cfg.Vote.SoftStableMin > 1 {
		return errors.New("vote.soft_stable_min must be within [0,1]")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Speak.Enabled {
		switch cfg.Speak.Mode {
		case "mock", "exec":
		default:
			return errors.New("speak.mode must be one of mock|exec")
		}
		if cfg.Speak.Mode == "exec" && cfg.Speak.Command == "" {
			return errors.New("speak.command must be set when mode=exec")
		}
		if cfg.Speak.SampleRate <= 0 {
			return errors.New("speak.sample_rate must be positive")
		}
		if cfg.Speak.Channels <= 0 {
			return errors.New("speak.channels must be positive")
		}
	}
	return nil
}
