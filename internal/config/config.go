package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Port string `toml:"port"`

	// Auth
	APIKey string `toml:"api_key"`

	// Completion provider
	LLMProvider     string  `toml:"llm_provider"`
	AnthropicAPIKey string  `toml:"anthropic_api_key"`
	AnthropicModel  string  `toml:"anthropic_model"`
	OpenAIAPIKey    string  `toml:"openai_api_key"`
	OpenAIModel     string  `toml:"openai_model"`
	OpenAIBaseURL   string  `toml:"openai_base_url"`
	LLMMaxRetries   int     `toml:"llm_max_retries"`
	LLMRateLimit    float64 `toml:"llm_rate_limit"`

	// Worker pool
	WorkerCount  int `toml:"worker_count"`
	MaxQueueSize int `toml:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `toml:"max_upload_bytes"`

	// Chunking
	MaxChunkSize  int    `toml:"max_chunk_size"`
	ChunkOverlap  int    `toml:"chunk_overlap"`
	TokenizerPath string `toml:"tokenizer_path"`

	// Job and session state
	JobTTL     time.Duration `toml:"job_ttl"`
	SessionTTL time.Duration `toml:"session_ttl"`

	// Storage
	DBPath string `toml:"db_path"`

	// PDF
	PDFFallbackPdftotext bool `toml:"pdf_fallback_pdftotext"`

	Pomodoro PomodoroConfig `toml:"pomodoro"`
}

// PomodoroConfig holds the default cycle settings for new timers.
type PomodoroConfig struct {
	WorkDuration            time.Duration `toml:"work_duration"`
	ShortBreakDuration      time.Duration `toml:"short_break_duration"`
	LongBreakDuration       time.Duration `toml:"long_break_duration"`
	SessionsBeforeLongBreak int           `toml:"sessions_before_long_break"`
	AutoStartBreaks         bool          `toml:"auto_start_breaks"`
	AutoStartPomodoros      bool          `toml:"auto_start_pomodoros"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Port: "8090",

		LLMProvider:    "anthropic",
		AnthropicModel: "claude-sonnet-4-5-20250929",
		OpenAIModel:    "gpt-4o-mini",
		OpenAIBaseURL:  "https://api.openai.com/v1",
		LLMMaxRetries:  3,
		LLMRateLimit:   2,

		WorkerCount:  4,
		MaxQueueSize: 100,

		MaxUploadBytes: 52428800, // 50MB

		MaxChunkSize: 4000,
		ChunkOverlap: 200,

		JobTTL:     1 * time.Hour,
		SessionTTL: 2 * time.Hour,

		DBPath: "studykit.db",

		PDFFallbackPdftotext: true,

		Pomodoro: PomodoroConfig{
			WorkDuration:            25 * time.Minute,
			ShortBreakDuration:      5 * time.Minute,
			LongBreakDuration:       15 * time.Minute,
			SessionsBeforeLongBreak: 4,
			AutoStartBreaks:         false,
			AutoStartPomodoros:      true,
		},
	}
}

// Load reads config: defaults -> TOML file (STUDYKIT_CONFIG) -> env vars (env wins).
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("STUDYKIT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyFallbacks()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.APIKey = envOr("STUDYKIT_API_KEY", c.APIKey)

	c.LLMProvider = envOr("LLM_PROVIDER", c.LLMProvider)
	c.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = envOr("ANTHROPIC_MODEL", c.AnthropicModel)
	c.OpenAIAPIKey = envOr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = envOr("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = envOr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.LLMMaxRetries = envInt("LLM_MAX_RETRIES", c.LLMMaxRetries)
	c.LLMRateLimit = envFloat("LLM_RATE_LIMIT", c.LLMRateLimit)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)

	c.MaxChunkSize = envInt("MAX_CHUNK_SIZE", c.MaxChunkSize)
	c.ChunkOverlap = envInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.TokenizerPath = envOr("TOKENIZER_PATH", c.TokenizerPath)

	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)
	c.SessionTTL = envDuration("SESSION_TTL", c.SessionTTL)
	c.DBPath = envOr("DB_PATH", c.DBPath)
	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)

	p := &c.Pomodoro
	p.WorkDuration = envDuration("WORK_DURATION", p.WorkDuration)
	p.ShortBreakDuration = envDuration("SHORT_BREAK_DURATION", p.ShortBreakDuration)
	p.LongBreakDuration = envDuration("LONG_BREAK_DURATION", p.LongBreakDuration)
	p.SessionsBeforeLongBreak = envInt("SESSIONS_BEFORE_LONG_BREAK", p.SessionsBeforeLongBreak)
	p.AutoStartBreaks = envBool("AUTO_START_BREAKS", p.AutoStartBreaks)
	p.AutoStartPomodoros = envBool("AUTO_START_POMODOROS", p.AutoStartPomodoros)
}

// applyFallbacks replaces non-positive values with defaults.
func (c *Config) applyFallbacks() {
	d := Default()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkSize {
		c.ChunkOverlap = c.MaxChunkSize / 20
	}
	if c.LLMMaxRetries < 0 {
		c.LLMMaxRetries = 0
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.Pomodoro.WorkDuration <= 0 {
		c.Pomodoro.WorkDuration = d.Pomodoro.WorkDuration
	}
	if c.Pomodoro.ShortBreakDuration <= 0 {
		c.Pomodoro.ShortBreakDuration = d.Pomodoro.ShortBreakDuration
	}
	if c.Pomodoro.LongBreakDuration <= 0 {
		c.Pomodoro.LongBreakDuration = d.Pomodoro.LongBreakDuration
	}
	if c.Pomodoro.SessionsBeforeLongBreak <= 0 {
		c.Pomodoro.SessionsBeforeLongBreak = d.Pomodoro.SessionsBeforeLongBreak
	}
}

// Validate checks the secrets required by the selected provider.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("STUDYKIT_API_KEY is required")
	}
	return c.ValidateProvider()
}

// ValidateProvider checks only the completion provider settings. The CLI
// uses it since it has no HTTP surface to protect.
func (c Config) ValidateProvider() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (supported: anthropic, openai)", c.LLMProvider)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
