package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported speech-to-text providers
const (
	ProviderDeepgram = "deepgram"
	ProviderOpenAI   = "openai"
	ProviderExec     = "exec"
	ProviderMock     = "mock"
)

// Config holds all configuration for the pronunciation gateway
type Config struct {
	// Server configuration
	Port             string `envconfig:"PORT" default:"5000"`
	CORSAllowOrigins string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
	MaxUploadMB      int    `envconfig:"MAX_UPLOAD_MB" default:"25"`
	UploadDir        string `envconfig:"UPLOAD_DIR" default:""` // Empty means os.TempDir()

	// Load the built-in practice sentences at startup
	SeedQuestions bool `envconfig:"SEED_QUESTIONS" default:"true"`

	// Speech-to-text provider: deepgram, openai, exec, mock
	STTProvider string `envconfig:"STT_PROVIDER" default:"deepgram"`

	// Deepgram pre-recorded API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// OpenAI Whisper configuration (BaseURL allows OpenAI-compatible servers)
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"whisper-1"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`

	// Local whisper command (exec provider)
	WhisperCommand   string `envconfig:"WHISPER_COMMAND"`
	WhisperModelPath string `envconfig:"WHISPER_MODEL_PATH" default:""`
	WhisperLanguage  string `envconfig:"WHISPER_LANGUAGE" default:"en"`

	// Fixed transcript returned by the mock provider
	MockTranscript string `envconfig:"MOCK_TRANSCRIPT" default:""`

	// Transcription behaviour
	TranscribeTimeout int `envconfig:"TRANSCRIBE_TIMEOUT" default:"120"` // seconds
	BatchConcurrency  int `envconfig:"BATCH_CONCURRENCY" default:"2"`    // Parallel transcriptions per batch request

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks provider credentials and numeric limits
func (c *Config) Validate() error {
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))

	switch c.STTProvider {
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for the deepgram provider")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case ProviderExec:
		if strings.TrimSpace(c.WhisperCommand) == "" {
			return fmt.Errorf("WHISPER_COMMAND is required for the exec provider")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.TranscribeTimeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT must be positive, got %d", c.TranscribeTimeout)
	}
	if c.BatchConcurrency < 1 {
		c.BatchConcurrency = 1
	}
	if c.RetryMaxAttempts < 1 {
		c.RetryMaxAttempts = 1
	}

	return nil
}

// TempDir returns the directory used for spooled uploads
func (c *Config) TempDir() string {
	if c.UploadDir != "" {
		return c.UploadDir
	}
	return os.TempDir()
}
