package stt

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/pronunciation-gateway/internal/config"
)

// New builds the configured backend wrapped in Resilient.
// It is called once at startup; the returned handle is shared by all requests.
func New(cfg *config.Config, logger zerolog.Logger) (*Resilient, error) {
	var backend Transcriber

	switch cfg.STTProvider {
	case config.ProviderDeepgram:
		backend = NewDeepgramClient(cfg)
	case config.ProviderOpenAI:
		backend = NewOpenAIClient(cfg)
	case config.ProviderExec:
		client, err := NewExecClient(cfg)
		if err != nil {
			return nil, err
		}
		backend = client
	case config.ProviderMock:
		backend = NewMockClient(cfg.MockTranscript)
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STTProvider)
	}

	logger.Info().Str("provider", backend.Name()).Msg("Transcription backend initialised")
	return NewResilient(backend, cfg, logger), nil
}
