package stt

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/pronunciation-gateway/internal/config"
	"github.com/lexiqai/pronunciation-gateway/internal/resilience"
)

// OpenAIClient transcribes files with OpenAI Whisper or an OpenAI-compatible server
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a Whisper client; a non-empty OPENAI_BASE_URL points it at a compatible server
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.OpenAIModel,
	}
}

// Name implements Transcriber
func (o *OpenAIClient) Name() string {
	return config.ProviderOpenAI
}

// Transcribe sends the file as a multipart upload; the API infers the format from the file name
func (o *OpenAIClient) Transcribe(ctx context.Context, audioPath, _ string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", wrapError(o.Name(), classifyOpenAIError(err))
	}
	return resp.Text, nil
}

// classifyOpenAIError marks throttling and server-side failures as retryable.
// Other API errors, such as 400 for undecodable audio, are left as they are.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
		return resilience.NewRetryableError(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return resilience.NewRetryableError(err)
	}
	return err
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
