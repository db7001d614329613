package stt

import (
	"context"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/lexiqai/pronunciation-gateway/internal/config"
)

// DeepgramClient transcribes files with Deepgram's pre-recorded REST API
type DeepgramClient struct {
	client   *api.Client
	model    string
	language string
}

// NewDeepgramClient creates a new Deepgram pre-recorded client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	c := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})
	return &DeepgramClient{
		client:   api.New(c),
		model:    cfg.DeepgramModel,
		language: cfg.DeepgramLanguage,
	}
}

// Name implements Transcriber
func (d *DeepgramClient) Name() string {
	return config.ProviderDeepgram
}

// Transcribe uploads the file and returns the best alternative of the first channel.
// Deepgram detects the container itself, so formatHint is unused.
func (d *DeepgramClient) Transcribe(ctx context.Context, audioPath, _ string) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:     d.model,
		Language:  d.language,
		Punctuate: true,
	}

	res, err := d.client.FromFile(ctx, audioPath, options)
	if err != nil {
		return "", wrapError(d.Name(), err)
	}
	if res == nil || res.Results == nil {
		return "", wrapError(d.Name(), fmt.Errorf("empty response"))
	}

	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		// No speech recognised
		return "", nil
	}
	return strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript), nil
}
