package stt

import (
	"context"
)

// MockClient answers every call with a fixed transcript, or with Err when set.
// Used by the mock provider for local development.
type MockClient struct {
	Transcript string
	Err        error
}

// NewMockClient creates a mock that answers every call with transcript
func NewMockClient(transcript string) *MockClient {
	return &MockClient{Transcript: transcript}
}

// Name implements Transcriber
func (m *MockClient) Name() string {
	return "mock"
}

// Transcribe implements Transcriber
func (m *MockClient) Transcribe(ctx context.Context, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrapError(m.Name(), err)
	}
	if m.Err != nil {
		return "", wrapError(m.Name(), m.Err)
	}
	return m.Transcript, nil
}
