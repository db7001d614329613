package stt

import (
	"context"
	"fmt"
)

// Transcriber converts a spooled audio file into plain text.
// An empty transcript is a valid result; failures are reported as *TranscriptionError.
type Transcriber interface {
	// Transcribe reads the audio at audioPath. formatHint names the container
	// format ("webm", "wav", ...) and may be empty.
	Transcribe(ctx context.Context, audioPath, formatHint string) (string, error)

	// Name identifies the backend in logs and metrics
	Name() string
}

// TranscriptionError reports a failed transcription call
type TranscriptionError struct {
	Backend string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("%s transcription failed: %v", e.Backend, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// wrapError returns err as a *TranscriptionError, leaving existing ones untouched
func wrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TranscriptionError); ok {
		return te
	}
	return &TranscriptionError{Backend: backend, Err: err}
}
