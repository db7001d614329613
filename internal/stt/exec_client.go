package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/lexiqai/pronunciation-gateway/internal/config"
)

// ExecClient runs a local speech recognizer (for example a whisper.cpp wrapper) per file.
// The command is invoked as `<command> --audio <path> [--model m] [--language l] [--format f]`
// and must print {"text": "..."} on stdout.
type ExecClient struct {
	cmd       []string
	modelPath string
	language  string

	// One recognizer process at a time; local models are CPU bound
	mu sync.Mutex
}

type execResult struct {
	Text string `json:"text"`
}

// NewExecClient parses the configured command line
func NewExecClient(cfg *config.Config) (*ExecClient, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.WhisperCommand)
	if err != nil {
		return nil, fmt.Errorf("parse whisper command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("whisper command is empty")
	}
	return &ExecClient{
		cmd:       args,
		modelPath: cfg.WhisperModelPath,
		language:  cfg.WhisperLanguage,
	}, nil
}

// Name implements Transcriber
func (e *ExecClient) Name() string {
	return config.ProviderExec
}

// Transcribe implements Transcriber
func (e *ExecClient) Transcribe(ctx context.Context, audioPath, formatHint string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	command := exec.CommandContext(ctx, e.cmd[0], e.args(audioPath, formatHint)...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return "", wrapError(e.Name(), ctx.Err())
		}
		return "", wrapError(e.Name(), fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	var res execResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return "", wrapError(e.Name(), fmt.Errorf("decode output: %w", err))
	}
	return res.Text, nil
}

func (e *ExecClient) args(audioPath, formatHint string) []string {
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", audioPath)
	if e.modelPath != "" {
		args = append(args, "--model", e.modelPath)
	}
	if e.language != "" {
		args = append(args, "--language", e.language)
	}
	if formatHint != "" {
		args = append(args, "--format", formatHint)
	}
	return args
}
