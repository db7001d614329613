package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lexiqai/pronunciation-gateway/internal/config"
	"github.com/lexiqai/pronunciation-gateway/internal/questions"
	"github.com/lexiqai/pronunciation-gateway/internal/resilience"
	"github.com/lexiqai/pronunciation-gateway/internal/stt"
)

// echoTranscriber returns the uploaded file's bytes as the transcript.
// Content starting with "ERROR " fails with the remainder as the cause.
type echoTranscriber struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (e *echoTranscriber) Name() string { return "echo" }

func (e *echoTranscriber) Transcribe(_ context.Context, audioPath, _ string) (string, error) {
	e.mu.Lock()
	e.paths = append(e.paths, audioPath)
	e.mu.Unlock()

	if e.err != nil {
		return "", e.err
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", err
	}
	text := string(data)
	if strings.HasPrefix(text, "ERROR ") {
		return "", errors.New(strings.TrimPrefix(text, "ERROR "))
	}
	if text == "PANIC" {
		panic("transcriber exploded")
	}
	return text, nil
}

func newTestServer(t *testing.T, seed ...string) (*Server, *questions.Store, *echoTranscriber, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Port:             "0",
		CORSAllowOrigins: "*",
		MaxUploadMB:      1,
		UploadDir:        dir,
		BatchConcurrency: 2,
		MetricsEnabled:   true,
	}
	store := questions.NewStore(seed...)
	tr := &echoTranscriber{}
	return New(cfg, store, tr, zerolog.Nop()), store, tr, dir
}

type upload struct {
	field    string
	filename string
	content  string
}

func multipartRequest(t *testing.T, path string, files []upload, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := io.WriteString(part, f.content); err != nil {
			t.Fatalf("write part failed: %v", err)
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart close failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func do(t *testing.T, s *Server, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	return resp.StatusCode, body
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no temp files left, found %d", len(entries))
	}
}

func TestTranscribe(t *testing.T) {
	s, _, _, dir := newTestServer(t)

	code, body := do(t, s, multipartRequest(t, "/transcribe", []upload{{"file", "clip.webm", "hello world"}}, nil))
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}
	if body["result"] != "hello world" {
		t.Errorf("Expected result 'hello world', got %v", body["result"])
	}
	assertNoTempFiles(t, dir)
}

func TestTranscribe_NoFile(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	code, body := do(t, s, multipartRequest(t, "/transcribe", nil, map[string]string{"other": "x"}))
	if code != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
	if body["error"] != "No file uploaded" {
		t.Errorf("Unexpected error: %v", body["error"])
	}

	code, _ = do(t, s, httptest.NewRequest(http.MethodPost, "/transcribe", nil))
	if code != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for non-multipart request, got %d", code)
	}
}

func TestTranscribe_BackendFailure(t *testing.T) {
	s, _, _, dir := newTestServer(t)

	code, body := do(t, s, multipartRequest(t, "/transcribe", []upload{{"file", "clip.webm", "ERROR backend down"}}, nil))
	if code != fiber.StatusBadGateway {
		t.Errorf("Expected 502, got %d", code)
	}
	if body["error"] != "Transcription failed: backend down" {
		t.Errorf("Unexpected error: %v", body["error"])
	}
	assertNoTempFiles(t, dir)
}

func TestTranscribe_CircuitOpen(t *testing.T) {
	s, _, tr, _ := newTestServer(t)
	tr.err = fmt.Errorf("echo: %w", resilience.ErrCircuitOpen)

	code, _ := do(t, s, multipartRequest(t, "/transcribe", []upload{{"file", "clip.webm", "hi"}}, nil))
	if code != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", code)
	}
}

func TestAudioToText(t *testing.T) {
	s, _, _, dir := newTestServer(t)

	code, body := do(t, s, multipartRequest(t, "/audio-to-text", []upload{{"file", "clip.wav", "the quick brown fox"}}, nil))
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["text"] != "the quick brown fox" {
		t.Errorf("Expected text 'the quick brown fox', got %v", body["text"])
	}
	assertNoTempFiles(t, dir)

	code, body = do(t, s, multipartRequest(t, "/audio-to-text", nil, nil))
	if code != fiber.StatusBadRequest || body["error"] != "No file uploaded" {
		t.Errorf("Expected 400 'No file uploaded', got %d %v", code, body)
	}
}

func TestSubmitAnswer(t *testing.T) {
	tests := []struct {
		name        string
		question    string
		spoken      string
		wantPassed  bool
		wantAcc     float64
		wantMessage string
	}{
		{
			name:        "exact match",
			question:    "Hello World",
			spoken:      " hello world ",
			wantPassed:  true,
			wantAcc:     1.0,
			wantMessage: "Great job! Your pronunciation accuracy is 100.0%",
		},
		{
			name:        "below threshold",
			question:    "kitten",
			spoken:      "sitting",
			wantPassed:  false,
			wantAcc:     0.593,
			wantMessage: "Keep practicing! Your pronunciation accuracy is 59.3%. Try speaking more clearly.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, dir := newTestServer(t)

			req := multipartRequest(t, "/submit-answer",
				[]upload{{"audio", "answer.webm", tt.spoken}},
				map[string]string{"question": tt.question})
			code, body := do(t, s, req)
			if code != fiber.StatusOK {
				t.Fatalf("Expected 200, got %d: %v", code, body)
			}
			if body["success"] != tt.wantPassed {
				t.Errorf("Expected success %v, got %v", tt.wantPassed, body["success"])
			}
			if body["accuracy"] != tt.wantAcc {
				t.Errorf("Expected accuracy %v, got %v", tt.wantAcc, body["accuracy"])
			}
			if body["message"] != tt.wantMessage {
				t.Errorf("Unexpected message: %v", body["message"])
			}
			if body["transcribed"] != tt.spoken {
				t.Errorf("Expected transcribed %q, got %v", tt.spoken, body["transcribed"])
			}
			assertNoTempFiles(t, dir)
		})
	}
}

func TestSubmitAnswer_Validation(t *testing.T) {
	s, _, tr, _ := newTestServer(t)

	code, body := do(t, s, multipartRequest(t, "/submit-answer", nil, map[string]string{"question": "hi"}))
	if code != fiber.StatusBadRequest || body["error"] != "No audio file uploaded" {
		t.Errorf("Expected 400 'No audio file uploaded', got %d %v", code, body)
	}

	code, body = do(t, s, multipartRequest(t, "/submit-answer", []upload{{"audio", "a.webm", "hi"}}, nil))
	if code != fiber.StatusBadRequest || body["error"] != "No question text provided" {
		t.Errorf("Expected 400 'No question text provided', got %d %v", code, body)
	}

	if len(tr.paths) != 0 {
		t.Errorf("Expected no transcription calls, got %d", len(tr.paths))
	}
}

func TestSubmitAnswer_EmptyQuestion(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := multipartRequest(t, "/submit-answer", []upload{{"audio", "a.webm", "hello"}}, map[string]string{"question": ""})
	code, body := do(t, s, req)
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["accuracy"] != 0.0 || body["success"] != false {
		t.Errorf("Expected failing zero score, got %v", body)
	}
}

func TestNewQuestion(t *testing.T) {
	s, _, _, _ := newTestServer(t, "only question")

	code, body := do(t, s, httptest.NewRequest(http.MethodGet, "/new-question", nil))
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["text"] != "only question" {
		t.Errorf("Expected 'only question', got %v", body["text"])
	}
	if id, _ := body["id"].(string); len(id) != 36 {
		t.Errorf("Expected UUID id, got %v", body["id"])
	}
}

func TestNewQuestion_EmptyAfterClear(t *testing.T) {
	s, store, _, _ := newTestServer(t, questions.DefaultQuestions...)

	code, body := do(t, s, httptest.NewRequest(http.MethodDelete, "/questions", nil))
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["message"] != "All questions cleared" || body["success"] != true {
		t.Errorf("Unexpected clear response: %v", body)
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}

	code, body = do(t, s, httptest.NewRequest(http.MethodGet, "/new-question", nil))
	if code != fiber.StatusNotFound || body["error"] != "No questions available" {
		t.Errorf("Expected 404 'No questions available', got %d %v", code, body)
	}
}

func TestAddQuestion(t *testing.T) {
	s, store, _, _ := newTestServer(t)

	code, body := do(t, s, jsonRequest(http.MethodPost, "/add-question", `{"text": "  She sells sea shells  "}`))
	if code != fiber.StatusOK || body["success"] != true {
		t.Fatalf("Expected 200 success, got %d %v", code, body)
	}

	list := store.List()
	if len(list) != 1 || list[0] != "She sells sea shells" {
		t.Errorf("Expected trimmed question stored, got %v", list)
	}
}

func TestAddQuestion_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing text", `{}`, "No text provided"},
		{"null text", `{"text": null}`, "No text provided"},
		{"not json", `hello`, "No text provided"},
		{"wrong type", `{"text": 42}`, "No text provided"},
		{"empty text", `{"text": ""}`, "Question text cannot be empty"},
		{"whitespace text", `{"text": "   \t "}`, "Question text cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, _, _ := newTestServer(t, "seed")

			code, body := do(t, s, jsonRequest(http.MethodPost, "/add-question", tt.body))
			if code != fiber.StatusBadRequest {
				t.Errorf("Expected 400, got %d", code)
			}
			if body["error"] != tt.wantErr {
				t.Errorf("Expected error %q, got %v", tt.wantErr, body["error"])
			}
			if store.Len() != 1 {
				t.Errorf("Store changed on rejected input: %v", store.List())
			}
		})
	}
}

func TestListQuestions(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/questions", nil), -1)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"questions":[]`) {
		t.Errorf("Expected empty list encoded as [], got %s", raw)
	}

	s, _, _, _ = newTestServer(t, "one", "two")
	_, body := do(t, s, httptest.NewRequest(http.MethodGet, "/questions", nil))
	if body["count"] != 2.0 {
		t.Errorf("Expected count 2, got %v", body["count"])
	}
	list, _ := body["questions"].([]any)
	if len(list) != 2 || list[0] != "one" || list[1] != "two" {
		t.Errorf("Unexpected questions: %v", body["questions"])
	}
}

func TestAddMultipleQuestions(t *testing.T) {
	s, store, _, dir := newTestServer(t)

	req := multipartRequest(t, "/add-multiple-questions", []upload{
		{"audio_0", "a.webm", "first sentence"},
		{"audio_1", "b.webm", "   "},
		{"audio_2", "c.webm", "third sentence"},
	}, nil)
	code, body := do(t, s, req)
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}
	if body["added_count"] != 2.0 {
		t.Errorf("Expected added_count 2, got %v", body["added_count"])
	}
	if body["message"] != "Successfully added 2 questions with 1 errors" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
	errs, _ := body["errors"].([]any)
	if len(errs) != 1 || errs[0] != "Empty transcription for audio_1" {
		t.Errorf("Unexpected errors: %v", body["errors"])
	}

	list := store.List()
	if len(list) != 2 || list[0] != "first sentence" || list[1] != "third sentence" {
		t.Errorf("Unexpected store contents: %v", list)
	}
	assertNoTempFiles(t, dir)
}

func TestAddMultipleQuestions_NoErrorsIsNull(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	code, body := do(t, s, multipartRequest(t, "/add-multiple-questions", []upload{{"audio_0", "a.webm", "only"}}, nil))
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if v, ok := body["errors"]; !ok || v != nil {
		t.Errorf("Expected errors null, got %v", v)
	}
	if body["message"] != "Successfully added 1 questions" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
}

func TestAddMultipleQuestions_NumericOrder(t *testing.T) {
	s, store, _, _ := newTestServer(t)

	req := multipartRequest(t, "/add-multiple-questions", []upload{
		{"audio_10", "j.webm", "ten"},
		{"audio_2", "c.webm", "two"},
		{"audio_1", "b.webm", "one"},
		{"audio_x", "x.webm", "ignored"},
		{"other", "o.webm", "ignored"},
	}, nil)
	code, _ := do(t, s, req)
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	list := store.List()
	want := []string{"one", "two", "ten"}
	if strings.Join(list, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, list)
	}
}

func TestAddMultipleQuestions_AllFail(t *testing.T) {
	s, store, _, dir := newTestServer(t, "seed")

	req := multipartRequest(t, "/add-multiple-questions", []upload{
		{"audio_0", "a.webm", "ERROR unsupported codec"},
		{"audio_1", "b.webm", ""},
		{"audio_2", "c.webm", "PANIC"},
	}, nil)
	code, body := do(t, s, req)
	if code != fiber.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", code)
	}
	if body["success"] != false || body["message"] != "No questions were added" {
		t.Errorf("Unexpected body: %v", body)
	}

	raw, _ := body["errors"].([]any)
	errs := make([]string, 0, len(raw))
	for _, e := range raw {
		errs = append(errs, e.(string))
	}
	sort.Strings(errs)
	want := []string{
		"Empty transcription for audio_1",
		"Error processing audio_0: unsupported codec",
		"Error processing audio_2: panic: transcriber exploded",
	}
	if strings.Join(errs, "|") != strings.Join(want, "|") {
		t.Errorf("Expected errors %v, got %v", want, errs)
	}
	if store.Len() != 1 {
		t.Errorf("Store changed on failed batch: %v", store.List())
	}
	assertNoTempFiles(t, dir)
}

func TestAddMultipleQuestions_NoFiles(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	code, body := do(t, s, multipartRequest(t, "/add-multiple-questions", []upload{{"file", "a.webm", "x"}}, nil))
	if code != fiber.StatusBadRequest || body["error"] != "No audio files uploaded" {
		t.Errorf("Expected 400 'No audio files uploaded', got %d %v", code, body)
	}

	code, _ = do(t, s, jsonRequest(http.MethodPost, "/add-multiple-questions", `{}`))
	if code != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for non-multipart request, got %d", code)
	}
}

func TestRequestID(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if got := resp.Header.Get(RequestIDHeader); got != "req-123" {
		t.Errorf("Expected request ID echoed, got %q", got)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/questions", nil), -1)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("Expected generated request ID")
	}
}

func TestUnknownRoute(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	code, body := do(t, s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if code != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
	if _, ok := body["error"]; !ok {
		t.Errorf("Expected error field, got %v", body)
	}
}

func TestReady(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	code, body := do(t, s, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if code != fiber.StatusOK {
		t.Errorf("Expected 200, got %d: %v", code, body)
	}
}

func TestTranscribe_SpoolFailure(t *testing.T) {
	s, _, tr, _ := newTestServer(t)
	s.cfg.UploadDir = "/nonexistent/upload/dir"

	code, body := do(t, s, multipartRequest(t, "/transcribe", []upload{{"file", "clip.webm", "hi"}}, nil))
	if code != fiber.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", code)
	}
	if body["error"] != "Could not store uploaded file" {
		t.Errorf("Unexpected error: %v", body["error"])
	}
	if len(tr.paths) != 0 {
		t.Errorf("Expected no transcription calls, got %d", len(tr.paths))
	}
}

func TestTranscriptionFailure_BackendPrefixShownOnce(t *testing.T) {
	s, _, tr, _ := newTestServer(t)
	tr.err = &stt.TranscriptionError{Backend: "deepgram", Err: errors.New("unsupported container")}

	code, body := do(t, s, multipartRequest(t, "/audio-to-text", []upload{{"file", "clip.webm", "hi"}}, nil))
	if code != fiber.StatusBadGateway {
		t.Errorf("Expected 502, got %d", code)
	}
	if body["error"] != "Transcription failed: unsupported container" {
		t.Errorf("Unexpected error: %v", body["error"])
	}

	code, body = do(t, s, multipartRequest(t, "/add-multiple-questions", []upload{{"audio_0", "a.webm", "hi"}}, nil))
	if code != fiber.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", code)
	}
	errs, _ := body["errors"].([]any)
	if len(errs) != 1 || errs[0] != "Error processing audio_0: unsupported container" {
		t.Errorf("Unexpected errors: %v", body["errors"])
	}
}
