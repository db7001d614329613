package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/pronunciation-gateway/internal/audio"
	"github.com/lexiqai/pronunciation-gateway/internal/observability"
	"github.com/lexiqai/pronunciation-gateway/internal/questions"
	"github.com/lexiqai/pronunciation-gateway/internal/resilience"
	"github.com/lexiqai/pronunciation-gateway/internal/scoring"
	"github.com/lexiqai/pronunciation-gateway/internal/stt"
)

var validate = validator.New()

// errSpool marks failures to store an upload before transcription starts
var errSpool = errors.New("could not store upload")

type addQuestionRequest struct {
	Text *string `json:"text" validate:"required"`
}

// Transcribe handles POST /transcribe
func (s *Server) Transcribe(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}

	text, err := s.transcribeUpload(c.UserContext(), fh, requestLogger(c))
	if err != nil {
		return transcriptionFailed(c, err)
	}
	return c.JSON(fiber.Map{"result": text})
}

// AudioToText handles POST /audio-to-text
func (s *Server) AudioToText(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}

	text, err := s.transcribeUpload(c.UserContext(), fh, requestLogger(c))
	if err != nil {
		return transcriptionFailed(c, err)
	}
	return c.JSON(fiber.Map{"text": text})
}

// NewQuestion handles GET /new-question
func (s *Server) NewQuestion(c *fiber.Ctx) error {
	text, err := s.store.RandomPick()
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No questions available"})
	}
	return c.JSON(fiber.Map{"id": uuid.NewString(), "text": text})
}

// SubmitAnswer handles POST /submit-answer
func (s *Server) SubmitAnswer(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["audio"]) == 0 {
		return badRequest(c, "No audio file uploaded")
	}
	// An empty question is allowed; only a missing field is rejected
	values, ok := form.Value["question"]
	if !ok || len(values) == 0 {
		return badRequest(c, "No question text provided")
	}
	question := values[0]

	logger := requestLogger(c)
	transcribed, err := s.transcribeUpload(c.UserContext(), form.File["audio"][0], logger)
	if err != nil {
		return transcriptionFailed(c, err)
	}

	result := scoring.Evaluate(question, transcribed)
	observability.RecordAnswer(result.Accuracy, result.Passed)
	logger.Info().
		Float64("accuracy", result.Accuracy).
		Float64("block_ratio", result.BlockRatio).
		Float64("edit_score", result.EditScore).
		Bool("passed", result.Passed).
		Msg("Answer scored")

	return c.JSON(fiber.Map{
		"success":     result.Passed,
		"message":     result.Message,
		"accuracy":    result.Accuracy,
		"transcribed": transcribed,
	})
}

// AddQuestion handles POST /add-question
func (s *Server) AddQuestion(c *fiber.Ctx) error {
	var req addQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "No text provided")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "No text provided")
	}

	if err := s.store.Append(*req.Text); err != nil {
		if errors.Is(err, questions.ErrEmptyQuestion) {
			return badRequest(c, "Question text cannot be empty")
		}
		return err
	}
	observability.SetQuestionCount(s.store.Len())

	return c.JSON(fiber.Map{"success": true})
}

// ListQuestions handles GET /questions
func (s *Server) ListQuestions(c *fiber.Ctx) error {
	list := s.store.List()
	return c.JSON(fiber.Map{"questions": list, "count": len(list)})
}

// ClearQuestions handles DELETE /questions
func (s *Server) ClearQuestions(c *fiber.Ctx) error {
	s.store.Clear()
	observability.SetQuestionCount(0)
	logger := requestLogger(c)
	logger.Info().Msg("Question store cleared")
	return c.JSON(fiber.Map{"success": true, "message": "All questions cleared"})
}

// transcribeUpload spools one upload, transcribes it and removes the temp file
func (s *Server) transcribeUpload(ctx context.Context, fh *multipart.FileHeader, logger zerolog.Logger) (string, error) {
	clip, err := audio.Spool(fh, s.cfg.TempDir())
	if err != nil {
		observability.RecordError("spool", "api")
		return "", fmt.Errorf("%w: %v", errSpool, err)
	}
	defer func() {
		if err := clip.Remove(); err != nil {
			logger.Warn().Err(err).Str("path", clip.Path).Msg("Failed to remove temp file")
		}
	}()

	s.inspectClip(clip, logger)

	logger.Info().
		Str("filename", clip.Filename).
		Str("mime", clip.MIME).
		Int64("size", clip.Size).
		Msg("Transcribing audio")

	text, err := s.transcriber.Transcribe(ctx, clip.Path, clip.FormatHint())
	if err != nil {
		return "", err
	}

	logger.Debug().Str("transcript", text).Msg("Transcription complete")
	return text, nil
}

// inspectClip records size and, for WAV uploads, duration and silence
func (s *Server) inspectClip(clip *audio.Clip, logger zerolog.Logger) {
	info, err := audio.Inspect(clip.Path)
	if err != nil {
		observability.RecordAudio(clip.Size, 0)
		return
	}
	observability.RecordAudio(clip.Size, info.Duration)
	if info.Silent() {
		logger.Warn().Dur("duration", info.Duration).Msg("Uploaded clip appears to be silent")
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}

// transcriptionFailed reports a backend failure, 503 while the circuit is open and 502 otherwise
func transcriptionFailed(c *fiber.Ctx, err error) error {
	logger := requestLogger(c)
	if errors.Is(err, errSpool) {
		logger.Error().Err(err).Msg("Failed to spool upload")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not store uploaded file"})
	}

	code := fiber.StatusBadGateway
	if errors.Is(err, resilience.ErrCircuitOpen) {
		code = fiber.StatusServiceUnavailable
	}
	logger.Error().Err(err).Msg("Transcription failed")
	return c.Status(code).JSON(fiber.Map{"error": "Transcription failed: " + failureCause(err).Error()})
}

// failureCause strips the backend prefix added by *stt.TranscriptionError
func failureCause(err error) error {
	var te *stt.TranscriptionError
	for errors.As(err, &te) && te.Err != nil {
		err = te.Err
	}
	return err
}
