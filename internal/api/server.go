package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/pronunciation-gateway/internal/config"
	"github.com/lexiqai/pronunciation-gateway/internal/observability"
	"github.com/lexiqai/pronunciation-gateway/internal/questions"
	"github.com/lexiqai/pronunciation-gateway/internal/stt"
)

// readinessChecker is implemented by transcribers that can report backend health
type readinessChecker interface {
	Ready(ctx context.Context) error
}

// Server holds the HTTP application and the dependencies its handlers share
type Server struct {
	app         *fiber.App
	cfg         *config.Config
	store       *questions.Store
	transcriber stt.Transcriber
	logger      zerolog.Logger
}

// New builds the Fiber application and registers every route
func New(cfg *config.Config, store *questions.Store, transcriber stt.Transcriber, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		store:       store,
		transcriber: transcriber,
		logger:      logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               observability.ServiceName,
		BodyLimit:             cfg.MaxUploadMB * 1024 * 1024,
		ErrorHandler:          s.handleError,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, " + RequestIDHeader,
	}))
	s.app.Use(RequestLogger(logger))

	s.routes()
	observability.SetQuestionCount(store.Len())
	return s
}

func (s *Server) routes() {
	s.app.Post("/transcribe", s.Transcribe)
	s.app.Get("/new-question", s.NewQuestion)
	s.app.Post("/submit-answer", s.SubmitAnswer)
	s.app.Post("/audio-to-text", s.AudioToText)
	s.app.Post("/add-question", s.AddQuestion)
	s.app.Post("/add-multiple-questions", s.AddMultipleQuestions)
	s.app.Get("/questions", s.ListQuestions)
	s.app.Delete("/questions", s.ClearQuestions)

	s.app.Get("/health", observability.HealthCheckHandler())
	s.app.Get("/ready", observability.ReadinessHandler(s.readinessChecks()))

	if s.cfg.MetricsEnabled {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}
}

func (s *Server) readinessChecks() map[string]observability.HealthCheckFunc {
	checks := map[string]observability.HealthCheckFunc{}
	if rc, ok := s.transcriber.(readinessChecker); ok {
		checks["transcriber"] = rc.Ready
	}
	return checks
}

// App exposes the Fiber application, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured port until Shutdown
func (s *Server) Listen() error {
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleError renders errors that escaped the handlers as {"error": ...}
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		observability.RecordError("unhandled", "api")
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}
