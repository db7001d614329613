package api

import (
	"context"
	"fmt"
	"mime/multipart"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lexiqai/pronunciation-gateway/internal/observability"
)

const batchFieldPrefix = "audio_"

type batchItem struct {
	key    string
	index  int
	header *multipart.FileHeader
}

type batchResult struct {
	text string
	err  error
}

// AddMultipleQuestions handles POST /add-multiple-questions.
// Each audio_<n> upload is transcribed and its text appended to the store.
func (s *Server) AddMultipleQuestions(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "No audio files uploaded")
	}

	items := collectBatch(form)
	if len(items) == 0 {
		return badRequest(c, "No audio files uploaded")
	}

	logger := requestLogger(c)
	logger.Info().Int("files", len(items)).Msg("Processing question batch")

	results := s.transcribeBatch(c.UserContext(), items, logger)

	added := 0
	var errs []string
	for i, item := range results {
		key := items[i].key
		switch {
		case item.err != nil:
			errs = append(errs, fmt.Sprintf("Error processing %s: %s", key, failureCause(item.err)))
			observability.RecordBatchItem("error")
		case strings.TrimSpace(item.text) == "":
			errs = append(errs, fmt.Sprintf("Empty transcription for %s", key))
			observability.RecordBatchItem("empty")
		default:
			if err := s.store.Append(item.text); err != nil {
				errs = append(errs, fmt.Sprintf("Error processing %s: %s", key, err))
				observability.RecordBatchItem("error")
				continue
			}
			added++
			observability.RecordBatchItem("added")
		}
	}
	observability.SetQuestionCount(s.store.Len())

	logger.Info().Int("added", added).Int("errors", len(errs)).Msg("Question batch complete")

	if added == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No questions were added",
			"errors":  errs,
		})
	}

	message := fmt.Sprintf("Successfully added %d questions", added)
	if len(errs) > 0 {
		message += fmt.Sprintf(" with %d errors", len(errs))
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"message":     message,
		"added_count": added,
		"errors":      errs,
	})
}

// collectBatch picks the audio_<n> fields in ascending numeric order.
// Fields whose suffix is not a number are ignored.
func collectBatch(form *multipart.Form) []batchItem {
	var items []batchItem
	for key, headers := range form.File {
		if !strings.HasPrefix(key, batchFieldPrefix) || len(headers) == 0 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(key, batchFieldPrefix))
		if err != nil || index < 0 {
			continue
		}
		items = append(items, batchItem{key: key, index: index, header: headers[0]})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].index != items[j].index {
			return items[i].index < items[j].index
		}
		return items[i].key < items[j].key
	})
	return items
}

// transcribeBatch runs up to BatchConcurrency transcriptions at once.
// Results line up with items.
func (s *Server) transcribeBatch(ctx context.Context, items []batchItem, logger zerolog.Logger) []batchResult {
	results := make([]batchResult, len(items))
	sem := make(chan struct{}, s.cfg.BatchConcurrency)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item batchItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i].err = fmt.Errorf("panic: %v", r)
				}
			}()

			itemLogger := logger.With().Str("field", item.key).Logger()
			results[i].text, results[i].err = s.transcribeUpload(ctx, item.header, itemLogger)
		}(i, item)
	}
	wg.Wait()

	return results
}
