package questions

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
)

var (
	// ErrEmptyStore is returned when a question is requested from an empty store
	ErrEmptyStore = errors.New("no questions available")

	// ErrEmptyQuestion is returned when appending blank question text
	ErrEmptyQuestion = errors.New("question text cannot be empty")
)

// DefaultQuestions are the practice sentences loaded at startup
var DefaultQuestions = []string{
	"The quick brown fox jumps over the lazy dog",
	"Hello world, this is a test sentence",
	"Python is a great programming language",
	"Machine learning is transforming the world",
	"Speech recognition technology is amazing",
}

// Store is a thread-safe, in-memory list of practice questions kept in insertion order
type Store struct {
	mu        sync.RWMutex
	questions []string
}

// NewStore creates a store holding the given seed questions.
// Blank seeds are skipped.
func NewStore(seed ...string) *Store {
	s := &Store{questions: make([]string, 0, len(seed))}
	for _, q := range seed {
		_ = s.Append(q)
	}
	return s
}

// Append trims text and adds it to the end of the list
func (s *Store) Append(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, text)
	return nil
}

// List returns a copy of all questions in insertion order
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.questions))
	copy(out, s.questions)
	return out
}

// RandomPick returns a uniformly chosen question
func (s *Store) RandomPick() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.questions) == 0 {
		return "", ErrEmptyStore
	}
	return s.questions[rand.Intn(len(s.questions))], nil
}

// Clear removes every question
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = s.questions[:0:0]
}

// Len returns the number of stored questions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions)
}
