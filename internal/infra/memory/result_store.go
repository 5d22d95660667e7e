package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// ResultStore is an in-memory app.ResultRepository. The write lock makes create-if-absent atomic.
type ResultStore struct {
	mu      sync.RWMutex
	results map[pairKey]domain.AttemptResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[pairKey]domain.AttemptResult),
	}
}

func (s *ResultStore) GetResult(_ context.Context, userID, quizID string) (domain.AttemptResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[pairKey{userID, quizID}]
	if !ok {
		return domain.AttemptResult{}, domain.ErrResultNotFound
	}
	result.Answers = append([]domain.ScoredAnswer(nil), result.Answers...)
	return result, nil
}

func (s *ResultStore) CreateResult(_ context.Context, result domain.AttemptResult) error {
	key := pairKey{result.UserID, result.QuizID}
	result.Answers = append([]domain.ScoredAnswer(nil), result.Answers...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[key]; exists {
		return domain.ErrAlreadySubmitted
	}
	s.results[key] = result
	return nil
}

func (s *ResultStore) ListResults(_ context.Context, quizID string) ([]domain.AttemptResult, error) {
	s.mu.RLock()
	out := make([]domain.AttemptResult, 0)
	for key, result := range s.results {
		if key.quizID == quizID {
			result.Answers = append([]domain.ScoredAnswer(nil), result.Answers...)
			out = append(out, result)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// PurgeQuiz drops every result of a deleted quiz.
func (s *ResultStore) PurgeQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.results {
		if key.quizID == quizID {
			delete(s.results, key)
		}
	}
	return nil
}
