package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

type pairKey struct {
	userID string
	quizID string
}

// ProgressStore is an in-memory implementation of app.ProgressRepository.
type ProgressStore struct {
	mu       sync.RWMutex
	progress map[pairKey]domain.AttemptProgress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		progress: make(map[pairKey]domain.AttemptProgress),
	}
}

func (s *ProgressStore) SaveProgress(_ context.Context, progress domain.AttemptProgress) error {
	progress.Answers = append(domain.AnswerSet{}, progress.Answers...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[pairKey{progress.UserID, progress.QuizID}] = progress
	return nil
}

func (s *ProgressStore) GetProgress(_ context.Context, userID, quizID string) (domain.AttemptProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	progress, ok := s.progress[pairKey{userID, quizID}]
	if !ok {
		return domain.AttemptProgress{}, domain.ErrProgressNotFound
	}
	progress.Answers = append(domain.AnswerSet{}, progress.Answers...)
	return progress, nil
}

func (s *ProgressStore) DeleteProgress(_ context.Context, userID, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, pairKey{userID, quizID})
	return nil
}

// PurgeQuiz drops in-flight attempts of a deleted quiz.
func (s *ProgressStore) PurgeQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.progress {
		if key.quizID == quizID {
			delete(s.progress, key)
		}
	}
	return nil
}
