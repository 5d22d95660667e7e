package app

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// QuizRepository resolves quiz definitions (from cache/backing store) and maintains the participant index.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// AddParticipant is an atomic add-if-absent on the quiz's participant set.
	AddParticipant(ctx context.Context, quizID, userID string) error
	// ListQuizzes returns every quiz ordered by id.
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	// DeleteQuiz removes the definition and its participants; SQL stores cascade to attempts.
	DeleteQuiz(ctx context.Context, quizID string) error
}

// ProgressRepository holds at most one in-flight attempt per (user, quiz) pair.
type ProgressRepository interface {
	// SaveProgress replaces the stored progress for the pair wholesale.
	SaveProgress(ctx context.Context, progress domain.AttemptProgress) error
	// GetProgress returns domain.ErrProgressNotFound when the pair has no progress.
	GetProgress(ctx context.Context, userID, quizID string) (domain.AttemptProgress, error)
	// DeleteProgress is a no-op when nothing is stored.
	DeleteProgress(ctx context.Context, userID, quizID string) error
}

// ResultRepository stores the single immutable result per (user, quiz) pair.
type ResultRepository interface {
	// GetResult returns domain.ErrResultNotFound when the pair has not been finalized.
	GetResult(ctx context.Context, userID, quizID string) (domain.AttemptResult, error)
	// CreateResult must enforce pair uniqueness in the store itself and report a
	// conflicting write as domain.ErrAlreadySubmitted.
	CreateResult(ctx context.Context, result domain.AttemptResult) error
	// ListResults returns every result of a quiz ordered by submission time.
	ListResults(ctx context.Context, quizID string) ([]domain.AttemptResult, error)
}

// QuizPurger is implemented by progress and result stores that do not cascade with the quiz
// definition (memory, Redis). The service purges them after a quiz is deleted.
type QuizPurger interface {
	PurgeQuiz(ctx context.Context, quizID string) error
}
