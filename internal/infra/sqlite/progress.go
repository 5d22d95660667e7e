package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"
)

// SaveProgress upserts the pair's progress; the whole answer set is replaced.
func (s *Store) SaveProgress(ctx context.Context, progress domain.AttemptProgress) error {
	answersJSON, err := codec.EncodeAnswers(progress.Answers)
	if err != nil {
		return domain.Storage("save progress", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO attempt_progress (quiz_id, user_id, answers_json, elapsed_seconds, completed, updated_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(quiz_id, user_id) DO UPDATE SET
			answers_json = excluded.answers_json,
			elapsed_seconds = excluded.elapsed_seconds,
			completed = excluded.completed,
			updated_at_unix = excluded.updated_at_unix`,
		progress.QuizID,
		progress.UserID,
		string(answersJSON),
		progress.ElapsedSeconds,
		progress.Completed,
		progress.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return writeErr("save progress", err)
	}
	return nil
}

func (s *Store) GetProgress(ctx context.Context, userID, quizID string) (domain.AttemptProgress, error) {
	var (
		answersJSON string
		updatedAt   int64
	)
	progress := domain.AttemptProgress{UserID: userID, QuizID: quizID}
	err := s.db.QueryRowContext(
		ctx,
		`SELECT answers_json, elapsed_seconds, completed, updated_at_unix
		 FROM attempt_progress WHERE quiz_id = ? AND user_id = ?`,
		quizID,
		userID,
	).Scan(&answersJSON, &progress.ElapsedSeconds, &progress.Completed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttemptProgress{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.AttemptProgress{}, domain.Storage("get progress", err)
	}

	answers, err := codec.DecodeAnswers([]byte(answersJSON))
	if err != nil {
		return domain.AttemptProgress{}, domain.Storage("get progress", err)
	}
	progress.Answers = answers
	progress.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return progress, nil
}

func (s *Store) DeleteProgress(ctx context.Context, userID, quizID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attempt_progress WHERE quiz_id = ? AND user_id = ?`, quizID, userID); err != nil {
		return domain.Storage("delete progress", err)
	}
	return nil
}
