package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"
)

// CreateResult relies on UNIQUE (quiz_id, user_id) with INSERT OR IGNORE:
// concurrent finalizations for one pair resolve to exactly one row.
func (s *Store) CreateResult(ctx context.Context, result domain.AttemptResult) error {
	answersJSON, err := codec.EncodeScoredAnswers(result.Answers)
	if err != nil {
		return domain.Storage("create result", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO attempt_results (result_id, quiz_id, user_id, answers_json, score, submitted_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.QuizID,
		result.UserID,
		string(answersJSON),
		result.Score,
		result.SubmittedAt.UnixNano(),
	)
	if err != nil {
		return writeErr("create result", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.Storage("create result", err)
	}
	if inserted == 0 {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, userID, quizID string) (domain.AttemptResult, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT result_id, quiz_id, user_id, answers_json, score, submitted_at_unix
		 FROM attempt_results WHERE quiz_id = ? AND user_id = ?`,
		quizID,
		userID,
	)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttemptResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.AttemptResult{}, domain.Storage("get result", err)
	}
	return result, nil
}

func (s *Store) ListResults(ctx context.Context, quizID string) ([]domain.AttemptResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT result_id, quiz_id, user_id, answers_json, score, submitted_at_unix
		 FROM attempt_results WHERE quiz_id = ?
		 ORDER BY submitted_at_unix, user_id`,
		quizID,
	)
	if err != nil {
		return nil, domain.Storage("list results", err)
	}
	defer rows.Close()

	out := make([]domain.AttemptResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, domain.Storage("list results", err)
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list results", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (domain.AttemptResult, error) {
	var (
		result      domain.AttemptResult
		answersJSON string
		submittedAt int64
	)
	if err := row.Scan(&result.ID, &result.QuizID, &result.UserID, &answersJSON, &result.Score, &submittedAt); err != nil {
		return domain.AttemptResult{}, err
	}
	answers, err := codec.DecodeScoredAnswers([]byte(answersJSON))
	if err != nil {
		return domain.AttemptResult{}, err
	}
	result.Answers = answers
	result.SubmittedAt = time.Unix(0, submittedAt).UTC()
	return result, nil
}
