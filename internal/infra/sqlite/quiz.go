package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"
)

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz          domain.Quiz
		questionsJSON string
		lastUpdated   int64
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT quiz_id, title, description, created_by, questions_json, time_limit_seconds, last_updated_unix
		 FROM quizzes WHERE quiz_id = ?`,
		quizID,
	).Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.CreatedBy, &questionsJSON, &quiz.TimeLimitSeconds, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Storage("load quiz", err)
	}

	questions, err := codec.DecodeQuestions([]byte(questionsJSON))
	if err != nil {
		return domain.Quiz{}, domain.Storage("load quiz", fmt.Errorf("quiz %s: %w", quizID, err))
	}
	quiz.Questions = questions
	quiz.LastUpdated = time.Unix(0, lastUpdated).UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM quiz_participants WHERE quiz_id = ?`, quizID)
	if err != nil {
		return domain.Quiz{}, domain.Storage("load participants", err)
	}
	defer rows.Close()

	quiz.Participants = domain.NewParticipantSet()
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return domain.Quiz{}, domain.Storage("load participants", err)
		}
		quiz.Participants[userID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, domain.Storage("load participants", err)
	}
	return quiz, nil
}

// AddParticipant is an idempotent set-add backed by the (quiz_id, user_id) primary key.
func (s *Store) AddParticipant(ctx context.Context, quizID, userID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO quiz_participants (quiz_id, user_id, added_at_unix) VALUES (?, ?, ?)`,
		quizID,
		userID,
		time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return writeErr("add participant", err)
	}
	return nil
}

// PutQuiz inserts or replaces a quiz definition. Participants and attempt history are kept.
func (s *Store) PutQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	questionsJSON, err := codec.EncodeQuestions(quiz.Questions)
	if err != nil {
		return domain.Storage("put quiz", err)
	}
	lastUpdated := quiz.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO quizzes (quiz_id, title, description, created_by, questions_json, time_limit_seconds, last_updated_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(quiz_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			created_by = excluded.created_by,
			questions_json = excluded.questions_json,
			time_limit_seconds = excluded.time_limit_seconds,
			last_updated_unix = excluded.last_updated_unix`,
		quiz.ID,
		quiz.Title,
		quiz.Description,
		quiz.CreatedBy,
		string(questionsJSON),
		quiz.TimeLimitSeconds,
		lastUpdated.UnixNano(),
	)
	if err != nil {
		return domain.Storage("put quiz", err)
	}
	return nil
}

// DeleteQuiz removes a quiz; participants, progress and results go with it.
func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE quiz_id = ?`, quizID)
	if err != nil {
		return domain.Storage("delete quiz", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Storage("delete quiz", err)
	}
	if n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// ListQuizzes returns every quiz ordered by id.
func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT quiz_id FROM quizzes ORDER BY quiz_id`)
	if err != nil {
		return nil, domain.Storage("list quizzes", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, domain.Storage("list quizzes", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, domain.Storage("list quizzes", err)
	}

	// The single connection is free again; load each quiz with its participants.
	quizzes := make([]domain.Quiz, 0, len(ids))
	for _, id := range ids {
		quiz, err := s.LoadQuiz(ctx, id)
		if errors.Is(err, domain.ErrQuizNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}
