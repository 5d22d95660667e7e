package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const foreignKeyViolation = "23503"

// Store serves quiz definitions, participant sets and in-flight progress from Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		questions []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, created_by, questions, time_limit_seconds, last_updated
		 FROM quizzes WHERE id=$1`, quizID,
	).Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.CreatedBy, &questions, &quiz.TimeLimitSeconds, &quiz.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.Storage("load quiz", err)
	}
	quiz.Questions, err = codec.DecodeQuestions(questions)
	if err != nil {
		return domain.Quiz{}, domain.Storage("load quiz", fmt.Errorf("quiz %s: %w", quizID, err))
	}
	quiz.LastUpdated = quiz.LastUpdated.UTC()

	rows, err := s.pool.Query(ctx, `SELECT user_id FROM quiz_participants WHERE quiz_id=$1`, quizID)
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

// AddParticipant is an idempotent set-add on the (quiz_id, user_id) primary key.
func (s *Store) AddParticipant(ctx context.Context, quizID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_participants (quiz_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		quizID, userID,
	)
	if err != nil {
		return writeErr("add participant", err)
	}
	return nil
}

// PutQuiz inserts or replaces a quiz definition, keeping its participants and attempts.
func (s *Store) PutQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	questions, err := codec.EncodeQuestions(quiz.Questions)
	if err != nil {
		return domain.Storage("put quiz", err)
	}
	lastUpdated := quiz.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, title, description, created_by, questions, time_limit_seconds, last_updated)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			created_by = EXCLUDED.created_by,
			questions = EXCLUDED.questions,
			time_limit_seconds = EXCLUDED.time_limit_seconds,
			last_updated = EXCLUDED.last_updated`,
		quiz.ID, quiz.Title, quiz.Description, quiz.CreatedBy, string(questions), quiz.TimeLimitSeconds, lastUpdated,
	)
	if err != nil {
		return domain.Storage("put quiz", err)
	}
	return nil
}

// ListQuizzes returns every quiz ordered by id.
func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM quizzes ORDER BY id`)
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
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list quizzes", err)
	}

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

// DeleteQuiz removes a quiz; the schema cascades to participants, progress and results.
func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if err != nil {
		return domain.Storage("delete quiz", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) SaveProgress(ctx context.Context, progress domain.AttemptProgress) error {
	answers, err := codec.EncodeAnswers(progress.Answers)
	if err != nil {
		return domain.Storage("save progress", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO attempt_progress (quiz_id, user_id, answers, elapsed_seconds, completed, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		 ON CONFLICT (quiz_id, user_id) DO UPDATE SET
			answers = EXCLUDED.answers,
			elapsed_seconds = EXCLUDED.elapsed_seconds,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at`,
		progress.QuizID, progress.UserID, string(answers), progress.ElapsedSeconds, progress.Completed, progress.UpdatedAt,
	)
	if err != nil {
		return writeErr("save progress", err)
	}
	return nil
}

func (s *Store) GetProgress(ctx context.Context, userID, quizID string) (domain.AttemptProgress, error) {
	var answers []byte
	progress := domain.AttemptProgress{UserID: userID, QuizID: quizID}
	err := s.pool.QueryRow(ctx,
		`SELECT answers, elapsed_seconds, completed, updated_at
		 FROM attempt_progress WHERE quiz_id=$1 AND user_id=$2`, quizID, userID,
	).Scan(&answers, &progress.ElapsedSeconds, &progress.Completed, &progress.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttemptProgress{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.AttemptProgress{}, domain.Storage("get progress", err)
	}
	progress.Answers, err = codec.DecodeAnswers(answers)
	if err != nil {
		return domain.AttemptProgress{}, domain.Storage("get progress", err)
	}
	progress.UpdatedAt = progress.UpdatedAt.UTC()
	return progress, nil
}

func (s *Store) DeleteProgress(ctx context.Context, userID, quizID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM attempt_progress WHERE quiz_id=$1 AND user_id=$2`, quizID, userID); err != nil {
		return domain.Storage("delete progress", err)
	}
	return nil
}

func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return domain.ErrQuizNotFound
	}
	return domain.Storage(op, err)
}
