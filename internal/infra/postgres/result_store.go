package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewBunDB opens a bun handle over pgdriver for the given DSN.
func NewBunDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type resultRow struct {
	bun.BaseModel `bun:"table:attempt_results"`

	ID          string          `bun:"id,pk"`
	QuizID      string          `bun:"quiz_id,notnull"`
	UserID      string          `bun:"user_id,notnull"`
	Answers     json.RawMessage `bun:"answers,type:jsonb,notnull"`
	Score       int             `bun:"score,notnull"`
	SubmittedAt time.Time       `bun:"submitted_at,notnull"`
}

// ResultStore writes immutable attempt results through bun.
// The UNIQUE (quiz_id, user_id) constraint is the single-attempt commit point.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) CreateResult(ctx context.Context, result domain.AttemptResult) error {
	answers, err := codec.EncodeScoredAnswers(result.Answers)
	if err != nil {
		return domain.Storage("create result", err)
	}
	row := &resultRow{
		ID:          result.ID,
		QuizID:      result.QuizID,
		UserID:      result.UserID,
		Answers:     answers,
		Score:       result.Score,
		SubmittedAt: result.SubmittedAt,
	}
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (quiz_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == foreignKeyViolation {
			return domain.ErrQuizNotFound
		}
		return domain.Storage("create result", err)
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

func (s *ResultStore) GetResult(ctx context.Context, userID, quizID string) (domain.AttemptResult, error) {
	row := new(resultRow)
	err := s.db.NewSelect().
		Model(row).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttemptResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.AttemptResult{}, domain.Storage("get result", err)
	}
	result, err := row.toDomain()
	if err != nil {
		return domain.AttemptResult{}, domain.Storage("get result", err)
	}
	return result, nil
}

func (s *ResultStore) ListResults(ctx context.Context, quizID string) ([]domain.AttemptResult, error) {
	var rows []resultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("submitted_at ASC", "user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.Storage("list results", err)
	}
	out := make([]domain.AttemptResult, 0, len(rows))
	for _, row := range rows {
		result, err := row.toDomain()
		if err != nil {
			return nil, domain.Storage("list results", err)
		}
		out = append(out, result)
	}
	return out, nil
}

func (r resultRow) toDomain() (domain.AttemptResult, error) {
	answers, err := codec.DecodeScoredAnswers(r.Answers)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return domain.AttemptResult{
		ID:          r.ID,
		UserID:      r.UserID,
		QuizID:      r.QuizID,
		Answers:     answers,
		Score:       r.Score,
		SubmittedAt: r.SubmittedAt.UTC(),
	}, nil
}
