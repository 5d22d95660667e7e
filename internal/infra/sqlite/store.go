package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"quiz-attempt-service/internal/domain"

	"github.com/mattn/go-sqlite3"
)

// Store persists quizzes, participants, progress and results in a single SQLite file.
// It satisfies the quiz store, progress and result repository contracts at once.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiz.db"
	}

	// Foreign keys are per connection in SQLite, so they are enabled through the DSN.
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// writeErr maps a failed write on a quiz-owned row to the domain error kinds.
func writeErr(op string, err error) error {
	if isForeignKeyViolation(err) {
		return domain.ErrQuizNotFound
	}
	return domain.Storage(op, err)
}
