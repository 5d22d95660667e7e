package sqlite

import (
	"context"
)

func (s *Store) initSchema(ctx context.Context) error {
	// Every attempt row belongs to its quiz; deleting a quiz removes its history.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			quiz_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			questions_json TEXT NOT NULL,
			time_limit_seconds INTEGER NOT NULL DEFAULT 0,
			last_updated_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS quiz_participants (
			quiz_id TEXT NOT NULL REFERENCES quizzes(quiz_id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			added_at_unix INTEGER NOT NULL,
			PRIMARY KEY (quiz_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_progress (
			quiz_id TEXT NOT NULL REFERENCES quizzes(quiz_id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			answers_json TEXT NOT NULL,
			elapsed_seconds INTEGER NOT NULL CHECK (elapsed_seconds >= 0),
			completed INTEGER NOT NULL DEFAULT 0,
			updated_at_unix INTEGER NOT NULL,
			PRIMARY KEY (quiz_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_results (
			result_id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL REFERENCES quizzes(quiz_id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			answers_json TEXT NOT NULL,
			score INTEGER NOT NULL,
			submitted_at_unix INTEGER NOT NULL,
			UNIQUE (quiz_id, user_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_quiz_submitted_at ON attempt_results(quiz_id, submitted_at_unix);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
