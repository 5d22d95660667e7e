package config

import (
	"bytes"
	"fmt"
	"os"

	"quiz-attempt-service/internal/domain"

	"gopkg.in/yaml.v3"
)

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadQuizzes reads quiz definitions from a YAML seed file. Unknown keys and invalid quizzes are rejected.
func LoadQuizzes(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file quizFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse quiz file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Quizzes))
	for _, quiz := range file.Quizzes {
		if err := quiz.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[quiz.ID]; dup {
			return nil, fmt.Errorf("quiz file %s: duplicate quiz id %s", path, quiz.ID)
		}
		seen[quiz.ID] = struct{}{}
	}
	return file.Quizzes, nil
}
