// Package codec serializes typed attempt values for storage and decodes them strictly:
// corrupt or unexpected payloads are errors, never empty values.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
)

var errEmptyPayload = errors.New("empty payload")

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errEmptyPayload
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}

// EncodeAnswers serializes an answer set. A nil set is stored as an empty array.
func EncodeAnswers(answers domain.AnswerSet) ([]byte, error) {
	if answers == nil {
		answers = domain.AnswerSet{}
	}
	return encode(answers)
}

func DecodeAnswers(raw []byte) (domain.AnswerSet, error) {
	var answers domain.AnswerSet
	if err := decode(raw, &answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if answers == nil {
		return nil, fmt.Errorf("decode answers: null answer set")
	}
	return answers, nil
}

func EncodeScoredAnswers(answers []domain.ScoredAnswer) ([]byte, error) {
	if answers == nil {
		answers = []domain.ScoredAnswer{}
	}
	return encode(answers)
}

func DecodeScoredAnswers(raw []byte) ([]domain.ScoredAnswer, error) {
	var answers []domain.ScoredAnswer
	if err := decode(raw, &answers); err != nil {
		return nil, fmt.Errorf("decode scored answers: %w", err)
	}
	if answers == nil {
		return nil, fmt.Errorf("decode scored answers: null answer set")
	}
	return answers, nil
}

func EncodeQuestions(questions []domain.Question) ([]byte, error) {
	if questions == nil {
		questions = []domain.Question{}
	}
	return encode(questions)
}

func DecodeQuestions(raw []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := decode(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if questions == nil {
		return nil, fmt.Errorf("decode questions: null question list")
	}
	return questions, nil
}

// progressRecord is the document shape used by key-value stores.
type progressRecord struct {
	UserID         string           `json:"userId"`
	QuizID         string           `json:"quizId"`
	Answers        domain.AnswerSet `json:"answers"`
	ElapsedSeconds int              `json:"elapsedTime"`
	Completed      bool             `json:"completed"`
	UpdatedAt      int64            `json:"updatedAtUnixNano"`
}

func EncodeProgress(p domain.AttemptProgress) ([]byte, error) {
	answers := p.Answers
	if answers == nil {
		answers = domain.AnswerSet{}
	}
	return encode(progressRecord{
		UserID:         p.UserID,
		QuizID:         p.QuizID,
		Answers:        answers,
		ElapsedSeconds: p.ElapsedSeconds,
		Completed:      p.Completed,
		UpdatedAt:      nanos(p.UpdatedAt),
	})
}

func DecodeProgress(raw []byte) (domain.AttemptProgress, error) {
	var rec progressRecord
	if err := decode(raw, &rec); err != nil {
		return domain.AttemptProgress{}, fmt.Errorf("decode progress: %w", err)
	}
	if rec.UserID == "" || rec.QuizID == "" || rec.Answers == nil || rec.ElapsedSeconds < 0 {
		return domain.AttemptProgress{}, fmt.Errorf("decode progress: incomplete record")
	}
	return domain.AttemptProgress{
		UserID:         rec.UserID,
		QuizID:         rec.QuizID,
		Answers:        rec.Answers,
		ElapsedSeconds: rec.ElapsedSeconds,
		Completed:      rec.Completed,
		UpdatedAt:      unixNano(rec.UpdatedAt),
	}, nil
}

type resultRecord struct {
	ID          string                `json:"id"`
	UserID      string                `json:"userId"`
	QuizID      string                `json:"quizId"`
	Answers     []domain.ScoredAnswer `json:"answers"`
	Score       int                   `json:"score"`
	SubmittedAt int64                 `json:"submittedAtUnixNano"`
}

func EncodeResult(r domain.AttemptResult) ([]byte, error) {
	answers := r.Answers
	if answers == nil {
		answers = []domain.ScoredAnswer{}
	}
	return encode(resultRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		QuizID:      r.QuizID,
		Answers:     answers,
		Score:       r.Score,
		SubmittedAt: nanos(r.SubmittedAt),
	})
}

func DecodeResult(raw []byte) (domain.AttemptResult, error) {
	var rec resultRecord
	if err := decode(raw, &rec); err != nil {
		return domain.AttemptResult{}, fmt.Errorf("decode result: %w", err)
	}
	if rec.ID == "" || rec.UserID == "" || rec.QuizID == "" || rec.Answers == nil {
		return domain.AttemptResult{}, fmt.Errorf("decode result: incomplete record")
	}
	return domain.AttemptResult{
		ID:          rec.ID,
		UserID:      rec.UserID,
		QuizID:      rec.QuizID,
		Answers:     rec.Answers,
		Score:       rec.Score,
		SubmittedAt: unixNano(rec.SubmittedAt),
	}, nil
}

type quizRecord struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	CreatedBy        string            `json:"createdBy"`
	Questions        []domain.Question `json:"questions"`
	TimeLimitSeconds int               `json:"timeLimit"`
	Participants     []string          `json:"participants"`
	LastUpdated      int64             `json:"lastUpdatedUnixNano"`
}

// EncodeQuiz serializes a full quiz, participants included, for caches.
func EncodeQuiz(q domain.Quiz) ([]byte, error) {
	questions := q.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	return encode(quizRecord{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		CreatedBy:        q.CreatedBy,
		Questions:        questions,
		TimeLimitSeconds: q.TimeLimitSeconds,
		Participants:     q.Participants.Members(),
		LastUpdated:      nanos(q.LastUpdated),
	})
}

func DecodeQuiz(raw []byte) (domain.Quiz, error) {
	var rec quizRecord
	if err := decode(raw, &rec); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz: %w", err)
	}
	if rec.ID == "" || rec.Questions == nil || rec.Participants == nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz: incomplete record")
	}
	return domain.Quiz{
		ID:               rec.ID,
		Title:            rec.Title,
		Description:      rec.Description,
		CreatedBy:        rec.CreatedBy,
		Questions:        rec.Questions,
		TimeLimitSeconds: rec.TimeLimitSeconds,
		Participants:     domain.NewParticipantSet(rec.Participants...),
		LastUpdated:      unixNano(rec.LastUpdated),
	}, nil
}
