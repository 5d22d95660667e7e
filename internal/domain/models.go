package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// QuestionID identifies a question within its quiz. JSON input may carry it as a string or an integer.
type QuestionID string

func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Invalid("question_id is required")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return Invalid("question_id must be a string or an integer, got %s", data)
	}
	*id = QuestionID(strconv.FormatInt(n, 10))
	return nil
}

// Question models an MCQ question. Correctness is value equality against CorrectAnswer.
type Question struct {
	ID            QuestionID `json:"question_id" yaml:"id"`
	Text          string     `json:"questionText" yaml:"text"`
	Options       []string   `json:"options" yaml:"options"`
	CorrectAnswer string     `json:"correctAnswer" yaml:"correctAnswer"`
}

// Quiz is a quiz definition together with its participant index.
type Quiz struct {
	ID               string         `json:"quizId" yaml:"id"`
	Title            string         `json:"title" yaml:"title"`
	Description      string         `json:"description,omitempty" yaml:"description"`
	CreatedBy        string         `json:"createdBy,omitempty" yaml:"createdBy"`
	Questions        []Question     `json:"questions" yaml:"questions"`
	TimeLimitSeconds int            `json:"timeLimit" yaml:"timeLimit"`
	Participants     ParticipantSet `json:"-" yaml:"-"`
	LastUpdated      time.Time      `json:"lastUpdated" yaml:"-"`
}

// Expired reports whether elapsed seconds reach the time limit. Untimed quizzes never expire.
func (q Quiz) Expired(elapsedSeconds int) bool {
	return q.TimeLimitSeconds > 0 && elapsedSeconds >= q.TimeLimitSeconds
}

// Validate checks the structural invariants of a quiz definition.
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return Invalid("quiz id is required")
	}
	if strings.TrimSpace(q.Title) == "" {
		return Invalid("quiz %s: title is required", q.ID)
	}
	if len(q.Questions) == 0 {
		return Invalid("quiz %s: at least one question is required", q.ID)
	}
	if q.TimeLimitSeconds < 0 {
		return Invalid("quiz %s: time limit must not be negative", q.ID)
	}
	seen := make(map[QuestionID]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if question.ID == "" {
			return Invalid("quiz %s: question id is required", q.ID)
		}
		if _, dup := seen[question.ID]; dup {
			return Invalid("quiz %s: duplicate question id %s", q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}
		if len(question.Options) < 2 {
			return Invalid("quiz %s: question %s needs at least two options", q.ID, question.ID)
		}
		if question.CorrectAnswer == "" {
			return Invalid("quiz %s: question %s has no correct answer", q.ID, question.ID)
		}
	}
	return nil
}

// ParticipantSet holds the users who finalized a quiz.
type ParticipantSet map[string]struct{}

// NewParticipantSet builds a set from a list, dropping duplicates.
func NewParticipantSet(userIDs ...string) ParticipantSet {
	set := make(ParticipantSet, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	return set
}

func (s ParticipantSet) Contains(userID string) bool {
	_, ok := s[userID]
	return ok
}

// Members returns the users in stable order.
func (s ParticipantSet) Members() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set so cached quizzes are never aliased by callers.
func (s ParticipantSet) Clone() ParticipantSet {
	out := make(ParticipantSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Answer is one submitted answer. A nil SelectedOption means unanswered.
type Answer struct {
	QuestionID     QuestionID `json:"question_id"`
	SelectedOption *string    `json:"selectedOption"`
}

// AnswerSet holds at most one answer per question identifier.
type AnswerSet []Answer

// Validate rejects empty question ids and duplicate answers for one question.
func (a AnswerSet) Validate() error {
	seen := make(map[QuestionID]struct{}, len(a))
	for i, answer := range a {
		if answer.QuestionID == "" {
			return Invalid("answer %d: question_id is required", i)
		}
		if _, dup := seen[answer.QuestionID]; dup {
			return Invalid("duplicate answer for question %s", answer.QuestionID)
		}
		seen[answer.QuestionID] = struct{}{}
	}
	return nil
}

// ScoredAnswer is an Answer with its derived correctness.
type ScoredAnswer struct {
	Answer
	IsCorrect bool `json:"isCorrect"`
}

// AttemptProgress is the mutable, provisional state of an in-flight attempt.
type AttemptProgress struct {
	UserID         string    `json:"userId"`
	QuizID         string    `json:"quizId"`
	Answers        AnswerSet `json:"answers"`
	ElapsedSeconds int       `json:"elapsedTime"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AttemptResult is the immutable scored outcome of a finalized attempt.
type AttemptResult struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	QuizID      string         `json:"quizId"`
	Answers     []ScoredAnswer `json:"answers"`
	Score       int            `json:"score"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// AttemptStatus is the read-only projection shown to callers.
type AttemptStatus string

const (
	StatusTaken             AttemptStatus = "Taken"
	StatusPendingEvaluation AttemptStatus = "Pending for Evaluation"
	StatusInProgress        AttemptStatus = "In progress"
	StatusNotTaken          AttemptStatus = "Not taken"
)

// ReviewedQuestion pairs a question with what the user selected for it.
type ReviewedQuestion struct {
	Question
	SelectedOption *string `json:"selectedOption"`
	IsCorrect      bool    `json:"isCorrect"`
}

// AttemptReview is a finalized attempt laid over the quiz's questions.
type AttemptReview struct {
	QuizID    string             `json:"quizId"`
	Title     string             `json:"title"`
	Score     int                `json:"score"`
	Questions []ReviewedQuestion `json:"questions"`
}

// ResultSummary is one row of a quiz's result listing.
type ResultSummary struct {
	UserID      string    `json:"userId"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}
