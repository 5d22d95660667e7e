package codec

import (
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestDecodeAnswersIsStrict(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"null":          "null",
		"not json":      "{answers",
		"unknown field": `[{"question_id":"1","selectedOption":"A","extra":true}]`,
		"trailing":      `[] []`,
		"wrong type":    `{"question_id":"1"}`,
	}
	for name, raw := range cases {
		if _, err := DecodeAnswers([]byte(raw)); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestDecodeAnswersAcceptsIntegerQuestionIDs(t *testing.T) {
	answers, err := DecodeAnswers([]byte(`[{"question_id":1,"selectedOption":"B"},{"question_id":"2","selectedOption":null}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(answers) != 2 || answers[0].QuestionID != "1" || *answers[0].SelectedOption != "B" || answers[1].SelectedOption != nil {
		t.Fatalf("unexpected answers: %+v", answers)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	opt := "Paris"
	in := domain.AttemptProgress{
		UserID:         "u1",
		QuizID:         "quiz-1",
		Answers:        domain.AnswerSet{{QuestionID: "1", SelectedOption: &opt}},
		ElapsedSeconds: 42,
		UpdatedAt:      time.Unix(1700000000, 5).UTC(),
	}
	raw, err := EncodeProgress(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeProgress(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ElapsedSeconds != 42 || !out.UpdatedAt.Equal(in.UpdatedAt) || *out.Answers[0].SelectedOption != "Paris" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeProgressRejectsIncompleteRecord(t *testing.T) {
	if _, err := DecodeProgress([]byte(`{"userId":"u1","quizId":"q","elapsedTime":3}`)); err == nil {
		t.Fatalf("expected error for record without answers")
	}
	if _, err := DecodeProgress([]byte(`{"userId":"u1","quizId":"q","answers":[],"elapsedTime":-1}`)); err == nil {
		t.Fatalf("expected error for negative elapsed time")
	}
}

func TestQuizKeepsParticipants(t *testing.T) {
	raw, err := EncodeQuiz(domain.Quiz{
		ID:           "quiz-1",
		Title:        "Capitals",
		Questions:    []domain.Question{{ID: "1", Options: []string{"A", "B"}, CorrectAnswer: "A"}},
		Participants: domain.NewParticipantSet("u2", "u1"),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	quiz, err := DecodeQuiz(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !quiz.Participants.Contains("u1") || !quiz.Participants.Contains("u2") || len(quiz.Participants) != 2 {
		t.Fatalf("participants lost: %v", quiz.Participants.Members())
	}
}
