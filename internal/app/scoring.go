package app

import "quiz-attempt-service/internal/domain"

// Score marks each answer correct or incorrect against the question set and counts the correct ones.
// Output order follows input order. Answers to unknown questions and unanswered questions are incorrect.
func Score(answers domain.AnswerSet, questions []domain.Question) ([]domain.ScoredAnswer, int) {
	correctByID := make(map[domain.QuestionID]string, len(questions))
	for _, q := range questions {
		if _, dup := correctByID[q.ID]; !dup {
			correctByID[q.ID] = q.CorrectAnswer
		}
	}

	scored := make([]domain.ScoredAnswer, 0, len(answers))
	total := 0
	for _, answer := range answers {
		correct := false
		if expected, ok := correctByID[answer.QuestionID]; ok && answer.SelectedOption != nil {
			correct = *answer.SelectedOption == expected
		}
		if correct {
			total++
		}
		scored = append(scored, domain.ScoredAnswer{Answer: copyAnswer(answer), IsCorrect: correct})
	}
	return scored, total
}

func copyAnswer(a domain.Answer) domain.Answer {
	if a.SelectedOption != nil {
		v := *a.SelectedOption
		a.SelectedOption = &v
	}
	return a
}
