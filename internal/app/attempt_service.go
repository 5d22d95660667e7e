package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"

	"github.com/google/uuid"
)

// AttemptService owns the attempt lifecycle: saving progress, finalizing exactly once, and status projection.
type AttemptService struct {
	quizzes  QuizRepository
	progress ProgressRepository
	results  ResultRepository
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
}

// SaveOutcome is what a progress save produced. Result is set when the save crossed the time limit
// and finalized the attempt.
type SaveOutcome struct {
	Progress domain.AttemptProgress `json:"progress"`
	Result   *domain.AttemptResult  `json:"result,omitempty"`
}

func NewAttemptService(quizzes QuizRepository, progress ProgressRepository, results ResultRepository, log *logger.Logger) *AttemptService {
	return NewAttemptServiceWithClock(quizzes, progress, results, log, time.Now)
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(quizzes QuizRepository, progress ProgressRepository, results ResultRepository, log *logger.Logger, now func() time.Time) *AttemptService {
	if log == nil {
		log = logger.NewNop()
	}
	return &AttemptService{
		quizzes:  quizzes,
		progress: progress,
		results:  results,
		log:      log,
		now:      func() time.Time { return now().UTC() },
		newID:    uuid.NewString,
	}
}

// GetQuiz resolves a quiz definition.
func (s *AttemptService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if strings.TrimSpace(quizID) == "" {
		return domain.Quiz{}, domain.Invalid("quiz id is required")
	}
	return s.quizzes.GetQuiz(ctx, quizID)
}

// ListQuizzes returns every quiz definition ordered by id.
func (s *AttemptService) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.quizzes.ListQuizzes(ctx)
}

// DeleteQuiz removes a quiz on behalf of its creator, together with its participants and attempts.
func (s *AttemptService) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	if err := requireIDs(userID, quizID); err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.CreatedBy != userID {
		return domain.ErrForbidden
	}
	if err := s.quizzes.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}

	log := s.log.With("quiz_id", quizID, "user_id", userID)
	for _, store := range []interface{}{s.progress, s.results} {
		purger, ok := store.(QuizPurger)
		if !ok {
			continue
		}
		if err := purger.PurgeQuiz(ctx, quizID); err != nil {
			log.Error("purge attempts of deleted quiz failed", "error", err)
		}
	}
	log.Info("quiz deleted")
	return nil
}

// SaveProgress replaces the in-flight answer set and elapsed time for the pair. When the elapsed
// time reaches the quiz's limit the attempt is finalized synchronously from the stored progress.
func (s *AttemptService) SaveProgress(ctx context.Context, userID, quizID string, answers domain.AnswerSet, elapsedSeconds int) (SaveOutcome, error) {
	if err := requireIDs(userID, quizID); err != nil {
		return SaveOutcome{}, err
	}
	if elapsedSeconds < 0 {
		return SaveOutcome{}, domain.Invalid("elapsed time must not be negative")
	}
	if err := validateAnswers(answers); err != nil {
		return SaveOutcome{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return SaveOutcome{}, err
	}
	if err := s.ensureNotSubmitted(ctx, userID, quizID); err != nil {
		return SaveOutcome{}, err
	}

	progress := domain.AttemptProgress{
		UserID:         userID,
		QuizID:         quizID,
		Answers:        answers,
		ElapsedSeconds: elapsedSeconds,
		UpdatedAt:      s.now(),
	}
	if err := s.progress.SaveProgress(ctx, progress); err != nil {
		return SaveOutcome{}, err
	}
	if !quiz.Expired(elapsedSeconds) {
		return SaveOutcome{Progress: progress}, nil
	}

	progress.Completed = true
	result, err := s.finalizeExpired(ctx, quiz, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadySubmitted) {
			// Time is up but scoring did not commit: keep the attempt visible as pending evaluation.
			if saveErr := s.progress.SaveProgress(ctx, progress); saveErr != nil {
				s.log.Error("mark expired progress completed failed", "quiz_id", quizID, "user_id", userID, "error", saveErr)
			}
		}
		return SaveOutcome{}, err
	}
	return SaveOutcome{Progress: progress, Result: &result}, nil
}

// GetProgress returns the in-flight attempt for the pair.
func (s *AttemptService) GetProgress(ctx context.Context, userID, quizID string) (domain.AttemptProgress, error) {
	if err := requireIDs(userID, quizID); err != nil {
		return domain.AttemptProgress{}, err
	}
	return s.progress.GetProgress(ctx, userID, quizID)
}

// ClearProgress discards the in-flight attempt; clearing an absent attempt succeeds.
func (s *AttemptService) ClearProgress(ctx context.Context, userID, quizID string) error {
	if err := requireIDs(userID, quizID); err != nil {
		return err
	}
	return s.progress.DeleteProgress(ctx, userID, quizID)
}

// SubmitNow finalizes the attempt with an explicit, user-initiated answer set.
func (s *AttemptService) SubmitNow(ctx context.Context, userID, quizID string, answers domain.AnswerSet) (domain.AttemptResult, error) {
	if err := requireIDs(userID, quizID); err != nil {
		return domain.AttemptResult{}, err
	}
	if err := validateAnswers(answers); err != nil {
		return domain.AttemptResult{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if err := s.ensureNotSubmitted(ctx, userID, quizID); err != nil {
		return domain.AttemptResult{}, err
	}
	return s.commit(ctx, quiz, userID, answers)
}

// FinalizeOnExpiry finalizes the attempt from the answer set currently held in progress.
func (s *AttemptService) FinalizeOnExpiry(ctx context.Context, userID, quizID string) (domain.AttemptResult, error) {
	if err := requireIDs(userID, quizID); err != nil {
		return domain.AttemptResult{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return s.finalizeExpired(ctx, quiz, userID)
}

func (s *AttemptService) finalizeExpired(ctx context.Context, quiz domain.Quiz, userID string) (domain.AttemptResult, error) {
	if err := s.ensureNotSubmitted(ctx, userID, quiz.ID); err != nil {
		return domain.AttemptResult{}, err
	}
	progress, err := s.progress.GetProgress(ctx, userID, quiz.ID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return s.commit(ctx, quiz, userID, progress.Answers)
}

func (s *AttemptService) ensureNotSubmitted(ctx context.Context, userID, quizID string) error {
	_, err := s.results.GetResult(ctx, userID, quizID)
	switch {
	case err == nil:
		return domain.ErrAlreadySubmitted
	case errors.Is(err, domain.ErrResultNotFound):
		return nil
	default:
		return err
	}
}

// commit scores and writes the result. The store's uniqueness constraint is the commit point;
// participant and progress cleanup after it is best-effort.
func (s *AttemptService) commit(ctx context.Context, quiz domain.Quiz, userID string, answers domain.AnswerSet) (domain.AttemptResult, error) {
	log := s.log.With("quiz_id", quiz.ID, "user_id", userID)

	scored, total := Score(answers, quiz.Questions)
	result := domain.AttemptResult{
		ID:          s.newID(),
		UserID:      userID,
		QuizID:      quiz.ID,
		Answers:     scored,
		Score:       total,
		SubmittedAt: s.now(),
	}
	if err := s.results.CreateResult(ctx, result); err != nil {
		if errors.Is(err, domain.ErrAlreadySubmitted) {
			log.Info("concurrent finalization already committed")
		}
		return domain.AttemptResult{}, err
	}
	log.Info("attempt finalized", "score", total, "answers", len(scored))

	if err := s.quizzes.AddParticipant(ctx, quiz.ID, userID); err != nil {
		log.Error("add participant after finalization failed", "error", err)
	}
	if err := s.progress.DeleteProgress(ctx, userID, quiz.ID); err != nil {
		log.Warn("clear progress after finalization failed", "error", err)
	}
	return result, nil
}

// AttemptStatus projects the attempt state without writing. Participant membership wins over any
// stale progress; a result whose participant entry is missing still reads as taken.
func (s *AttemptService) AttemptStatus(ctx context.Context, userID, quizID string) (domain.AttemptStatus, error) {
	if err := requireIDs(userID, quizID); err != nil {
		return "", err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}

	_, resultErr := s.results.GetResult(ctx, userID, quizID)
	if resultErr != nil && !errors.Is(resultErr, domain.ErrResultNotFound) {
		return "", resultErr
	}
	hasResult := resultErr == nil

	if quiz.Participants.Contains(userID) {
		if !hasResult {
			s.log.Error("participant has no result", "quiz_id", quizID, "user_id", userID)
		}
		return domain.StatusTaken, nil
	}
	if hasResult {
		s.log.Warn("finalized user missing from participants", "quiz_id", quizID, "user_id", userID)
		return domain.StatusTaken, nil
	}

	progress, err := s.progress.GetProgress(ctx, userID, quizID)
	switch {
	case errors.Is(err, domain.ErrProgressNotFound):
		return domain.StatusNotTaken, nil
	case err != nil:
		return "", err
	case progress.Completed:
		return domain.StatusPendingEvaluation, nil
	default:
		return domain.StatusInProgress, nil
	}
}

// ReconcileParticipants adds every user holding a result to the quiz's participant set and
// returns how many entries were missing.
func (s *AttemptService) ReconcileParticipants(ctx context.Context, quizID string) (int, error) {
	if strings.TrimSpace(quizID) == "" {
		return 0, domain.Invalid("quiz id is required")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return 0, err
	}
	results, err := s.results.ListResults(ctx, quizID)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, r := range results {
		if quiz.Participants.Contains(r.UserID) {
			continue
		}
		if err := s.quizzes.AddParticipant(ctx, quizID, r.UserID); err != nil {
			return repaired, err
		}
		repaired++
	}
	if repaired > 0 {
		s.log.Info("participants reconciled", "quiz_id", quizID, "repaired", repaired)
	}
	return repaired, nil
}

// ReviewAttempt lays the user's finalized answers over the quiz questions.
func (s *AttemptService) ReviewAttempt(ctx context.Context, userID, quizID string) (domain.AttemptReview, error) {
	if err := requireIDs(userID, quizID); err != nil {
		return domain.AttemptReview{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptReview{}, err
	}
	result, err := s.results.GetResult(ctx, userID, quizID)
	if err != nil {
		return domain.AttemptReview{}, err
	}

	byQuestion := make(map[domain.QuestionID]domain.ScoredAnswer, len(result.Answers))
	for _, a := range result.Answers {
		byQuestion[a.QuestionID] = a
	}
	questions := make([]domain.ReviewedQuestion, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		reviewed := domain.ReviewedQuestion{Question: q}
		if a, ok := byQuestion[q.ID]; ok {
			reviewed.SelectedOption = a.SelectedOption
			reviewed.IsCorrect = a.IsCorrect
		}
		questions = append(questions, reviewed)
	}
	return domain.AttemptReview{
		QuizID:    quiz.ID,
		Title:     quiz.Title,
		Score:     result.Score,
		Questions: questions,
	}, nil
}

// ListResults returns the scores of a quiz to its creator or to a user who finalized it.
func (s *AttemptService) ListResults(ctx context.Context, userID, quizID string) ([]domain.ResultSummary, error) {
	if err := requireIDs(userID, quizID); err != nil {
		return nil, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.CreatedBy != userID && !quiz.Participants.Contains(userID) {
		// The result store leads the participant set.
		_, err := s.results.GetResult(ctx, userID, quizID)
		switch {
		case errors.Is(err, domain.ErrResultNotFound):
			return nil, domain.ErrForbidden
		case err != nil:
			return nil, err
		}
	}

	results, err := s.results.ListResults(ctx, quizID)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.ResultSummary, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, domain.ResultSummary{
			UserID:      r.UserID,
			Score:       r.Score,
			SubmittedAt: r.SubmittedAt,
		})
	}
	return summaries, nil
}

func requireIDs(userID, quizID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.Invalid("user id is required")
	}
	if strings.TrimSpace(quizID) == "" {
		return domain.Invalid("quiz id is required")
	}
	return nil
}

func validateAnswers(answers domain.AnswerSet) error {
	if answers == nil {
		return domain.Invalid("answers are required")
	}
	return answers.Validate()
}
