package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"

	"golang.org/x/sync/errgroup"
)

var fixedNow = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	service  *app.AttemptService
	store    *memory.StaticQuizStore
	quizzes  *memory.QuizRepository
	progress *memory.ProgressStore
	results  *memory.ResultStore
}

func newTestEnv(quizzes ...domain.Quiz) *testEnv {
	if len(quizzes) == 0 {
		quizzes = []domain.Quiz{timedQuiz(), capitalsQuiz()}
	}
	env := &testEnv{
		store:    memory.NewStaticQuizStore(quizzes...),
		progress: memory.NewProgressStore(),
		results:  memory.NewResultStore(),
	}
	env.quizzes = memory.NewQuizRepository(env.store, time.Minute)
	env.service = app.NewAttemptServiceWithClock(env.quizzes, env.progress, env.results, nil, func() time.Time { return fixedNow })
	return env
}

func timedQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Letters",
		CreatedBy:        "author",
		TimeLimitSeconds: 60,
		Questions: []domain.Question{
			{ID: "1", Text: "Pick B", Options: []string{"A", "B"}, CorrectAnswer: "B"},
		},
	}
}

func capitalsQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-2",
		Title:            "Mixed",
		CreatedBy:        "author",
		TimeLimitSeconds: 300,
		Questions: []domain.Question{
			{ID: "1", Text: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
			{ID: "2", Text: "2 + 2?", Options: []string{"4", "5"}, CorrectAnswer: "4"},
		},
	}
}

func TestSaveProgressPastLimitFinalizes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	out, err := env.service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("B")}}, 65)
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if out.Result == nil || out.Result.Score != 1 {
		t.Fatalf("expected finalized result with score 1, got %+v", out.Result)
	}
	if !out.Progress.Completed {
		t.Fatalf("expected returned progress marked completed")
	}

	status, err := env.service.AttemptStatus(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.StatusTaken {
		t.Fatalf("expected %q, got %q", domain.StatusTaken, status)
	}
	if _, err := env.progress.GetProgress(ctx, "u1", "quiz-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected progress cleared, got %v", err)
	}
}

func TestSaveProgressWithinLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	status, err := env.service.AttemptStatus(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.StatusNotTaken {
		t.Fatalf("expected %q, got %q", domain.StatusNotTaken, status)
	}

	out, err := env.service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("A")}}, 20)
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if out.Result != nil || out.Progress.Completed {
		t.Fatalf("expected attempt still open, got %+v", out)
	}

	// last write wins for the whole answer set
	if _, err := env.service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{}, 30); err != nil {
		t.Fatalf("save progress 2: %v", err)
	}
	progress, err := env.service.GetProgress(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if len(progress.Answers) != 0 || progress.ElapsedSeconds != 30 {
		t.Fatalf("expected replaced progress, got %+v", progress)
	}

	status, err = env.service.AttemptStatus(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.StatusInProgress {
		t.Fatalf("expected %q, got %q", domain.StatusInProgress, status)
	}
}

func TestSaveProgressUntimedNeverExpires(t *testing.T) {
	ctx := context.Background()
	quiz := timedQuiz()
	quiz.TimeLimitSeconds = 0
	env := newTestEnv(quiz)

	out, err := env.service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{}, 100000)
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if out.Result != nil {
		t.Fatalf("untimed quiz finalized unexpectedly")
	}
}

func TestSaveProgressRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	cases := []struct {
		name    string
		user    string
		quiz    string
		answers domain.AnswerSet
		elapsed int
		want    error
	}{
		{"negative elapsed", "u1", "quiz-1", domain.AnswerSet{}, -1, domain.ErrInvalidInput},
		{"missing user", "", "quiz-1", domain.AnswerSet{}, 1, domain.ErrInvalidInput},
		{"nil answers", "u1", "quiz-1", nil, 1, domain.ErrInvalidInput},
		{"duplicate question", "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1"}, {QuestionID: "1"}}, 1, domain.ErrInvalidInput},
		{"unknown quiz", "u1", "nope", domain.AnswerSet{}, 1, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.service.SaveProgress(ctx, tc.user, tc.quiz, tc.answers, tc.elapsed); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSaveProgressAfterSubmitRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.SubmitNow(ctx, "u1", "quiz-1", domain.AnswerSet{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{}, 5); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	if _, err := env.progress.GetProgress(ctx, "u1", "quiz-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no progress recreated, got %v", err)
	}
}

func TestSubmitNowScoresAnswers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	result, err := env.service.SubmitNow(ctx, "u1", "quiz-2", domain.AnswerSet{
		{QuestionID: "1", SelectedOption: opt("Paris")},
		{QuestionID: "2", SelectedOption: opt("5")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 1 {
		t.Fatalf("expected score 1, got %d", result.Score)
	}
	if !result.Answers[0].IsCorrect || result.Answers[1].IsCorrect {
		t.Fatalf("unexpected correctness %+v", result.Answers)
	}
	if result.ID == "" || !result.SubmittedAt.Equal(fixedNow) {
		t.Fatalf("expected id and timestamp, got %+v", result)
	}

	quiz, err := env.store.LoadQuiz(ctx, "quiz-2")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if !quiz.Participants.Contains("u1") {
		t.Fatalf("expected u1 in participants")
	}
}

func TestSubmitNowUnknownQuestionIsIncorrect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	result, err := env.service.SubmitNow(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "42", SelectedOption: opt("B")}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 0 || result.Answers[0].IsCorrect {
		t.Fatalf("expected unknown question scored incorrect, got %+v", result)
	}
}

func TestSubmitTwiceKeepsFirstResult(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	first, err := env.service.SubmitNow(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("B")}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.service.SubmitNow(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("A")}}); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}

	stored, err := env.results.GetResult(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if stored.Score != first.Score || stored.ID != first.ID {
		t.Fatalf("first result changed: %+v vs %+v", stored, first)
	}
}

func TestConcurrentFinalizationCommitsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("B")}}, 10); err != nil {
		t.Fatalf("save progress: %v", err)
	}

	var committed, rejected int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		i := i
		g.Go(func() error {
			var err error
			if i%2 == 0 {
				_, err = env.service.SubmitNow(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("A")}})
			} else {
				_, err = env.service.FinalizeOnExpiry(ctx, "u1", "quiz-1")
			}
			switch {
			case err == nil:
				atomic.AddInt32(&committed, 1)
			case errors.Is(err, domain.ErrAlreadySubmitted), errors.Is(err, domain.ErrProgressNotFound):
				atomic.AddInt32(&rejected, 1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected finalization error: %v", err)
	}
	if committed != 1 {
		t.Fatalf("expected exactly one commit, got %d (rejected %d)", committed, rejected)
	}
	if n := resultCount(t, env, "u1", "quiz-1"); n != 1 {
		t.Fatalf("expected one stored result, got %d", n)
	}
}

func TestFinalizeOnExpiryWithoutProgress(t *testing.T) {
	env := newTestEnv()
	if _, err := env.service.FinalizeOnExpiry(context.Background(), "u1", "quiz-1"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("expected progress not found, got %v", err)
	}
}

func TestClearProgressIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{}, 1); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.service.ClearProgress(ctx, "u1", "quiz-1"); err != nil {
			t.Fatalf("clear %d: %v", i, err)
		}
	}
}

func TestStatusParticipantWinsOverStaleProgress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if err := env.progress.SaveProgress(ctx, domain.AttemptProgress{UserID: "u1", QuizID: "quiz-1", Answers: domain.AnswerSet{}, ElapsedSeconds: 5}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	if err := env.store.AddParticipant(ctx, "quiz-1", "u1"); err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	status, err := env.service.AttemptStatus(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.StatusTaken {
		t.Fatalf("expected %q, got %q", domain.StatusTaken, status)
	}
}

func TestStatusDoesNotWriteParticipants(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if err := env.results.CreateResult(ctx, domain.AttemptResult{UserID: "u1", QuizID: "quiz-1"}); err != nil {
		t.Fatalf("seed result: %v", err)
	}
	status, err := env.service.AttemptStatus(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.StatusTaken {
		t.Fatalf("expected %q, got %q", domain.StatusTaken, status)
	}
	quiz, err := env.store.LoadQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if quiz.Participants.Contains("u1") {
		t.Fatalf("status must not modify the participant set")
	}
}

func TestReconcileParticipantsRepairsLaggingSet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	for _, user := range []string{"u1", "u2"} {
		if err := env.results.CreateResult(ctx, domain.AttemptResult{UserID: user, QuizID: "quiz-1"}); err != nil {
			t.Fatalf("seed result %s: %v", user, err)
		}
	}
	if err := env.store.AddParticipant(ctx, "quiz-1", "u2"); err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	repaired, err := env.service.ReconcileParticipants(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected one repaired participant, got %d", repaired)
	}
	quiz, err := env.store.LoadQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if !quiz.Participants.Contains("u1") || !quiz.Participants.Contains("u2") {
		t.Fatalf("expected both users as participants, got %v", quiz.Participants)
	}

	again, err := env.service.ReconcileParticipants(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("reconcile again: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected nothing left to repair, got %d", again)
	}
}

func TestListResultsAllowsFinalizedUserAheadOfParticipants(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if err := env.results.CreateResult(ctx, domain.AttemptResult{UserID: "u1", QuizID: "quiz-2", Score: 2}); err != nil {
		t.Fatalf("seed result: %v", err)
	}
	results, err := env.service.ListResults(ctx, "u1", "quiz-2")
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 1 || results[0].Score != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestDeleteQuizCreatorOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.SaveProgress(ctx, "u1", "quiz-2", domain.AnswerSet{}, 5); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if _, err := env.service.SubmitNow(ctx, "u2", "quiz-2", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("Paris")}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := env.service.DeleteQuiz(ctx, "u2", "quiz-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-creator, got %v", err)
	}
	if err := env.service.DeleteQuiz(ctx, "author", "quiz-2"); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}

	if _, err := env.service.GetQuiz(ctx, "quiz-2"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz gone, got %v", err)
	}
	if _, err := env.progress.GetProgress(ctx, "u1", "quiz-2"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("expected progress purged, got %v", err)
	}
	if _, err := env.results.GetResult(ctx, "u2", "quiz-2"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected result purged, got %v", err)
	}

	quizzes, err := env.service.ListQuizzes(ctx)
	if err != nil {
		t.Fatalf("list quizzes: %v", err)
	}
	if len(quizzes) != 1 || quizzes[0].ID != "quiz-1" {
		t.Fatalf("expected only quiz-1 left, got %+v", quizzes)
	}
}

func TestExpiryStorageFailureLeavesPendingEvaluation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	failing := &failingResults{ResultStore: env.results, err: domain.Storage("create result", errors.New("disk full"))}
	service := app.NewAttemptServiceWithClock(env.quizzes, env.progress, failing, nil, func() time.Time { return fixedNow })

	_, err := service.SaveProgress(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("B")}}, 61)
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage failure, got %v", err)
	}

	status, err := service.AttemptStatus(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.StatusPendingEvaluation {
		t.Fatalf("expected %q, got %q", domain.StatusPendingEvaluation, status)
	}
	quiz, err := env.store.LoadQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if quiz.Participants.Contains("u1") {
		t.Fatalf("participant added without a result")
	}

	// once storage recovers the pending attempt can still be finalized from progress
	result, err := env.service.FinalizeOnExpiry(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.Score != 1 {
		t.Fatalf("expected score 1, got %d", result.Score)
	}
}

func TestCleanupFailureKeepsCommittedResult(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	quizzes := &failingParticipants{QuizRepository: env.quizzes}
	service := app.NewAttemptServiceWithClock(quizzes, env.progress, env.results, nil, func() time.Time { return fixedNow })

	result, err := service.SubmitNow(ctx, "u1", "quiz-1", domain.AnswerSet{{QuestionID: "1", SelectedOption: opt("B")}})
	if err != nil {
		t.Fatalf("submit should succeed despite cleanup failure: %v", err)
	}
	if result.Score != 1 {
		t.Fatalf("expected score 1, got %d", result.Score)
	}
	if n := resultCount(t, env, "u1", "quiz-1"); n != 1 {
		t.Fatalf("expected committed result, got %d", n)
	}
}

func TestReviewAttempt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.ReviewAttempt(ctx, "u1", "quiz-2"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected result not found, got %v", err)
	}
	if _, err := env.service.SubmitNow(ctx, "u1", "quiz-2", domain.AnswerSet{{QuestionID: "2", SelectedOption: opt("4")}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	review, err := env.service.ReviewAttempt(ctx, "u1", "quiz-2")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review.Score != 1 || len(review.Questions) != 2 {
		t.Fatalf("unexpected review %+v", review)
	}
	if review.Questions[0].SelectedOption != nil || review.Questions[0].IsCorrect {
		t.Fatalf("unanswered question should be blank, got %+v", review.Questions[0])
	}
	if !review.Questions[1].IsCorrect {
		t.Fatalf("expected second question correct")
	}
}

func TestListResultsAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.SubmitNow(ctx, "u1", "quiz-2", domain.AnswerSet{}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := env.service.ListResults(ctx, "stranger", "quiz-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	for _, user := range []string{"author", "u1"} {
		results, err := env.service.ListResults(ctx, user, "quiz-2")
		if err != nil {
			t.Fatalf("list as %s: %v", user, err)
		}
		if len(results) != 1 || results[0].UserID != "u1" {
			t.Fatalf("unexpected results %+v", results)
		}
	}
}

func resultCount(t *testing.T, env *testEnv, userID, quizID string) int {
	t.Helper()
	results, err := env.results.ListResults(context.Background(), quizID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	n := 0
	for _, r := range results {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

type failingResults struct {
	*memory.ResultStore
	err error
}

func (f *failingResults) CreateResult(context.Context, domain.AttemptResult) error {
	return f.err
}

type failingParticipants struct {
	*memory.QuizRepository
}

func (f *failingParticipants) AddParticipant(context.Context, string, string) error {
	return domain.Storage("add participant", errors.New("connection reset"))
}
