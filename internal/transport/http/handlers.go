package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// AttemptHandler exposes the attempt lifecycle over REST.
type AttemptHandler struct {
	service *app.AttemptService
	log     *logger.Logger
}

func NewAttemptHandler(service *app.AttemptService, log *logger.Logger) *AttemptHandler {
	return &AttemptHandler{service: service, log: log}
}

type questionView struct {
	ID      domain.QuestionID `json:"question_id"`
	Text    string            `json:"questionText"`
	Options []string          `json:"options"`
}

// quizView is the quiz as shown to takers; correct answers stay server-side.
type quizView struct {
	ID               string         `json:"quizId"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	CreatedBy        string         `json:"createdBy,omitempty"`
	TimeLimit        int            `json:"timeLimit"`
	Questions        []questionView `json:"questions"`
	ParticipantCount int            `json:"participantCount"`
	LastUpdated      time.Time      `json:"lastUpdated"`
}

func newQuizView(q domain.Quiz) quizView {
	questions := make([]questionView, 0, len(q.Questions))
	for _, question := range q.Questions {
		questions = append(questions, questionView{ID: question.ID, Text: question.Text, Options: question.Options})
	}
	return quizView{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		CreatedBy:        q.CreatedBy,
		TimeLimit:        q.TimeLimitSeconds,
		Questions:        questions,
		ParticipantCount: len(q.Participants),
		LastUpdated:      q.LastUpdated,
	}
}

type progressRequest struct {
	Answers     domain.AnswerSet `json:"answers"`
	ElapsedTime *int             `json:"elapsedTime"`
}

type submitRequest struct {
	Answers domain.AnswerSet `json:"answers"`
}

type submitResponse struct {
	Score  int                  `json:"score"`
	Result domain.AttemptResult `json:"result"`
}

type statusResponse struct {
	QuizID string               `json:"quizId"`
	Status domain.AttemptStatus `json:"status"`
}

func (h *AttemptHandler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListQuizzes(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	views := make([]quizView, 0, len(quizzes))
	for _, quiz := range quizzes {
		views = append(views, newQuizView(quiz))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quizzes": views})
}

func (h *AttemptHandler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuiz(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID")); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttemptHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizView(quiz))
}

func (h *AttemptHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.GetProgress(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *AttemptHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if req.ElapsedTime == nil {
		writeServiceError(w, r, h.log, domain.Invalid("elapsedTime is required"))
		return
	}
	out, err := h.service.SaveProgress(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID"), req.Answers, *req.ElapsedTime)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AttemptHandler) ClearProgress(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearProgress(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID")); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttemptHandler) Status(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	status, err := h.service.AttemptStatus(r.Context(), UserID(r.Context()), quizID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{QuizID: quizID, Status: status})
}

func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	result, err := h.service.SubmitNow(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID"), req.Answers)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Score: result.Score, Result: result})
}

func (h *AttemptHandler) Review(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.ReviewAttempt(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *AttemptHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.ListResults(r.Context(), UserID(r.Context()), chi.URLParam(r, "quizID"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// decodeBody rejects unknown fields and trailing data; bad payloads are InvalidInput.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return domain.Invalid("request body is required")
		}
		return domain.Invalid("malformed request body: %v", err)
	}
	if dec.More() {
		return domain.Invalid("unexpected data after request body")
	}
	return nil
}

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return domain.Invalid("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return err
		}
		return domain.Invalid("malformed payload: %v", err)
	}
	return nil
}
