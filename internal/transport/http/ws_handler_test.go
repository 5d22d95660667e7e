package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func TestWebSocketAttemptFlow(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestService(), NewAuthenticator(""), nil))
	defer server.Close()

	conn := dialWS(t, server, "quiz-1", "u1")
	defer conn.Close()

	// Expect the current status first.
	_, payload := readNext(conn, t, "status")
	if payload["status"] != string(domain.StatusNotTaken) {
		t.Fatalf("expected %q, got %v", domain.StatusNotTaken, payload["status"])
	}

	progress := map[string]any{
		"type": "progress",
		"payload": map[string]any{
			"answers":     []map[string]any{{"question_id": 1, "selectedOption": "Paris"}},
			"elapsedTime": 10,
		},
	}
	if err := conn.WriteJSON(progress); err != nil {
		t.Fatalf("write progress: %v", err)
	}
	_, payload = readNext(conn, t, "progress")
	if payload["elapsedTime"] != float64(10) {
		t.Fatalf("unexpected progress payload %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "status"}); err != nil {
		t.Fatalf("write status: %v", err)
	}
	_, payload = readNext(conn, t, "status")
	if payload["status"] != string(domain.StatusInProgress) {
		t.Fatalf("expected %q, got %v", domain.StatusInProgress, payload["status"])
	}

	submit := map[string]any{
		"type": "submit",
		"payload": map[string]any{
			"answers": []map[string]any{
				{"question_id": 1, "selectedOption": "Paris"},
				{"question_id": 2, "selectedOption": "5"},
			},
		},
	}
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	_, payload = readNext(conn, t, "result")
	if payload["score"] != float64(1) {
		t.Fatalf("expected score 1, got %v", payload["score"])
	}

	// A second submit is rejected over the same socket.
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit 2: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if payload["code"] != "ALREADY_SUBMITTED" {
		t.Fatalf("expected ALREADY_SUBMITTED, got %v", payload)
	}
}

func TestWebSocketExpiryFinalizes(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestService(), NewAuthenticator(""), nil))
	defer server.Close()

	conn := dialWS(t, server, "quiz-1", "u2")
	defer conn.Close()
	readNext(conn, t, "status")

	progress := map[string]any{
		"type": "progress",
		"payload": map[string]any{
			"answers":     []map[string]any{{"question_id": "1", "selectedOption": "Paris"}},
			"elapsedTime": 301,
		},
	}
	if err := conn.WriteJSON(progress); err != nil {
		t.Fatalf("write progress: %v", err)
	}
	_, payload := readNext(conn, t, "progress")
	if payload["completed"] != true {
		t.Fatalf("expected completed progress, got %v", payload)
	}
	_, payload = readNext(conn, t, "result")
	if payload["score"] != float64(1) {
		t.Fatalf("expected score 1, got %v", payload["score"])
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestService(), NewAuthenticator(""), nil))
	defer server.Close()

	conn := dialWS(t, server, "quiz-1", "u3")
	defer conn.Close()
	readNext(conn, t, "status")

	if err := conn.WriteJSON(map[string]any{"type": "cheat"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, payload := readNext(conn, t, "error")
	if payload["code"] != "UNSUPPORTED" {
		t.Fatalf("expected UNSUPPORTED, got %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "progress", "payload": map[string]any{"answers": []any{}, "elapsedTime": -5}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if payload["code"] != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %v", payload)
	}
}

func TestWebSocketUnknownQuiz(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestService(), NewAuthenticator(""), nil))
	defer server.Close()

	header := http.Header{}
	header.Set(UserHeader, "u1")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "missing"), header)
	if err == nil {
		t.Fatalf("expected dial failure for unknown quiz")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestWebSocketWriterFailureReleasesHandler(t *testing.T) {
	ws := NewWSHandler(newTestService(), logger.NewNop())
	// Every write is already past its deadline.
	ws.writeWait = -time.Second

	returned := make(chan struct{})
	r := chi.NewRouter()
	r.With(NewAuthenticator("").Middleware).Get("/api/v1/quizzes/{quizID}/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(w, r)
		close(returned)
	})
	server := httptest.NewServer(r)
	defer server.Close()

	conn := dialWS(t, server, "quiz-1", "u1")
	defer conn.Close()

	// Keep sending without ever reading replies.
	for i := 0; i < 64; i++ {
		if err := conn.WriteJSON(map[string]string{"type": "status"}); err != nil {
			break
		}
	}

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler still running after its writer failed")
	}
}

func wsURL(server *httptest.Server, quizID string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/quizzes/" + quizID + "/ws"
}

func dialWS(t *testing.T, server *httptest.Server, quizID, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(UserHeader, userID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, quizID), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func newTestService() *app.AttemptService {
	store := memory.NewStaticQuizStore(sampleQuiz())
	return app.NewAttemptService(
		memory.NewQuizRepository(store, time.Minute),
		memory.NewProgressStore(),
		memory.NewResultStore(),
		nil,
	)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "General knowledge",
		CreatedBy:        "author",
		TimeLimitSeconds: 300,
		Questions: []domain.Question{
			{ID: "1", Text: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
			{ID: "2", Text: "2 + 2?", Options: []string{"4", "5"}, CorrectAnswer: "4"},
		},
	}
}
