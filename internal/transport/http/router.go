package http

import (
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/logger"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the attempt API and the websocket endpoint behind auth.
func NewRouter(service *app.AttemptService, auth *Authenticator, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	attempts := NewAttemptHandler(service, log)
	ws := NewWSHandler(service, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1/quizzes", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/", attempts.ListQuizzes)
		r.Route("/{quizID}", func(r chi.Router) {
			r.Get("/", attempts.GetQuiz)
			r.Delete("/", attempts.DeleteQuiz)
			r.Get("/progress", attempts.GetProgress)
			r.Put("/progress", attempts.SaveProgress)
			r.Delete("/progress", attempts.ClearProgress)
			r.Get("/status", attempts.Status)
			r.Post("/submit", attempts.Submit)
			r.Get("/review", attempts.Review)
			r.Get("/results", attempts.Results)
			r.Get("/ws", ws.ServeWS)
		})
	})
	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
