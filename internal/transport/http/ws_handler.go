package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// WSHandler lets a client drive one attempt over a websocket: periodic progress saves,
// a final submit and status polls.
type WSHandler struct {
	service   *app.AttemptService
	log       *logger.Logger
	upgrader  websocket.Upgrader
	writeWait time.Duration
}

func NewWSHandler(service *app.AttemptService, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &WSHandler{
		service:   service,
		log:       log,
		writeWait: writeWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and serves attempt messages until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	userID := UserID(r.Context())
	log := h.log.With("quiz_id", quizID, "user_id", userID)

	// Resolve the quiz before upgrading so unknown quizzes get a plain 404.
	if _, err := h.service.GetQuiz(r.Context(), quizID); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pingerDone := make(chan struct{})

	// Single writer; the read loop and the pinger never write frames directly.
	// A failed write closes the conn, which also ends the read loop.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "error", err)
				_ = conn.Close()
				return
			}
		}
	}()
	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(pingerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ok := enqueue(h.status(ctx, userID, quizID))

read:
	for ok {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("ws read error", "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		for _, msg := range h.dispatch(ctx, userID, quizID, inbound) {
			if !enqueue(msg) {
				break read
			}
		}
	}

	close(closeSignals)
	<-pingerDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, userID, quizID string, inbound inboundMessage) []outboundMessage[any] {
	switch inbound.Type {
	case "progress":
		var payload progressRequest
		if err := unmarshalPayload(inbound.Payload, &payload); err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		if payload.ElapsedTime == nil {
			return []outboundMessage[any]{errorMessage(domain.Invalid("elapsedTime is required"))}
		}
		out, err := h.service.SaveProgress(ctx, userID, quizID, payload.Answers, *payload.ElapsedTime)
		if err != nil {
			return []outboundMessage[any]{h.serviceError(err)}
		}
		msgs := []outboundMessage[any]{{Type: "progress", Payload: out.Progress}}
		if out.Result != nil {
			msgs = append(msgs, outboundMessage[any]{Type: "result", Payload: *out.Result})
		}
		return msgs
	case "submit":
		var payload submitRequest
		if err := unmarshalPayload(inbound.Payload, &payload); err != nil {
			return []outboundMessage[any]{errorMessage(err)}
		}
		result, err := h.service.SubmitNow(ctx, userID, quizID, payload.Answers)
		if err != nil {
			return []outboundMessage[any]{h.serviceError(err)}
		}
		return []outboundMessage[any]{{Type: "result", Payload: result}}
	case "status":
		return []outboundMessage[any]{h.status(ctx, userID, quizID)}
	default:
		return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Code: "UNSUPPORTED", Message: "unsupported message type"}}}
	}
}

func (h *WSHandler) status(ctx context.Context, userID, quizID string) outboundMessage[any] {
	status, err := h.service.AttemptStatus(ctx, userID, quizID)
	if err != nil {
		return h.serviceError(err)
	}
	return outboundMessage[any]{Type: "status", Payload: statusResponse{QuizID: quizID, Status: status}}
}

func (h *WSHandler) serviceError(err error) outboundMessage[any] {
	msg := errorMessage(err)
	if msg.Payload.(errorPayload).Code == "INTERNAL_ERROR" {
		h.log.Error("ws request failed", "error", err)
	}
	return msg
}

func errorMessage(err error) outboundMessage[any] {
	_, code, message := classify(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}
