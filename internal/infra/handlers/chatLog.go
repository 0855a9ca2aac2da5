package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"portfolio-chat/internal/domain/dto"
	"portfolio-chat/internal/domain/interfaces/repository"
	Iservices "portfolio-chat/internal/domain/interfaces/services"
	"portfolio-chat/internal/infra/logger"
	"portfolio-chat/internal/infra/metrics"
	"portfolio-chat/internal/infra/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type ChatLogHandlers struct {
	Logger              *logger.Logger
	ConversationService Iservices.IConversationService
	Metrics             *metrics.Metrics
	MaxBodyBytes        int64
	// ReadToken guards GetConversation. An empty token disables the read route.
	ReadToken           string
}

func NewChatLogHandlers(logger *logger.Logger, conversationService Iservices.IConversationService, m *metrics.Metrics, maxBodyBytes int64) *ChatLogHandlers {
	return &ChatLogHandlers{Logger: logger, ConversationService: conversationService, Metrics: m, MaxBodyBytes: maxBodyBytes}
}

// LogChat handles POST /api/chat/log.
//
// The body carries the whole client-side transcript of a session. The stored
// conversation for that session is created on first call and its messages, status and
// lastMessageAt are overwritten on every later call.
//
// HTTP Status Codes:
// - 200 OK: {"success": true} once the write completed.
// - 400 Bad Request: malformed JSON, or a missing email, sessionId or empty messages array.
// - 413 Request Entity Too Large: the body exceeds MaxBodyBytes.
// - 500 Internal Server Error: the document store failed; the error message is returned.
func (th *ChatLogHandlers) LogChat(w http.ResponseWriter, r *http.Request) {
	th.handleWrite(w, r, th.ConversationService.LogTranscript)
}

// AppendChat handles POST /api/chat/log/append. It accepts the same body as LogChat but
// only adds messages whose messageId is not stored yet.
func (th *ChatLogHandlers) AppendChat(w http.ResponseWriter, r *http.Request) {
	th.handleWrite(w, r, th.ConversationService.AppendTranscript)
}

// GetConversation handles GET /api/chat/conversations/{sessionId}. The transcript and email
// are owner-only: the request must carry "Authorization: Bearer <ReadToken>".
func (th *ChatLogHandlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	if !th.authorizedReader(r) {
		th.Logger.Warn("Unauthorized conversation read", logrus.Fields{"remote_addr": r.RemoteAddr})
		writeJSON(w, http.StatusUnauthorized, dto.ChatLogResponse{Success: false, Error: "Unauthorized"})
		return
	}

	sessionID := mux.Vars(r)["sessionId"]

	conversation, err := th.ConversationService.FindConversation(r.Context(), sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, dto.ChatLogResponse{Success: false, Error: "Conversation not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ChatLogResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, conversation)
}

func (th *ChatLogHandlers) handleWrite(w http.ResponseWriter, r *http.Request, write func(context.Context, dto.ChatLogRequest) error) {
	if th.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, th.MaxBodyBytes)
	}
	defer r.Body.Close()

	var body dto.ChatLogRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			th.Logger.Warn(fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			th.Metrics.ObserveRequest(metrics.OutcomeInvalid)
			writeJSON(w, http.StatusRequestEntityTooLarge, dto.ChatLogResponse{Success: false, Error: "Request body too large"})
			return
		}
		th.Logger.Warn(fmt.Sprintf("Invalid JSON payload: %s", err.Error()))
		th.Metrics.ObserveRequest(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, dto.ChatLogResponse{Success: false, Error: "Invalid request body"})
		return
	}

	th.Logger.Info("Received chat log request", logrus.Fields{
		"path":          r.URL.Path,
		"email":         body.Email,
		"session_id":    body.SessionID,
		"message_count": len(body.Messages),
	})

	err := write(r.Context(), body)
	switch {
	case errors.Is(err, services.ErrMissingFields):
		th.Metrics.ObserveRequest(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, dto.ChatLogResponse{Success: false, Error: services.ErrMissingFields.Error()})
	case err != nil:
		th.Logger.Error(fmt.Sprintf("Failed to save chat log: %v", err), logrus.Fields{"session_id": body.SessionID})
		th.Metrics.ObserveRequest(metrics.OutcomeError)
		writeJSON(w, http.StatusInternalServerError, dto.ChatLogResponse{Success: false, Error: err.Error()})
	default:
		th.Metrics.ObserveRequest(metrics.OutcomeOK)
		writeJSON(w, http.StatusOK, dto.ChatLogResponse{Success: true})
	}
}

func (th *ChatLogHandlers) authorizedReader(r *http.Request) bool {
	if th.ReadToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(th.ReadToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
