package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"portfolio-chat/internal/domain/dto"
	"portfolio-chat/internal/domain/entities"
	"portfolio-chat/internal/infra/logger"
	"portfolio-chat/internal/infra/metrics"
	"portfolio-chat/internal/infra/repository"
	"portfolio-chat/internal/infra/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readToken = "owner-secret"

type testServer struct {
	router *mux.Router
	store  *repository.MemoryRepository
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	store := repository.NewMemoryRepository()
	m := metrics.New()
	svc := services.NewConversationService(store, logger.NewNop(), m)
	h := NewChatLogHandlers(logger.NewNop(), svc, m, 1<<20)
	h.ReadToken = readToken

	router := mux.NewRouter()
	router.HandleFunc("/api/chat/log", h.LogChat).Methods(http.MethodPost)
	router.HandleFunc("/api/chat/log/append", h.AppendChat).Methods(http.MethodPost)
	router.HandleFunc("/api/chat/conversations/{sessionId}", h.GetConversation).Methods(http.MethodGet)
	return testServer{router: router, store: store}
}

func (s testServer) post(t *testing.T, path string, body any) (*httptest.ResponseRecorder, dto.ChatLogResponse) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp dto.ChatLogResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestLogChatEndToEnd(t *testing.T) {
	s := newTestServer(t)

	first := dto.ChatLogRequest{
		Email:     "a@b.com",
		SessionID: "s1",
		Messages:  []dto.ChatMessage{{Role: "user", Content: "hi", Timestamp: "T1"}},
	}
	rec, resp := s.post(t, "/api/chat/log", first)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	stored, err := s.store.FindBySessionID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 1)

	second := first
	second.Messages = append(append([]dto.ChatMessage(nil), first.Messages...),
		dto.ChatMessage{Role: "assistant", Content: "hello!", Timestamp: "T2"})
	rec, resp = s.post(t, "/api/chat/log", second)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	stored, err = s.store.FindBySessionID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2)
	assert.Equal(t, "T2", stored.LastMessageAt)
	assert.Equal(t, 1, s.store.Count())
}

func TestLogChatMissingFields(t *testing.T) {
	s := newTestServer(t)
	messages := []dto.ChatMessage{{Role: "user", Content: "hi", Timestamp: "T1"}}

	cases := map[string]dto.ChatLogRequest{
		"empty messages":  {Email: "a@b.com", SessionID: "s1", Messages: []dto.ChatMessage{}},
		"missing email":   {SessionID: "s1", Messages: messages},
		"missing session": {Email: "a@b.com", Messages: messages},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec, resp := s.post(t, "/api/chat/log", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, "Missing required fields", resp.Error)
		})
	}
	assert.Equal(t, 0, s.store.Count())
}

func TestLogChatInvalidJSON(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.post(t, "/api/chat/log", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid request body", resp.Error)

	rec, _ = s.post(t, "/api/chat/log", `{"email":"a@b.com","sessionId":"s1","messages":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogChatBodyTooLarge(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc := services.NewConversationService(store, logger.NewNop(), metrics.New())
	h := NewChatLogHandlers(logger.NewNop(), svc, metrics.New(), 64)

	body := `{"email":"a@b.com","sessionId":"s1","messages":[{"role":"user","content":"` + strings.Repeat("x", 128) + `","timestamp":"T1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/log", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.LogChat(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Request body too large"}`, rec.Body.String())
	assert.Equal(t, 0, store.Count())
}

type brokenService struct{}

func (brokenService) LogTranscript(context.Context, dto.ChatLogRequest) error {
	return errors.New("document store unavailable")
}

func (brokenService) AppendTranscript(context.Context, dto.ChatLogRequest) error {
	return errors.New("document store unavailable")
}

func (brokenService) FindConversation(context.Context, string) (entities.Conversation, error) {
	return entities.Conversation{}, errors.New("document store unavailable")
}

func TestLogChatBackendError(t *testing.T) {
	h := NewChatLogHandlers(logger.NewNop(), brokenService{}, metrics.New(), 0)

	body := `{"email":"a@b.com","sessionId":"s1","messages":[{"role":"user","content":"hi","timestamp":"T1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat/log", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.LogChat(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"document store unavailable"}`, rec.Body.String())
}

func TestAppendChatAndGetConversation(t *testing.T) {
	s := newTestServer(t)

	body := dto.ChatLogRequest{
		Email:     "a@b.com",
		SessionID: "s1",
		Messages:  []dto.ChatMessage{{Role: "user", Content: "hi", Timestamp: "T1", MessageID: "m1"}},
	}
	rec, _ := s.post(t, "/api/chat/log/append", body)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.post(t, "/api/chat/log/append", body)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations/s1", nil)
	req.Header.Set("Authorization", "Bearer "+readToken)
	getRec := httptest.NewRecorder()
	s.router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var conversation entities.Conversation
	require.NoError(t, json.NewDecoder(getRec.Body).Decode(&conversation))
	assert.Equal(t, "s1", conversation.SessionID)
	assert.Equal(t, entities.StatusActive, conversation.Status)
	assert.Len(t, conversation.Messages, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/chat/conversations/unknown", nil)
	req.Header.Set("Authorization", "Bearer "+readToken)
	getRec = httptest.NewRecorder()
	s.router.ServeHTTP(getRec, req)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestGetConversationRequiresReadToken(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.post(t, "/api/chat/log", dto.ChatLogRequest{
		Email:     "a@b.com",
		SessionID: "s1",
		Messages:  []dto.ChatMessage{{Role: "user", Content: "hi", Timestamp: "T1"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for name, header := range map[string]string{
		"missing":   "",
		"wrong":     "Bearer guess",
		"no scheme": readToken,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations/s1", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			getRec := httptest.NewRecorder()
			s.router.ServeHTTP(getRec, req)

			assert.Equal(t, http.StatusUnauthorized, getRec.Code)
			assert.NotContains(t, getRec.Body.String(), "a@b.com")
		})
	}

	disabled := NewChatLogHandlers(logger.NewNop(), brokenService{}, metrics.New(), 0)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations/s1", nil)
	req.Header.Set("Authorization", "Bearer ")
	getRec := httptest.NewRecorder()
	disabled.GetConversation(getRec, req)
	assert.Equal(t, http.StatusUnauthorized, getRec.Code)
}
