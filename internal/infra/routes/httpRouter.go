package routes

import (
	"encoding/json"
	"net/http"

	"portfolio-chat/internal/infra/handlers"
	"portfolio-chat/internal/infra/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Routes struct {
	Mux            *mux.Router
	ChatLogHandler *handlers.ChatLogHandlers
	Metrics        *metrics.Metrics
}

func NewRoutes(mux *mux.Router, chatLogHandler *handlers.ChatLogHandlers, m *metrics.Metrics) *Routes {
	return &Routes{mux, chatLogHandler, m}
}

func (r *Routes) Init() {
	r.Mux.HandleFunc("/api/chat/log", r.ChatLogHandler.LogChat).Methods(http.MethodPost)
	r.Mux.HandleFunc("/api/chat/log/append", r.ChatLogHandler.AppendChat).Methods(http.MethodPost)
	r.Mux.HandleFunc("/api/chat/conversations/{sessionId}", r.ChatLogHandler.GetConversation).Methods(http.MethodGet)

	r.Mux.HandleFunc("/healthCheck", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]string{"status": "healthy"}
		json.NewEncoder(w).Encode(response)
	}).Methods(http.MethodGet)

	if r.Metrics != nil {
		r.Mux.Handle("/metrics", promhttp.HandlerFor(r.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}
