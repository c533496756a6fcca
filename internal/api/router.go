package api

import (
	"net/http"

	"watchparty/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// tracing first so recovered panics land on the request span
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/messages", h.ListMessages).Methods("GET")
	api.HandleFunc("/sessions/{id}/messages", h.PostMessage).Methods("POST")
	api.HandleFunc("/sessions/{id}/context", h.SessionContext).Methods("GET")
	api.HandleFunc("/ask", h.Ask).Methods("POST")

	api.HandleFunc("/video/process", h.ProcessVideo).Methods("POST")
	api.HandleFunc("/video/status", h.VideoStatus).Methods("GET")
	api.HandleFunc("/video/transcript", h.IngestTranscript).Methods("POST")

	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/health/db", h.DatabaseHealth).Methods("GET")

	// preflight requests are answered by CORSMiddleware
	api.Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.HandleFunc("/ws/session", h.HandleSessionWebSocket)

	return r
}
