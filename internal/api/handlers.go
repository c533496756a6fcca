package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"watchparty/internal/middleware"
	"watchparty/internal/models"
	"watchparty/internal/repository"
	"watchparty/internal/services"
	"watchparty/internal/services/collaboration"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
)

const defaultMessageLimit = 50

// Handler serves the REST API. Realtime traffic goes through wsHandler.
type Handler struct {
	store     SessionStore
	live      LiveSessions
	chat      ChatService
	processor VideoProcessor // nil disables the /video endpoints
	db        Pinger
	wsHandler *collaboration.WebSocketHandler
}

func NewHandler(
	store SessionStore,
	live LiveSessions,
	chat ChatService,
	processor VideoProcessor,
	db Pinger,
	wsHandler *collaboration.WebSocketHandler,
) *Handler {
	return &Handler{
		store:     store,
		live:      live,
		chat:      chat,
		processor: processor,
		db:        db,
		wsHandler: wsHandler,
	}
}

// Session handlers

type createSessionResponse struct {
	Session        *models.Session `json:"session"`
	JoinCode       string          `json:"join_code"`
	JoinURL        string          `json:"join_url"`
	MasterControls bool            `json:"master_controls"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.SessionCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Session name is required")
		return
	}

	session, err := h.store.CreateSession(r.Context(), &req)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		slog.Error("failed to create session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	middleware.AddSpanEvent(r.Context(), "session_created",
		attribute.String("session.id", session.ID),
		attribute.Bool("session.is_master", session.IsMaster),
	)

	respondJSON(w, http.StatusCreated, createSessionResponse{
		Session:        session,
		JoinCode:       session.ID,
		JoinURL:        "/join/" + session.ID,
		MasterControls: session.IsMaster,
	})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListActiveSessions(r.Context())
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	summaries := make([]models.SessionSummary, len(sessions))
	for i, s := range sessions {
		summaries[i] = models.SessionSummary{Session: s, UserCount: h.live.UserCount(s.ID)}
	}

	respondJSON(w, http.StatusOK, summaries)
}

type sessionDetail struct {
	*models.Session
	Users        []collaboration.RosterEntry `json:"users"`
	Participants []*models.Participant       `json:"participants"`
	Messages     []*models.ChatMessage       `json:"messages"`
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	participants, err := h.store.ListParticipants(r.Context(), session.ID)
	if err != nil {
		slog.Error("failed to list participants", "session_id", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	messages, err := h.store.ListMessages(r.Context(), session.ID, defaultMessageLimit)
	if err != nil {
		slog.Error("failed to list messages", "session_id", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}

	respondJSON(w, http.StatusOK, sessionDetail{
		Session:      session,
		Users:        h.live.Roster(session.ID),
		Participants: nonNil(participants),
		Messages:     nonNil(messages),
	})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	messages, err := h.store.ListMessages(r.Context(), session.ID, limit)
	if err != nil {
		slog.Error("failed to list messages", "session_id", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"messages":   nonNil(messages),
		"count":      len(messages),
	})
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	id := mux.Vars(r)["id"]

	session, err := h.store.GetSession(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load session", "session_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load session")
		return nil, false
	}
	return session, true
}

// Video processing handlers

type processRequest struct {
	VideoURL  string `json:"video_url"`
	SessionID string `json:"session_id"`
}

func (h *Handler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		respondError(w, http.StatusServiceUnavailable, "Video processing is not configured")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// a session id alone is enough: process the session's video
	if req.VideoURL == "" && req.SessionID != "" {
		session, err := h.store.GetSession(r.Context(), req.SessionID)
		if err != nil {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		req.VideoURL = session.VideoURL
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		respondError(w, http.StatusBadRequest, "video_url is required")
		return
	}

	outcome, err := h.processor.Start(r.Context(), req.VideoURL, req.SessionID)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		slog.Error("failed to start processing", "video_url", req.VideoURL, "error", err)
		respondError(w, http.StatusServiceUnavailable, "Failed to start video processing")
		return
	}

	status := http.StatusOK
	message := "Video already processed"
	switch outcome {
	case services.StartQueued:
		status = http.StatusAccepted
		message = "Video processing started"
	case services.StartInProgress:
		message = "Video processing already in progress"
	}

	respondJSON(w, status, map[string]any{
		"status":    outcome,
		"message":   message,
		"video_url": req.VideoURL,
	})
}

func (h *Handler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		respondError(w, http.StatusServiceUnavailable, "Video processing is not configured")
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	status, err := h.processor.Status(r.Context(), url)
	if err != nil {
		slog.Error("failed to read processing status", "video_url", url, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to read processing status")
		return
	}

	respondJSON(w, http.StatusOK, collaboration.VideoStatus{
		VideoURL:     url,
		Status:       status.Status,
		Progress:     status.Progress,
		ErrorMessage: status.ErrorMessage,
	})
}

type transcriptRequest struct {
	VideoURL string                `json:"video_url"`
	Segments []models.SegmentInput `json:"segments"`
}

func (h *Handler) IngestTranscript(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		respondError(w, http.StatusServiceUnavailable, "Video processing is not configured")
		return
	}

	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Segments) == 0 {
		respondError(w, http.StatusBadRequest, "segments are required")
		return
	}

	n, err := h.processor.IngestTranscript(r.Context(), req.VideoURL, req.Segments)
	if errors.Is(err, services.ErrInvalidTranscript) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to store transcript", "video_url", req.VideoURL, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to store transcript")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"video_url": req.VideoURL,
		"segments":  n,
	})
}

// Health handlers

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) DatabaseHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		slog.Warn("database health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
