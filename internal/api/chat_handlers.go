package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"watchparty/internal/middleware"
	"watchparty/internal/models"
	"watchparty/internal/repository"
	"watchparty/internal/services"
	"watchparty/internal/services/collaboration"

	"go.opentelemetry.io/otel/attribute"
)

const anonymousUser = "anonymous"

type postMessageRequest struct {
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"message_type"`
	UserID      string             `json:"user_id"`
	DisplayName string             `json:"display_name"`
}

// PostMessage appends a user or ai message to a session's chat.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" || (req.MessageType != models.MessageTypeUser && req.MessageType != models.MessageTypeAI) {
		respondError(w, http.StatusBadRequest, "content and message_type (user or ai) are required")
		return
	}

	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	msg := &models.ChatMessage{
		SessionID:   session.ID,
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Body:        req.Content,
		Type:        req.MessageType,
	}
	if msg.UserID == "" {
		msg.UserID = anonymousUser
		if msg.Type == models.MessageTypeAI {
			msg.UserID = models.AIUserID
		}
	}

	if err := h.chat.PostMessage(r.Context(), msg); err != nil {
		middleware.AddSpanError(r.Context(), err)
		slog.Error("failed to post message", "session_id", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to store message")
		return
	}

	respondJSON(w, http.StatusCreated, msg)
}

type sessionContext struct {
	Session  *models.Session               `json:"session"`
	Messages []*models.ChatMessage         `json:"messages"`
	Users    []collaboration.RosterEntry   `json:"users"`
	Video    *models.VideoProcessingStatus `json:"video_status,omitempty"`
}

// SessionContext is what an assistant client needs: the session, its chat,
// who is connected and, when known, the video's processing status.
func (h *Handler) SessionContext(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	messages, err := h.store.ListMessages(r.Context(), session.ID, 0)
	if err != nil {
		slog.Error("failed to list messages", "session_id", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load session context")
		return
	}

	out := sessionContext{
		Session:  session,
		Messages: nonNil(messages),
		Users:    nonNil(h.live.Roster(session.ID)),
	}
	if h.processor != nil && session.HasVideo() {
		status, err := h.processor.Status(r.Context(), session.VideoURL)
		if err != nil {
			slog.Warn("failed to read processing status", "video_url", session.VideoURL, "error", err)
		} else {
			out.Video = status
		}
	}

	respondJSON(w, http.StatusOK, out)
}

type askRequest struct {
	Message        string           `json:"message"`
	SessionID      string           `json:"session_id"`
	UserID         string           `json:"user_id"`
	DisplayName    string           `json:"display_name"`
	VideoTimestamp float64          `json:"video_timestamp"`
	QueryMode      models.QueryMode `json:"query_mode"`
	StartTime      *float64         `json:"start_time"`
	EndTime        *float64         `json:"end_time"`
}

type askResponse struct {
	Message        string    `json:"message"`
	SessionID      string    `json:"session_id"`
	Answer         string    `json:"answer"`
	VideoTimestamp float64   `json:"video_timestamp"`
	QuestionID     string    `json:"question_id"`
	AnswerID       string    `json:"answer_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// Ask answers one question synchronously and records it in the session chat.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "Message and session_id are required")
		return
	}

	session, err := h.store.GetSession(r.Context(), req.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		slog.Error("failed to load session", "session_id", req.SessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if !session.HasVideo() {
		respondError(w, http.StatusBadRequest, "Session does not have a video URL")
		return
	}
	if !h.videoReady(r, session) {
		respondError(w, http.StatusServiceUnavailable, "Video analysis not ready, please wait for processing to complete")
		return
	}

	if req.UserID == "" {
		req.UserID = anonymousUser
	}
	answerReq := models.AnswerRequest{
		Question:       req.Message,
		SessionID:      session.ID,
		UserID:         req.UserID,
		VideoTimestamp: req.VideoTimestamp,
		Window:         models.NewTimeWindow(req.QueryMode, req.VideoTimestamp, req.StartTime, req.EndTime),
	}

	question, reply, err := h.chat.Ask(r.Context(), answerReq, req.DisplayName)
	switch {
	case errors.Is(err, services.ErrVideoNotReady):
		respondError(w, http.StatusServiceUnavailable, "Video analysis not ready, please wait for processing to complete")
		return
	case err != nil:
		middleware.AddSpanError(r.Context(), err)
		slog.Error("ask failed", "session_id", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "AI processing failed, please try again")
		return
	}

	middleware.AddSpanEvent(r.Context(), "question_answered",
		attribute.String("session.id", session.ID),
		attribute.String("query.window", answerReq.Window.String()),
	)

	respondJSON(w, http.StatusOK, askResponse{
		Message:        req.Message,
		SessionID:      session.ID,
		Answer:         reply.Body,
		VideoTimestamp: req.VideoTimestamp,
		QuestionID:     question.ID,
		AnswerID:       reply.ID,
		Timestamp:      reply.CreatedAt,
	})
}

// videoReady is false only when processing is known to be unfinished.
func (h *Handler) videoReady(r *http.Request, session *models.Session) bool {
	if session.VideoProcessed || h.processor == nil {
		return true
	}
	status, err := h.processor.Status(r.Context(), session.VideoURL)
	if err != nil {
		slog.Warn("failed to read processing status", "video_url", session.VideoURL, "error", err)
		return true
	}
	return status.Status == models.ProcessingCompleted
}
