package collaboration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"watchparty/internal/middleware"
	"watchparty/internal/models"
	"watchparty/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Join adds c to a session. The joiner gets join_confirmed and the chat
// history; everyone gets user_joined and the full roster. A participant's
// join also asks the master for the current playback time.
//
// A connection that is already in a session leaves it first.
func (sm *SessionManager) Join(ctx context.Context, c *Client, p JoinSessionPayload) error {
	sessionID := strings.TrimSpace(p.SessionID)
	if sessionID == "" {
		return fmt.Errorf("empty session id: %w", ErrSessionNotFound)
	}

	session, err := sm.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("join %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if _, joined := sm.registry.binding(c); joined {
		sm.Leave(ctx, c)
	}

	rm := sm.registry.lockRoom(sessionID, true)
	defer rm.mu.Unlock()

	// the watcher may have seen completion before the stored row did
	if rm.session != nil && rm.session.VideoProcessed && rm.session.VideoURL == session.VideoURL {
		session.VideoProcessed = true
	}
	rm.session = session
	member := sm.registry.register(rm, c, strings.TrimSpace(p.DisplayName), p.IsMaster)

	middleware.AddSpanEvent(ctx, "session_joined",
		attribute.String("session.id", sessionID),
		attribute.String("user.id", member.UserID),
		attribute.String("role", string(member.Role)),
	)
	slog.Info("user joined session",
		"session_id", sessionID,
		"user_id", member.UserID,
		"role", member.Role,
		"users", len(rm.members),
	)

	if err := sm.store.UpsertParticipant(ctx, &models.Participant{
		SessionID:   sessionID,
		UserID:      member.UserID,
		DisplayName: member.DisplayName,
		Role:        member.Role,
		JoinedAt:    member.JoinedAt,
		LastSeen:    member.JoinedAt,
	}); err != nil {
		// the row is history only; the registry already has the member
		slog.Error("failed to persist participant", "session_id", sessionID, "user_id", member.UserID, "error", err)
	}

	c.enqueue(encode(EventJoinConfirmed, JoinConfirmed{
		Session:     session,
		UserID:      member.UserID,
		DisplayName: member.DisplayName,
		IsMaster:    member.IsMaster(),
	}))

	history, err := sm.store.ListMessages(ctx, sessionID, sm.opts.HistoryLimit)
	if err != nil {
		slog.Error("failed to load chat history", "session_id", sessionID, "error", err)
		history = nil
	}
	if history == nil {
		history = []*models.ChatMessage{}
	}
	c.enqueue(encode(EventChatHistory, history))

	rm.broadcast(encode(EventUserJoined, presenceNotice(member)), c)
	rm.broadcast(encode(EventSessionUsers, rm.roster()), nil)

	if !member.IsMaster() && rm.master != nil {
		rm.master.enqueue(encode(EventTimeRequested, TimeRequested{
			RequesterID: member.UserID,
			SessionID:   sessionID,
		}))
	}

	sm.watchStatusLocked(rm)

	return nil
}

// Leave removes c from its session. Calling it again, or for a connection
// that never joined, does nothing.
func (sm *SessionManager) Leave(ctx context.Context, c *Client) {
	binding, ok := sm.registry.binding(c)
	if !ok {
		return
	}

	rm := sm.registry.lockRoom(binding.SessionID, false)
	if rm == nil {
		return
	}
	defer rm.mu.Unlock()

	member, wasMaster, ok := sm.registry.unregister(rm, c)
	if !ok {
		return
	}

	slog.Info("user left session",
		"session_id", member.SessionID,
		"user_id", member.UserID,
		"was_master", wasMaster,
		"users", len(rm.members),
	)

	if err := sm.store.RemoveParticipant(ctx, member.SessionID, member.UserID); err != nil {
		slog.Error("failed to remove participant", "session_id", member.SessionID, "user_id", member.UserID, "error", err)
	}

	if len(rm.members) == 0 {
		sm.registry.retire(rm)
		return
	}

	if wasMaster {
		rm.broadcast(encode(EventMasterDisconnected, nil), nil)
	}
	rm.broadcast(encode(EventUserLeft, presenceNotice(member)), nil)
	rm.broadcast(encode(EventSessionUsers, rm.roster()), nil)
}

func presenceNotice(m *Member) PresenceNotice {
	return PresenceNotice{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		IsMaster:    m.IsMaster(),
		Timestamp:   unixSeconds(time.Now()),
	}
}
