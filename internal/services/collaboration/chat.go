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
	"watchparty/internal/services"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

// persistTimeout bounds the write of an assistant reply, which may happen
// after the request context is gone.
const persistTimeout = 10 * time.Second

const (
	replyFailed       = "Sorry, I could not process your question right now. Please try again in a moment."
	replyBusy         = "Sorry, I'm answering too many questions right now. Please ask again in a moment."
	replyNoVideo      = "I received your question: %q. I need a video to give detailed answers, so attach one to this session and ask again."
	replyProcessing   = "I'm still analysing this video (%d%% done). Ask me again once processing has finished!"
	replyNotProcessed = "This video hasn't been processed yet, so I can't see what's in it. Start processing and ask me again."
	replyProcessFail  = "Processing this video failed, so I can't answer questions about it yet."
)

// HandleIncoming persists one chat message and broadcasts it to the session.
// Persist and broadcast happen under the session lock, so every member sees
// messages in the order they were stored. AI-directed messages additionally
// queue an answer job that runs without the lock.
func (sm *SessionManager) HandleIncoming(ctx context.Context, c *Client, p SendMessagePayload) error {
	body := strings.TrimSpace(p.Message)
	if body == "" {
		return ErrEmptyMessage
	}
	return sm.handleChat(ctx, c, body, sm.classifier.IsAIDirected(body), p)
}

// AskQuestion is the explicit form of an AI-directed chat message: the body
// goes to the assistant whether or not it names it.
func (sm *SessionManager) AskQuestion(ctx context.Context, c *Client, p AskQuestionPayload) error {
	body := strings.TrimSpace(p.Question)
	if body == "" {
		return ErrEmptyQuestion
	}
	return sm.handleChat(ctx, c, body, true, SendMessagePayload{
		Message:        body,
		VideoTimestamp: p.VideoTimestamp,
		QueryMode:      p.QueryMode,
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
	})
}

func (sm *SessionManager) handleChat(ctx context.Context, c *Client, body string, directed bool, p SendMessagePayload) error {
	rm, member, err := sm.registry.lockMember(c)
	if err != nil {
		return err
	}

	msg := &models.ChatMessage{
		SessionID:    member.SessionID,
		UserID:       member.UserID,
		DisplayName:  member.DisplayName,
		Body:         body,
		Type:         models.MessageTypeUser,
		IsAIDirected: directed,
	}

	if err := sm.store.AppendMessage(ctx, msg); err != nil {
		rm.mu.Unlock()
		return fmt.Errorf("persist message: %w", err)
	}
	rm.broadcast(encode(EventNewMessage, msg), nil)
	session := rm.session
	rm.mu.Unlock()

	if err := sm.store.TouchParticipant(ctx, member.SessionID, member.UserID); err != nil {
		slog.Warn("failed to refresh last_seen", "session_id", member.SessionID, "user_id", member.UserID, "error", err)
	}

	if directed {
		question := body
		if sm.classifier.IsAIDirected(body) {
			question = sm.classifier.ExtractQuestion(body)
		}
		req := models.AnswerRequest{
			Question:       question,
			SessionID:      member.SessionID,
			UserID:         member.UserID,
			VideoTimestamp: p.VideoTimestamp,
			Window:         models.NewTimeWindow(p.QueryMode, p.VideoTimestamp, p.StartTime, p.EndTime),
		}
		sm.dispatchAnswer(ctx, session, msg, req)
	}

	return nil
}

// PostMessage stores a message that did not arrive on a connection and
// broadcasts it to the session's members, if any, in store order.
func (sm *SessionManager) PostMessage(ctx context.Context, msg *models.ChatMessage) error {
	rm := sm.registry.lockRoom(msg.SessionID, false)
	if rm != nil {
		defer rm.mu.Unlock()
	}

	if err := sm.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if rm != nil {
		rm.broadcast(encode(EventNewMessage, msg), nil)
	}
	return nil
}

// Ask answers a question synchronously for callers without a connection.
// Nothing is stored unless the assistant answers; then the question and the
// linked reply are posted like chat.
func (sm *SessionManager) Ask(ctx context.Context, req models.AnswerRequest, displayName string) (question, reply *models.ChatMessage, err error) {
	actx, cancel := context.WithTimeout(ctx, sm.opts.AITimeout)
	answer, err := sm.answerer.Answer(actx, req)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	question = &models.ChatMessage{
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		DisplayName:  displayName,
		Body:         req.Question,
		Type:         models.MessageTypeUser,
		IsAIDirected: true,
	}
	if err := sm.PostMessage(ctx, question); err != nil {
		return nil, nil, err
	}

	reply = sm.aiReply(question, req.Question, answer)
	if err := sm.PostMessage(ctx, reply); err != nil {
		return question, nil, err
	}
	return question, reply, nil
}

// dispatchAnswer hands the AI call to the worker pool. If the pool cannot
// take it the user still gets a reply.
func (sm *SessionManager) dispatchAnswer(ctx context.Context, session *models.Session, question *models.ChatMessage, req models.AnswerRequest) {
	middleware.AddSpanEvent(ctx, "ai_question_queued",
		attribute.String("message.id", question.ID),
		attribute.String("query.window", req.Window.String()),
	)

	err := sm.aiPool.Submit(func(jobCtx context.Context) {
		answer := sm.resolveAnswer(jobCtx, session, req)
		sm.postReply(question, req.Question, answer)
	})
	if err != nil {
		slog.Warn("ai queue rejected question", "session_id", req.SessionID, "message_id", question.ID, "error", err)
		sm.postReply(question, req.Question, replyBusy)
	}
}

// resolveAnswer never fails: collaborator errors become fallback text.
func (sm *SessionManager) resolveAnswer(ctx context.Context, session *models.Session, req models.AnswerRequest) string {
	if session == nil || !session.HasVideo() {
		return fmt.Sprintf(replyNoVideo, req.Question)
	}

	if !session.VideoProcessed && sm.statuses != nil {
		status, err := sm.statuses.Status(ctx, session.VideoURL)
		switch {
		case err != nil:
			slog.Warn("could not read processing status", "video_url", session.VideoURL, "error", err)
		case status.Status == models.ProcessingPending, status.Status == models.ProcessingRunning:
			return fmt.Sprintf(replyProcessing, status.Progress)
		case status.Status == models.ProcessingFailed:
			return replyProcessFail
		case status.Status != models.ProcessingCompleted:
			return replyNotProcessed
		}
	}

	ctx, cancel := context.WithTimeout(ctx, sm.opts.AITimeout)
	defer cancel()

	start := time.Now()
	answer, err := sm.answerer.Answer(ctx, req)
	if err != nil {
		slog.Error("assistant failed",
			"session_id", req.SessionID,
			"user_id", req.UserID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		if errors.Is(err, services.ErrVideoNotReady) {
			return fmt.Sprintf(replyNoVideo, req.Question)
		}
		return replyFailed
	}

	slog.Info("assistant answered",
		"session_id", req.SessionID,
		"window", req.Window.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return answer
}

// postReply stores the assistant message and broadcasts it if the session
// still has members. Late answers are delivered like any other. If the store
// rejects the reply, an unsaved failure message is broadcast instead.
func (sm *SessionManager) postReply(question *models.ChatMessage, questionText, answer string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	reply := sm.aiReply(question, questionText, answer)

	rm := sm.registry.lockRoom(question.SessionID, false)
	if rm != nil {
		defer rm.mu.Unlock()
	}

	if err := sm.store.AppendMessage(ctx, reply); err != nil {
		slog.Error("failed to persist ai reply", "session_id", question.SessionID, "reply_to", question.ID, "error", err)
		// the asker still gets a bubble; it is not part of stored history
		reply.ID = ksuid.New().String()
		reply.Body = replyFailed
		reply.CreatedAt = time.Now().UTC()
	}
	if rm != nil {
		rm.broadcast(encode(EventNewMessage, reply), nil)
	}
}

func (sm *SessionManager) aiReply(question *models.ChatMessage, questionText, answer string) *models.ChatMessage {
	replyTo := question.ID
	return &models.ChatMessage{
		SessionID:        question.SessionID,
		UserID:           models.AIUserID,
		DisplayName:      sm.opts.AssistantName,
		Body:             answer,
		Type:             models.MessageTypeAI,
		ReplyToMessageID: &replyTo,
		ReplyPreview:     services.ReplyPreview(questionText),
	}
}
