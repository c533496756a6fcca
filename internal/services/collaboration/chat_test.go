package collaboration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"watchparty/internal/models"
	"watchparty/internal/services"
	"watchparty/internal/testutil"
	"watchparty/internal/workerpool"
)

func videoSession() *models.Session {
	return &models.Session{
		Name:           "Film club",
		VideoURL:       "https://example.com/film.mp4",
		IsMaster:       true,
		VideoProcessed: true,
	}
}

func sendChat(t *testing.T, h *harness, c *Client, p SendMessagePayload) {
	t.Helper()
	if err := h.sm.HandleIncoming(context.Background(), c, p); err != nil {
		t.Fatalf("HandleIncoming(%q): %v", p.Message, err)
	}
}

func nextMessage(t *testing.T, c *Client) *models.ChatMessage {
	t.Helper()
	var msg models.ChatMessage
	nextEvent(t, c, EventNewMessage).decode(t, &msg)
	return &msg
}

func TestHandleIncoming_Rejections(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	outsider := h.client()
	if err := h.sm.HandleIncoming(context.Background(), outsider, SendMessagePayload{Message: "hi"}); !errors.Is(err, ErrNotJoined) {
		t.Errorf("not joined: err = %v", err)
	}

	c := h.client()
	h.join(t, c, s.ID, false)
	if err := h.sm.HandleIncoming(context.Background(), c, SendMessagePayload{Message: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank: err = %v", err)
	}

	if h.store.AppendCalls != 0 {
		t.Errorf("rejected messages were persisted")
	}
}

func TestHandleIncoming_PersistFailure(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	c := h.client()
	h.join(t, c, s.ID, false)

	h.store.AppendErr = errors.New("disk full")
	if err := h.sm.HandleIncoming(context.Background(), c, SendMessagePayload{Message: "hello"}); err == nil {
		t.Fatal("expected error")
	}
	if n := countEvents(collect(c), EventNewMessage); n != 0 {
		t.Error("unpersisted message was broadcast")
	}
}

func TestHandleIncoming_PlainMessage(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	a := h.client()
	h.join(t, a, s.ID, true)
	b := h.client()
	h.join(t, b, s.ID, false)

	sendChat(t, h, b, SendMessagePayload{Message: "  hello everyone "})

	for _, c := range []*Client{a, b} {
		msg := nextMessage(t, c)
		if msg.Body != "hello everyone" || msg.Type != models.MessageTypeUser || msg.IsAIDirected {
			t.Errorf("new_message = %+v", msg)
		}
		if msg.Seq != 1 || msg.ID == "" {
			t.Errorf("message not persisted before broadcast: %+v", msg)
		}
	}

	if len(h.answerer.Requests) != 0 {
		t.Error("plain message reached the assistant")
	}
	if h.store.TouchCalls != 1 {
		t.Errorf("TouchParticipant calls = %d, want 1", h.store.TouchCalls)
	}
}

func TestHandleIncoming_BroadcastOrderMatchesHistory(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	clients := []*Client{h.client(), h.client(), h.client()}
	for _, c := range clients {
		h.join(t, c, s.ID, false)
	}
	for _, c := range clients {
		collect(c)
	}

	const perClient = 20
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *Client) {
			defer wg.Done()
			for j := 0; j < perClient; j++ {
				if err := h.sm.HandleIncoming(context.Background(), c, SendMessagePayload{Message: fmt.Sprintf("c%d-%d", i, j)}); err != nil {
					t.Error(err)
				}
			}
		}(i, c)
	}
	wg.Wait()

	persisted, _ := h.store.ListMessages(context.Background(), s.ID, 0)
	if len(persisted) != len(clients)*perClient {
		t.Fatalf("persisted %d messages, want %d", len(persisted), len(clients)*perClient)
	}

	for ci, c := range clients {
		for i, want := range persisted {
			got := nextMessage(t, c)
			if got.ID != want.ID {
				t.Fatalf("client %d message %d = %s, want %s", ci, i, got.ID, want.ID)
			}
		}
	}
}

func TestHandleIncoming_AIQuestion(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, videoSession())

	a := h.client()
	h.join(t, a, s.ID, true)
	b := h.client()
	h.join(t, b, s.ID, false)

	sendChat(t, h, b, SendMessagePayload{
		Message:        "@assistant what just happened?",
		VideoTimestamp: 42,
		QueryMode:      models.QueryTemporal,
	})

	for _, c := range []*Client{a, b} {
		question := nextMessage(t, c)
		if !question.IsAIDirected || question.Type != models.MessageTypeUser {
			t.Fatalf("question = %+v", question)
		}

		reply := nextMessage(t, c)
		if reply.Type != models.MessageTypeAI || reply.UserID != models.AIUserID {
			t.Fatalf("reply = %+v", reply)
		}
		if reply.Body != "It was a plot twist." {
			t.Errorf("reply body = %q", reply.Body)
		}
		if reply.ReplyToMessageID == nil || *reply.ReplyToMessageID != question.ID {
			t.Errorf("reply_to_message_id = %v, want %s", reply.ReplyToMessageID, question.ID)
		}
		if reply.DisplayName != "AI Assistant" {
			t.Errorf("reply display name = %q", reply.DisplayName)
		}
		if reply.ReplyPreview != "what just happened?" {
			t.Errorf("reply preview = %q", reply.ReplyPreview)
		}
	}

	req, ok := h.answerer.LastRequest()
	if !ok {
		t.Fatal("assistant was not asked")
	}
	if req.Question != "what just happened?" {
		t.Errorf("question = %q", req.Question)
	}
	want := models.TimeWindow{Mode: models.QueryTemporal, Start: 0, End: 42}
	if req.Window != want {
		t.Errorf("window = %+v, want %+v", req.Window, want)
	}
	if req.SessionID != s.ID || req.VideoTimestamp != 42 {
		t.Errorf("request = %+v", req)
	}

	if got := h.store.MessageCount(s.ID); got != 2 {
		t.Errorf("persisted %d messages, want 2", got)
	}
}

func TestHandleIncoming_AIDoesNotBlockChat(t *testing.T) {
	h := newHarness(t)
	h.answerer.Gate = make(chan struct{})
	s := h.session(t, videoSession())

	a := h.client()
	h.join(t, a, s.ID, true)
	b := h.client()
	h.join(t, b, s.ID, false)

	sendChat(t, h, a, SendMessagePayload{Message: "hey assistant, who is that"})
	sendChat(t, h, b, SendMessagePayload{Message: "no idea"})

	for _, c := range []*Client{a, b} {
		if got := nextMessage(t, c).Body; got != "hey assistant, who is that" {
			t.Fatalf("first message = %q", got)
		}
		if got := nextMessage(t, c).Body; got != "no idea" {
			t.Fatalf("chat stalled behind the assistant, got %q", got)
		}
	}

	close(h.answerer.Gate)

	for _, c := range []*Client{a, b} {
		if reply := nextMessage(t, c); reply.Type != models.MessageTypeAI {
			t.Fatalf("expected ai reply, got %+v", reply)
		}
	}

	history, _ := h.store.ListMessages(context.Background(), s.ID, 0)
	if len(history) != 3 || history[2].Type != models.MessageTypeAI || history[1].Body != "no idea" {
		t.Fatalf("history order wrong: %+v", history)
	}
}

func TestHandleIncoming_AIFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		session *models.Session
		setup   func(h *harness)
		want    string
	}{
		{
			name:    "no video",
			session: &models.Session{Name: "no video", IsMaster: true},
			want:    fmt.Sprintf(replyNoVideo, "what is this"),
		},
		{
			name:    "assistant error",
			session: videoSession(),
			setup:   func(h *harness) { h.answerer.Err = errors.New("model overloaded") },
			want:    replyFailed,
		},
		{
			name:    "no indexed context",
			session: videoSession(),
			setup:   func(h *harness) { h.answerer.Err = services.ErrVideoNotReady },
			want:    fmt.Sprintf(replyNoVideo, "what is this"),
		},
		{
			name:    "still processing",
			session: &models.Session{Name: "p", IsMaster: true, VideoURL: "https://example.com/p.mp4"},
			setup: func(h *harness) {
				h.statuses.Set("https://example.com/p.mp4", models.ProcessingRunning, 40)
			},
			want: fmt.Sprintf(replyProcessing, 40),
		},
		{
			name:    "processing failed",
			session: &models.Session{Name: "f", IsMaster: true, VideoURL: "https://example.com/f.mp4"},
			setup: func(h *harness) {
				h.statuses.Set("https://example.com/f.mp4", models.ProcessingFailed, 10)
			},
			want: replyProcessFail,
		},
		{
			name:    "never processed",
			session: &models.Session{Name: "n", IsMaster: true, VideoURL: "https://example.com/n.mp4"},
			want:    replyNotProcessed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			s := h.session(t, tt.session)

			c := h.client()
			h.join(t, c, s.ID, false)
			sendChat(t, h, c, SendMessagePayload{Message: "@assistant what is this"})

			nextMessage(t, c)
			reply := nextMessage(t, c)
			if reply.Type != models.MessageTypeAI {
				t.Fatalf("expected ai reply, got %+v", reply)
			}
			if reply.Body != tt.want {
				t.Errorf("reply = %q, want %q", reply.Body, tt.want)
			}
		})
	}
}

func TestPostReply_PersistFailureStillAnswers(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, videoSession())
	h.store.AppendFilter = func(msg *models.ChatMessage) error {
		if msg.Type == models.MessageTypeAI {
			return errors.New("db down")
		}
		return nil
	}

	c := h.client()
	h.join(t, c, s.ID, false)
	sendChat(t, h, c, SendMessagePayload{Message: "@assistant what happened?"})

	question := nextMessage(t, c)
	reply := nextMessage(t, c)
	if reply.Type != models.MessageTypeAI || reply.Body != replyFailed {
		t.Fatalf("reply = %+v, want failure text", reply)
	}
	if reply.ID == "" || reply.ReplyToMessageID == nil || *reply.ReplyToMessageID != question.ID {
		t.Errorf("reply not linked to question: %+v", reply)
	}
	if n := h.store.MessageCount(s.ID); n != 1 {
		t.Errorf("stored messages = %d, want only the question", n)
	}
}

func TestHandleIncoming_AIQueueFull(t *testing.T) {
	store := testutil.NewMockStore()
	// never started and unbuffered: every submit is rejected
	pool := workerpool.New("ai-full", 1, 0)
	sm := NewSessionManager(store, &testutil.FakeAnswerer{Response: "unused"}, nil, pool, Options{})
	t.Cleanup(sm.Shutdown)

	s := store.AddSession(videoSession())
	c := sm.Attach(nil)
	if err := sm.Join(context.Background(), c, JoinSessionPayload{SessionID: s.ID}); err != nil {
		t.Fatal(err)
	}
	if err := sm.HandleIncoming(context.Background(), c, SendMessagePayload{Message: "@assistant are you there"}); err != nil {
		t.Fatal(err)
	}

	nextMessage(t, c)
	reply := nextMessage(t, c)
	if reply.Body != replyBusy {
		t.Errorf("reply = %q, want busy text", reply.Body)
	}
}

func TestPostReply_RoomGone(t *testing.T) {
	h := newHarness(t)
	h.answerer.Gate = make(chan struct{})
	s := h.session(t, videoSession())

	c := h.client()
	h.join(t, c, s.ID, false)
	sendChat(t, h, c, SendMessagePayload{Message: "@assistant summarize please"})
	nextMessage(t, c)

	h.sm.Leave(context.Background(), c)
	close(h.answerer.Gate)

	// the reply is still stored once the job finishes
	waitFor(t, func() bool { return h.store.MessageCount(s.ID) == 2 })
}

func TestAskQuestion_AlwaysReachesAssistant(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, videoSession())

	c := h.client()
	h.join(t, c, s.ID, false)

	if err := h.sm.AskQuestion(context.Background(), c, AskQuestionPayload{
		Question:       "  why is the sky orange  ",
		VideoTimestamp: 12,
		QueryMode:      models.QueryTemporal,
	}); err != nil {
		t.Fatal(err)
	}

	question := nextMessage(t, c)
	if !question.IsAIDirected || question.Body != "why is the sky orange" {
		t.Errorf("question = %+v", question)
	}
	reply := nextMessage(t, c)
	if reply.Type != models.MessageTypeAI || *reply.ReplyToMessageID != question.ID {
		t.Errorf("reply = %+v", reply)
	}

	req, _ := h.answerer.LastRequest()
	if req.Question != "why is the sky orange" || req.Window.End != 12 {
		t.Errorf("answer request = %+v", req)
	}
}

func TestPostMessage_BroadcastsToMembers(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	c := h.client()
	h.join(t, c, s.ID, false)
	sendChat(t, h, c, SendMessagePayload{Message: "first"})
	nextMessage(t, c)

	if err := h.sm.PostMessage(context.Background(), &models.ChatMessage{
		SessionID: s.ID, UserID: "anonymous", Body: "from outside", Type: models.MessageTypeUser,
	}); err != nil {
		t.Fatal(err)
	}

	msg := nextMessage(t, c)
	if msg.Body != "from outside" || msg.Seq != 2 {
		t.Errorf("posted message = %+v", msg)
	}

	// a session nobody is connected to is still written
	empty := h.session(t, nil)
	if err := h.sm.PostMessage(context.Background(), &models.ChatMessage{
		SessionID: empty.ID, UserID: "anonymous", Body: "hello?", Type: models.MessageTypeUser,
	}); err != nil {
		t.Fatal(err)
	}
	if n := h.store.MessageCount(empty.ID); n != 1 {
		t.Errorf("stored %d messages, want 1", n)
	}
}

func TestAsk_Synchronous(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, videoSession())

	c := h.client()
	h.join(t, c, s.ID, false)

	req := models.AnswerRequest{Question: "who is the villain?", SessionID: s.ID, UserID: "rest-user"}
	question, reply, err := h.sm.Ask(context.Background(), req, "Visitor")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Body != "It was a plot twist." || *reply.ReplyToMessageID != question.ID {
		t.Errorf("reply = %+v", reply)
	}
	if got := nextMessage(t, c); got.ID != question.ID || !got.IsAIDirected || got.DisplayName != "Visitor" {
		t.Errorf("broadcast question = %+v", got)
	}
	if got := nextMessage(t, c); got.ID != reply.ID {
		t.Errorf("broadcast reply = %+v", got)
	}

	h.answerer.Err = errors.New("offline")
	if _, _, err := h.sm.Ask(context.Background(), req, ""); err == nil {
		t.Fatal("expected assistant error")
	}
	if n := h.store.MessageCount(s.ID); n != 2 {
		t.Errorf("failed ask stored messages: count = %d", n)
	}
}
