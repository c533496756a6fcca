package collaboration

import (
	"context"
	"testing"
	"time"
)

func TestDispatch_Errors(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"not json", `hello`, "Invalid message format"},
		{"missing event", `{"data":{}}`, "Invalid message format"},
		{"unknown event", `{"event":"dance"}`, `Unknown event "dance"`},
		{"unknown session", `{"event":"join_session","data":{"session_id":"nope"}}`, "Session not found"},
		{"bad payload", `{"event":"send_message","data":"oops"}`, "Invalid payload for send_message"},
		{"not joined", `{"event":"send_message","data":{"message":"hi"}}`, "User not in any session"},
		{"empty question", `{"event":"ask_question","data":{"question":"  "}}`, "Question cannot be empty"},
		{"question before joining", `{"event":"ask_question","data":{"question":"why?"}}`, "User not in any session"},
		{"time update before joining", `{"event":"video_time_update","data":{"video_time":5}}`, "User not in any session"},
		{"time request before joining", `{"event":"request_current_time","data":{"session_id":"` + s.ID + `"}}`, "User not in any session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := h.client()
			h.sm.Dispatch(context.Background(), c, []byte(tt.frame))

			var payload ErrorPayload
			nextEvent(t, c, EventError).decode(t, &payload)
			if payload.Message != tt.want {
				t.Errorf("error = %q, want %q", payload.Message, tt.want)
			}
		})
	}
}

func TestDispatch_RoutesEvents(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	a := h.client()
	h.sm.Dispatch(context.Background(), a, []byte(`{"event":"join_session","data":{"session_id":"`+s.ID+`","is_master":true,"display_name":"Host"}}`))
	var confirmed JoinConfirmed
	nextEvent(t, a, EventJoinConfirmed).decode(t, &confirmed)
	if !confirmed.IsMaster || confirmed.DisplayName != "Host" {
		t.Fatalf("join_confirmed = %+v", confirmed)
	}

	b := h.client()
	h.sm.Dispatch(context.Background(), b, []byte(`{"event":"join_session","data":{"session_id":"`+s.ID+`"}}`))
	nextEvent(t, b, EventJoinConfirmed)

	h.sm.Dispatch(context.Background(), b, []byte(`{"event":"send_current_time","data":{"requester_id":"x","video_time":3}}`))
	var payload ErrorPayload
	nextEvent(t, b, EventError).decode(t, &payload)
	if payload.Message != "Only master can send time updates" {
		t.Errorf("error = %q", payload.Message)
	}

	h.sm.Dispatch(context.Background(), a, []byte(`{"event":"video_time_update","data":{"session_id":"`+s.ID+`","video_time":8}}`))
	var st SyncVideoTime
	nextEvent(t, b, EventSyncVideoTime).decode(t, &st)
	if st.VideoTime != 8 {
		t.Errorf("video_time = %v, want 8", st.VideoTime)
	}

	h.sm.Dispatch(context.Background(), b, []byte(`{"event":"request_current_time","data":{}}`))
	nextEvent(t, a, EventTimeRequested)

	h.sm.Dispatch(context.Background(), b, []byte(`{"event":"send_message","data":{"message":"hi all"}}`))
	if msg := nextMessage(t, a); msg.Body != "hi all" {
		t.Errorf("message = %q", msg.Body)
	}

	b2 := h.client()
	h.join(t, b2, s.ID, false)
	h.sm.Leave(context.Background(), a)
	h.sm.Dispatch(context.Background(), b2, []byte(`{"event":"request_current_time"}`))
	nextEvent(t, b2, EventError).decode(t, &payload)
	if payload.Message != "No master found for this session" {
		t.Errorf("error = %q", payload.Message)
	}
}

func TestReapIdle(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	idle := h.client()
	h.join(t, idle, s.ID, false)
	idle.lastActive.Store(time.Now().Add(-time.Hour).UnixNano())
	active := h.client()

	if n := h.sm.reapIdle(time.Now()); n != 1 {
		t.Fatalf("reaped %d clients, want 1", n)
	}

	if !isClosed(idle) {
		t.Fatal("idle client should be closed")
	}
	if isClosed(active) {
		t.Fatal("active client was closed")
	}
}

func TestClient_SlowConsumerIsDisconnected(t *testing.T) {
	h := newHarness(t)
	c := h.client()

	for i := 0; i < sendBufferSize; i++ {
		if !c.enqueue([]byte(`{}`)) {
			t.Fatalf("enqueue %d failed before the buffer was full", i)
		}
	}
	if c.enqueue([]byte(`{}`)) {
		t.Fatal("enqueue on a full buffer should fail")
	}
	if c.enqueue([]byte(`{}`)) {
		t.Fatal("enqueue after close should fail")
	}

	n := 0
	for range c.Send {
		n++
	}
	if n != sendBufferSize {
		t.Errorf("drained %d frames, want %d", n, sendBufferSize)
	}
}

func TestShutdown_ClosesClients(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	c := h.client()
	h.join(t, c, s.ID, true)
	h.sm.Start()

	h.sm.Shutdown()

	if !isClosed(c) {
		t.Fatal("client should be closed on shutdown")
	}
	// cleanup calls Shutdown again
}

func isClosed(c *Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
