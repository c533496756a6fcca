package collaboration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"watchparty/internal/models"
)

func TestJoin_MasterThenParticipant(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	a := h.client()
	confirmedA := h.join(t, a, s.ID, true)
	if !confirmedA.IsMaster {
		t.Fatal("first master join should be master")
	}
	if confirmedA.Session == nil || confirmedA.Session.ID != s.ID {
		t.Fatalf("join_confirmed session = %+v", confirmedA.Session)
	}

	b := h.client()
	confirmedB := h.join(t, b, s.ID, false)
	if confirmedB.IsMaster {
		t.Fatal("participant join should not be master")
	}
	if confirmedB.DisplayName == "" {
		t.Fatal("display name should be generated")
	}

	var joined PresenceNotice
	nextEvent(t, a, EventUserJoined).decode(t, &joined)
	if joined.UserID != confirmedB.UserID {
		t.Errorf("user_joined user = %s, want %s", joined.UserID, confirmedB.UserID)
	}

	var roster []RosterEntry
	nextEvent(t, a, EventSessionUsers).decode(t, &roster)
	if len(roster) != 2 {
		t.Fatalf("roster has %d entries, want 2", len(roster))
	}
	if roster[0].UserID != confirmedA.UserID || !roster[0].IsMaster {
		t.Errorf("roster[0] = %+v, want master %s first", roster[0], confirmedA.UserID)
	}

	var req TimeRequested
	nextEvent(t, a, EventTimeRequested).decode(t, &req)
	if req.RequesterID != confirmedB.UserID || req.SessionID != s.ID {
		t.Fatalf("time_requested = %+v", req)
	}

	if err := h.sm.SendCurrentTime(a, req.RequesterID, 42); err != nil {
		t.Fatalf("SendCurrentTime: %v", err)
	}

	var st SyncVideoTime
	nextEvent(t, b, EventSyncVideoTime).decode(t, &st)
	if st.VideoTime != 42 {
		t.Errorf("video_time = %v, want 42", st.VideoTime)
	}
	if st.Timestamp <= 0 {
		t.Error("timestamp should be set")
	}

	if n := countEvents(collect(a), EventSyncVideoTime); n != 0 {
		t.Errorf("master received %d sync_video_time frames", n)
	}

	if state, at := h.sm.Registry().Playback(s.ID); state != PlaybackTracking || at != 42 {
		t.Errorf("playback = %s@%v, want tracking@42", state, at)
	}
	if got := h.store.ParticipantCount(s.ID); got != 2 {
		t.Errorf("persisted participants = %d, want 2", got)
	}
}

func TestJoin_SendsHistory(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	for _, body := range []string{"first", "second"} {
		h.store.AppendMessage(context.Background(), &models.ChatMessage{
			SessionID: s.ID, UserID: "u", Body: body, Type: models.MessageTypeUser,
		})
	}

	c := h.client()
	if err := h.sm.Join(context.Background(), c, JoinSessionPayload{SessionID: s.ID}); err != nil {
		t.Fatal(err)
	}

	var history []*models.ChatMessage
	nextEvent(t, c, EventChatHistory).decode(t, &history)
	if len(history) != 2 || history[0].Body != "first" || history[1].Body != "second" {
		t.Fatalf("history = %+v", history)
	}
}

func TestJoin_EmptyHistoryIsArray(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	c := h.client()
	if err := h.sm.Join(context.Background(), c, JoinSessionPayload{SessionID: s.ID}); err != nil {
		t.Fatal(err)
	}

	f := nextEvent(t, c, EventChatHistory)
	if string(f.Data) != "[]" {
		t.Errorf("chat_history data = %s, want []", f.Data)
	}
}

func TestJoin_KeepsRequestedDisplayName(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	c := h.client()
	if err := h.sm.Join(context.Background(), c, JoinSessionPayload{SessionID: s.ID, DisplayName: "  Ana "}); err != nil {
		t.Fatal(err)
	}

	var confirmed JoinConfirmed
	nextEvent(t, c, EventJoinConfirmed).decode(t, &confirmed)
	if confirmed.DisplayName != "Ana" {
		t.Errorf("display name = %q, want Ana", confirmed.DisplayName)
	}
}

func TestJoin_UnknownSession(t *testing.T) {
	h := newHarness(t)
	c := h.client()

	err := h.sm.Join(context.Background(), c, JoinSessionPayload{SessionID: "missing"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	err = h.sm.Join(context.Background(), c, JoinSessionPayload{SessionID: "  "})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("empty id err = %v, want ErrSessionNotFound", err)
	}

	if h.store.UpsertCalls != 0 {
		t.Error("failed join should not persist a participant")
	}
}

func TestJoin_SecondMasterIsDemoted(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	a := h.client()
	h.join(t, a, s.ID, true)

	b := h.client()
	if h.join(t, b, s.ID, true).IsMaster {
		t.Fatal("second master request should join as participant")
	}
	if h.sm.Registry().MasterFor(s.ID) != a {
		t.Fatal("master should still be the first client")
	}
}

func TestJoin_SessionWithoutMaster(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, &models.Session{Name: "free for all", IsMaster: false})

	c := h.client()
	if h.join(t, c, s.ID, true).IsMaster {
		t.Fatal("session without master mode should never grant master")
	}
	if h.sm.Registry().MasterFor(s.ID) != nil {
		t.Fatal("no master expected")
	}
}

func TestJoin_ConcurrentMasterRequests(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	const n = 20
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = h.client()
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if err := h.sm.Join(context.Background(), c, JoinSessionPayload{SessionID: s.ID, IsMaster: true}); err != nil {
				t.Error(err)
			}
		}(c)
	}
	wg.Wait()

	masters := 0
	for _, e := range h.sm.Registry().Roster(s.ID) {
		if e.IsMaster {
			masters++
		}
	}
	if masters != 1 {
		t.Fatalf("roster has %d masters, want 1", masters)
	}
	if h.sm.Registry().UserCount(s.ID) != n {
		t.Fatalf("user count = %d, want %d", h.sm.Registry().UserCount(s.ID), n)
	}
}

func TestJoin_SwitchingSessionsLeavesTheOld(t *testing.T) {
	h := newHarness(t)
	first := h.session(t, nil)
	second := h.session(t, nil)

	a := h.client()
	h.join(t, a, first.ID, false)
	b := h.client()
	h.join(t, b, first.ID, false)

	h.join(t, b, second.ID, false)

	if got := h.sm.Registry().UserCount(first.ID); got != 1 {
		t.Errorf("first session users = %d, want 1", got)
	}
	if got := h.sm.Registry().UserCount(second.ID); got != 1 {
		t.Errorf("second session users = %d, want 1", got)
	}
	nextEvent(t, a, EventUserLeft)
}

func TestLeave_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	a := h.client()
	h.join(t, a, s.ID, true)
	b := h.client()
	h.join(t, b, s.ID, false)
	collect(a)

	h.sm.Leave(context.Background(), b)
	h.sm.Leave(context.Background(), b)

	frames := collect(a)
	if n := countEvents(frames, EventUserLeft); n != 1 {
		t.Errorf("user_left sent %d times, want 1", n)
	}
	if n := countEvents(frames, EventSessionUsers); n != 1 {
		t.Errorf("session_users sent %d times, want 1", n)
	}
	if n := countEvents(frames, EventMasterDisconnected); n != 0 {
		t.Errorf("participant leave sent master_disconnected")
	}
	if h.store.RemoveCalls != 1 {
		t.Errorf("RemoveParticipant called %d times, want 1", h.store.RemoveCalls)
	}

	// never joined
	h.sm.Leave(context.Background(), h.client())
}

func TestLeave_MasterDisconnect(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	a := h.client()
	h.join(t, a, s.ID, true)
	b := h.client()
	h.join(t, b, s.ID, false)

	if err := h.sm.ReportTime(a, 30); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, b, EventSyncVideoTime)

	h.sm.Leave(context.Background(), a)

	nextEvent(t, b, EventMasterDisconnected)
	var left PresenceNotice
	nextEvent(t, b, EventUserLeft).decode(t, &left)
	if !left.IsMaster {
		t.Error("user_left should report the leaver was master")
	}

	if err := h.sm.RequestCurrentTime(b); !errors.Is(err, ErrNoMaster) {
		t.Fatalf("RequestCurrentTime err = %v, want ErrNoMaster", err)
	}
	if state, _ := h.sm.Registry().Playback(s.ID); state != PlaybackUninitialized {
		t.Errorf("playback state = %s, want uninitialized", state)
	}

	// remaining participants are not promoted
	c := h.client()
	if !h.join(t, c, s.ID, true).IsMaster {
		t.Fatal("a new master should be able to claim the free slot")
	}
}

func TestLeave_LastMemberRetiresRoom(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, nil)

	c := h.client()
	h.join(t, c, s.ID, true)
	h.sm.Leave(context.Background(), c)

	if h.sm.Registry().UserCount(s.ID) != 0 {
		t.Fatal("room should be empty")
	}
	h.sm.registry.mu.Lock()
	_, live := h.sm.registry.rooms[s.ID]
	h.sm.registry.mu.Unlock()
	if live {
		t.Fatal("empty room should be retired")
	}

	// rejoining creates a fresh room with a free master slot
	if !h.join(t, h.client(), s.ID, true).IsMaster {
		t.Fatal("rejoin should get master")
	}
}
