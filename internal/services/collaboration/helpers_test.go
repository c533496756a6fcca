package collaboration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"watchparty/internal/models"
	"watchparty/internal/testutil"
	"watchparty/internal/workerpool"
)

const waitTimeout = 2 * time.Second

type harness struct {
	sm       *SessionManager
	store    *testutil.MockStore
	answerer *testutil.FakeAnswerer
	statuses *testutil.FakeStatusSource
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    testutil.NewMockStore(),
		answerer: &testutil.FakeAnswerer{Response: "It was a plot twist."},
		statuses: testutil.NewFakeStatusSource(),
	}

	pool := workerpool.New("ai-test", 2, 16)
	pool.Start()

	h.sm = NewSessionManager(h.store, h.answerer, h.statuses, pool, Options{
		Mention:            "@assistant",
		Triggers:           []string{"hey assistant", "assistant"},
		StatusPollInterval: 10 * time.Millisecond,
		AITimeout:          time.Second,
	})
	t.Cleanup(func() {
		h.sm.Shutdown()
		pool.Shutdown()
	})
	return h
}

func (h *harness) session(t *testing.T, s *models.Session) *models.Session {
	t.Helper()
	if s == nil {
		s = &models.Session{Name: "Movie night", IsMaster: true}
	}
	return h.store.AddSession(s)
}

func (h *harness) client() *Client {
	return h.sm.Attach(nil)
}

// join joins c and drains the frames the join produced for c.
func (h *harness) join(t *testing.T, c *Client, sessionID string, master bool) JoinConfirmed {
	t.Helper()
	if err := h.sm.Join(context.Background(), c, JoinSessionPayload{SessionID: sessionID, IsMaster: master}); err != nil {
		t.Fatalf("join: %v", err)
	}
	var confirmed JoinConfirmed
	nextEvent(t, c, EventJoinConfirmed).decode(t, &confirmed)
	nextEvent(t, c, EventChatHistory)
	nextEvent(t, c, EventSessionUsers)
	return confirmed
}

type frame struct {
	Event string
	Data  json.RawMessage
}

func (f frame) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s: %v", f.Event, err)
	}
}

func next(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		if !ok {
			t.Fatal("client channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		return frame{Event: env.Event, Data: env.Data}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for frame")
	}
	return frame{}
}

// nextEvent skips frames until one named event arrives.
func nextEvent(t *testing.T, c *Client, event string) frame {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				t.Fatalf("client channel closed waiting for %s", event)
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("bad frame %s: %v", raw, err)
			}
			if env.Event == event {
				return frame{Event: env.Event, Data: env.Data}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// collect drains whatever is queued for c right now.
func collect(c *Client) []frame {
	var frames []frame
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return frames
			}
			var env Envelope
			json.Unmarshal(raw, &env)
			frames = append(frames, frame{Event: env.Event, Data: env.Data})
		default:
			return frames
		}
	}
}

func countEvents(frames []frame, event string) int {
	n := 0
	for _, f := range frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

func ptr(f float64) *float64 { return &f }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
