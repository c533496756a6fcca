package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"watchparty/internal/middleware"
	"watchparty/internal/workerpool"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// Options tunes the session manager. Zero values fall back to defaults.
type Options struct {
	AssistantName      string
	Mention            string
	Triggers           []string
	HistoryLimit       int
	AITimeout          time.Duration
	StatusPollInterval time.Duration
	IdleTimeout        time.Duration
}

func (o *Options) setDefaults() {
	if o.AssistantName == "" {
		o.AssistantName = "AI Assistant"
	}
	if o.Mention == "" && len(o.Triggers) == 0 {
		o.Mention = "@assistant"
		o.Triggers = []string{"hey assistant", "assistant"}
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.AITimeout <= 0 {
		o.AITimeout = 60 * time.Second
	}
	if o.StatusPollInterval <= 0 {
		o.StatusPollInterval = 3 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
}

// SessionManager is the realtime hub. It turns inbound events into presence,
// chat and playback operations on the Registry and fans the results out.
type SessionManager struct {
	registry   *Registry
	store      Store
	answerer   Answerer
	statuses   StatusSource // optional
	aiPool     *workerpool.Pool
	classifier Classifier
	opts       Options

	// every connected client, joined or not, for the reaper and shutdown.
	// stopped is set under mu before wg.Wait; background tasks are only
	// added under mu while it is false.
	mu      sync.Mutex
	clients map[*Client]struct{}
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSessionManager(store Store, answerer Answerer, statuses StatusSource, aiPool *workerpool.Pool, opts Options) *SessionManager {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &SessionManager{
		registry:   NewRegistry(),
		store:      store,
		answerer:   answerer,
		statuses:   statuses,
		aiPool:     aiPool,
		classifier: NewClassifier(opts.Mention, opts.Triggers),
		opts:       opts,
		clients:    make(map[*Client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (sm *SessionManager) Registry() *Registry {
	return sm.registry
}

// Start launches the idle reaper.
func (sm *SessionManager) Start() {
	if !sm.goBackground(sm.reapLoop) {
		return
	}
	slog.Info("session manager started", "idle_timeout", sm.opts.IdleTimeout.String())
}

// Attach creates a client for conn and tracks it until its read pump exits.
func (sm *SessionManager) Attach(conn *websocket.Conn) *Client {
	c := NewClient(conn, sm)
	sm.mu.Lock()
	sm.clients[c] = struct{}{}
	sm.mu.Unlock()
	return c
}

func (sm *SessionManager) detach(c *Client) {
	sm.mu.Lock()
	delete(sm.clients, c)
	sm.mu.Unlock()
}

// Dispatch decodes one inbound frame and routes it. Failures are answered
// with an error event to c only.
func (sm *SessionManager) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		c.enqueue(encode(EventError, ErrorPayload{Message: "Invalid message format"}))
		return
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket."+env.Event,
		attribute.String("client.id", c.ID),
		attribute.Int("message.size", len(raw)),
	)
	defer span.End()

	err := sm.route(ctx, c, env)
	if err == nil {
		return
	}

	middleware.AddSpanError(ctx, err)
	level := slog.LevelWarn
	if !isClientError(err) {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "event failed", "event", env.Event, "client_id", c.ID, "error", err)

	c.enqueue(encode(EventError, ErrorPayload{Message: clientMessage(env.Event, err)}))
}

func (sm *SessionManager) route(ctx context.Context, c *Client, env Envelope) error {
	switch env.Event {
	case EventJoinSession:
		var p JoinSessionPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return sm.Join(ctx, c, p)

	case EventSendMessage:
		var p SendMessagePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return sm.HandleIncoming(ctx, c, p)

	case EventAskQuestion:
		var p AskQuestionPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return sm.AskQuestion(ctx, c, p)

	case EventVideoTimeUpdate:
		var p VideoTimeUpdatePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return sm.ReportTime(c, p.VideoTime)

	case EventRequestCurrentTime:
		return sm.RequestCurrentTime(c)

	case EventSendCurrentTime:
		var p SendCurrentTimePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return sm.SendCurrentTime(c, p.RequesterID, p.VideoTime)

	default:
		return errUnknownEvent
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(errBadPayload, err)
	}
	return nil
}

func isClientError(err error) bool {
	for _, target := range []error{
		ErrSessionNotFound, ErrNotJoined, ErrInvalidRole, ErrNoMaster,
		ErrEmptyMessage, ErrEmptyQuestion, errUnknownEvent, errBadPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// goBackground runs fn as a tracked task unless Shutdown has begun.
func (sm *SessionManager) goBackground(fn func()) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped {
		return false
	}
	sm.wg.Add(1)
	go fn()
	return true
}

// reapLoop closes connections that have been silent longer than IdleTimeout.
// Closing makes the read pump exit, which runs Leave.
func (sm *SessionManager) reapLoop() {
	defer sm.wg.Done()

	interval := min(sm.opts.IdleTimeout/2, 30*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case now := <-ticker.C:
			sm.reapIdle(now)
		}
	}
}

func (sm *SessionManager) reapIdle(now time.Time) int {
	sm.mu.Lock()
	var idle []*Client
	for c := range sm.clients {
		if c.idleFor(now) > sm.opts.IdleTimeout {
			idle = append(idle, c)
		}
	}
	sm.mu.Unlock()

	for _, c := range idle {
		slog.Info("closing idle connection", "client_id", c.ID)
		c.Close()
	}
	return len(idle)
}

// Shutdown stops watchers and the reaper and closes every connection.
func (sm *SessionManager) Shutdown() {
	slog.Info("shutting down session manager")

	sm.mu.Lock()
	sm.stopped = true
	sm.cancel()
	for c := range sm.clients {
		c.Close()
	}
	sm.mu.Unlock()

	sm.wg.Wait()
	slog.Info("session manager stopped")
}
