package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"watchparty/internal/models"
	"watchparty/internal/repository"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// MockStore is a thread-safe in-memory session store for tests.
type MockStore struct {
	mu sync.Mutex

	Sessions     map[string]*models.Session
	Participants map[string]map[string]*models.Participant // session -> user -> row
	Messages     map[string][]*models.ChatMessage

	AppendErr error
	UpsertErr error
	// AppendFilter, when set, can reject individual appends.
	AppendFilter func(msg *models.ChatMessage) error

	AppendCalls int
	UpsertCalls int
	RemoveCalls int
	TouchCalls  int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Sessions:     make(map[string]*models.Session),
		Participants: make(map[string]map[string]*models.Participant),
		Messages:     make(map[string][]*models.ChatMessage),
	}
}

// AddSession stores s as-is and returns it.
func (m *MockStore) AddSession(s *models.Session) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.Active = true
	m.Sessions[s.ID] = s
	return s
}

func (m *MockStore) CreateSession(_ context.Context, in *models.SessionCreate) (*models.Session, error) {
	isMaster := true
	if in.IsMaster != nil {
		isMaster = *in.IsMaster
	}
	return m.AddSession(&models.Session{
		Name:      in.Name,
		VideoURL:  in.VideoURL,
		VideoFile: in.VideoFile,
		IsMaster:  isMaster,
	}), nil
}

func (m *MockStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[id]
	if !ok || !s.Active {
		return nil, fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MockStore) ListActiveSessions(_ context.Context) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Session
	for _, s := range m.Sessions {
		if s.Active {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockStore) MarkVideoProcessed(_ context.Context, videoURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Sessions {
		if s.VideoURL == videoURL {
			s.VideoProcessed = true
		}
	}
	return nil
}

func (m *MockStore) UpsertParticipant(_ context.Context, p *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if m.Participants[p.SessionID] == nil {
		m.Participants[p.SessionID] = make(map[string]*models.Participant)
	}
	cp := *p
	m.Participants[p.SessionID][p.UserID] = &cp
	return nil
}

func (m *MockStore) TouchParticipant(_ context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TouchCalls++
	if p, ok := m.Participants[sessionID][userID]; ok {
		p.LastSeen = time.Now().UTC()
	}
	return nil
}

func (m *MockStore) RemoveParticipant(_ context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++
	delete(m.Participants[sessionID], userID)
	return nil
}

func (m *MockStore) ListParticipants(_ context.Context, sessionID string) ([]*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Participant, 0, len(m.Participants[sessionID]))
	for _, p := range m.Participants[sessionID] {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *MockStore) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendErr != nil {
		return m.AppendErr
	}
	if m.AppendFilter != nil {
		if err := m.AppendFilter(msg); err != nil {
			return err
		}
	}
	if msg.ID == "" {
		msg.ID = ksuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Seq = int64(len(m.Messages[msg.SessionID]) + 1)
	cp := *msg
	m.Messages[msg.SessionID] = append(m.Messages[msg.SessionID], &cp)
	return nil
}

func (m *MockStore) ListMessages(_ context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.Messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*models.ChatMessage, len(all))
	for i, msg := range all {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}

// MessageCount returns how many messages sessionID has.
func (m *MockStore) MessageCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages[sessionID])
}

// ParticipantCount returns how many participant rows sessionID has.
func (m *MockStore) ParticipantCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Participants[sessionID])
}
