package collaboration

import (
	"encoding/json"
	"log/slog"
	"time"

	"watchparty/internal/models"
)

/*
Every websocket frame, in both directions, is one JSON text message:

	{"event": "<name>", "data": {...}}

Inbound frames are decoded into Envelope and dispatched on Event; outbound
frames are built with encode.
*/

// Client -> server events.
const (
	EventJoinSession        = "join_session"
	EventSendMessage        = "send_message"
	EventVideoTimeUpdate    = "video_time_update"
	EventRequestCurrentTime = "request_current_time"
	EventSendCurrentTime    = "send_current_time"
	EventAskQuestion        = "ask_question"
)

// Server -> client events.
const (
	EventJoinConfirmed      = "join_confirmed"
	EventSessionUsers       = "session_users"
	EventChatHistory        = "chat_history"
	EventNewMessage         = "new_message"
	EventSyncVideoTime      = "sync_video_time"
	EventTimeRequested      = "time_requested"
	EventMasterDisconnected = "master_disconnected"
	EventError              = "error"
	EventUserJoined         = "user_joined"
	EventUserLeft           = "user_left"
	EventVideoStatus        = "video_status"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type JoinSessionPayload struct {
	SessionID   string `json:"session_id"`
	IsMaster    bool   `json:"is_master"`
	DisplayName string `json:"display_name,omitempty"`
}

type SendMessagePayload struct {
	Message        string           `json:"message"`
	VideoTimestamp float64          `json:"video_timestamp"`
	QueryMode      models.QueryMode `json:"query_mode,omitempty"`
	StartTime      *float64         `json:"start_time,omitempty"`
	EndTime        *float64         `json:"end_time,omitempty"`
}

// AskQuestionPayload always reaches the assistant.
type AskQuestionPayload struct {
	Question       string           `json:"question"`
	VideoTimestamp float64          `json:"video_timestamp"`
	QueryMode      models.QueryMode `json:"query_mode,omitempty"`
	StartTime      *float64         `json:"start_time,omitempty"`
	EndTime        *float64         `json:"end_time,omitempty"`
}

// VideoTimeUpdatePayload carries the master's position. SessionID is
// informational; the connection's own session is always used.
type VideoTimeUpdatePayload struct {
	SessionID string  `json:"session_id,omitempty"`
	VideoTime float64 `json:"video_time"`
}

type RequestCurrentTimePayload struct {
	SessionID string `json:"session_id,omitempty"`
}

type SendCurrentTimePayload struct {
	RequesterID string  `json:"requester_id"`
	VideoTime   float64 `json:"video_time"`
}

type JoinConfirmed struct {
	Session     *models.Session `json:"session"`
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	IsMaster    bool            `json:"is_master"`
}

// RosterEntry is one line of the session_users list.
type RosterEntry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsMaster    bool      `json:"is_master"`
	JoinedAt    time.Time `json:"joined_at"`
}

// PresenceNotice is the payload of user_joined and user_left.
type PresenceNotice struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	IsMaster    bool    `json:"is_master"`
	Timestamp   float64 `json:"timestamp"`
}

type SyncVideoTime struct {
	VideoTime float64 `json:"video_time"`
	Timestamp float64 `json:"timestamp"`
}

type TimeRequested struct {
	RequesterID string `json:"requester_id"`
	SessionID   string `json:"session_id"`
}

type VideoStatus struct {
	VideoURL     string                 `json:"video_url"`
	Status       models.ProcessingState `json:"status"`
	Progress     int                    `json:"progress"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// encode builds one outbound frame. A marshal failure is logged and yields nil,
// which Client.enqueue drops.
func encode(event string, data any) []byte {
	if data == nil {
		data = struct{}{}
	}
	b, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return nil
	}
	return b
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
