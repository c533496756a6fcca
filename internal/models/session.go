package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is a watch room: participants, chat history and optionally one video.
// Only Active and VideoProcessed change after creation.
type Session struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string    `gorm:"type:text;not null" json:"name"`
	VideoURL       string    `gorm:"type:text;index" json:"video_url,omitempty"`
	VideoFile      string    `gorm:"type:text" json:"video_file,omitempty"`
	IsMaster       bool      `gorm:"not null;default:false" json:"is_master"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	VideoProcessed bool      `gorm:"not null;default:false" json:"video_processed"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// HasVideo reports whether a video reference is attached.
func (s *Session) HasVideo() bool {
	return s.VideoURL != ""
}

type SessionCreate struct {
	Name      string `json:"name"`
	VideoURL  string `json:"video_url,omitempty"`
	VideoFile string `json:"video_file,omitempty"`
	IsMaster  *bool  `json:"is_master,omitempty"`
}

// SessionSummary is a session plus its live member count, used by listings.
type SessionSummary struct {
	*Session
	UserCount int `json:"user_count"`
}

// Role is the part a connection plays in a session.
type Role string

const (
	RoleMaster      Role = "master"
	RoleParticipant Role = "participant"
)

// Participant is the persisted copy of a session membership. The live roster
// is held in memory by the connection registry; this row is history only.
type Participant struct {
	SessionID   string    `gorm:"type:varchar(36);primaryKey" json:"session_id"`
	UserID      string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	DisplayName string    `gorm:"type:text;not null" json:"display_name"`
	Role        Role      `gorm:"type:varchar(16);not null" json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeen    time.Time `json:"last_seen"`
}

func (Participant) TableName() string {
	return "session_participants"
}
