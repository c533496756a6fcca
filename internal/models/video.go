package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

type ProcessingState string

const (
	ProcessingNotStarted ProcessingState = "not_started"
	ProcessingPending    ProcessingState = "pending"
	ProcessingRunning    ProcessingState = "processing"
	ProcessingCompleted  ProcessingState = "completed"
	ProcessingFailed     ProcessingState = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s ProcessingState) Terminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed
}

// VideoProcessingStatus tracks indexing of one video URL.
type VideoProcessingStatus struct {
	ID           string          `gorm:"type:varchar(27);primaryKey" json:"id"`
	VideoURL     string          `gorm:"type:text;not null;uniqueIndex" json:"video_url"`
	SessionID    string          `gorm:"type:varchar(36)" json:"session_id,omitempty"`
	Status       ProcessingState `gorm:"type:varchar(16);not null" json:"status"`
	Progress     int             `gorm:"not null;default:0" json:"progress"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

func (v *VideoProcessingStatus) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = ksuid.New().String()
	}
	return nil
}

func (VideoProcessingStatus) TableName() string {
	return "video_processing_status"
}

type SegmentKind string

const (
	SegmentTranscript SegmentKind = "transcript"
	SegmentFrame      SegmentKind = "frame"
)

// TranscriptSegment is a timed piece of video context: a spoken line or a frame description.
// Embedding is filled in by processing and stays nil until then.
type TranscriptSegment struct {
	ID           string           `gorm:"type:varchar(27);primaryKey" json:"id"`
	VideoURL     string           `gorm:"type:text;not null;index:idx_segment_video_start,priority:1" json:"video_url"`
	Kind         SegmentKind      `gorm:"type:varchar(16);not null" json:"kind"`
	StartSeconds float64          `gorm:"not null;index:idx_segment_video_start,priority:2" json:"start"`
	EndSeconds   float64          `gorm:"not null" json:"end"`
	Text         string           `gorm:"type:text;not null" json:"text"`
	Embedding    *pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (t *TranscriptSegment) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = ksuid.New().String()
	}
	return nil
}

func (TranscriptSegment) TableName() string {
	return "transcript_segments"
}

type SegmentInput struct {
	Start float64     `json:"start"`
	End   float64     `json:"end"`
	Text  string      `json:"text"`
	Kind  SegmentKind `json:"kind,omitempty"`
}
