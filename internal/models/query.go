package models

import "fmt"

// QueryMode selects how much of the video the assistant may look at.
type QueryMode string

const (
	QueryOmniscient QueryMode = "omniscient" // whole video
	QueryTemporal   QueryMode = "temporal"   // [0, current time]
	QueryWindow     QueryMode = "window"     // [start, end] supplied by the client
)

// TimeWindow is the context bound passed to the assistant. It is never stored.
type TimeWindow struct {
	Mode  QueryMode `json:"mode"`
	Start float64   `json:"start"`
	End   float64   `json:"end"`
}

// NewTimeWindow resolves a client query mode into concrete bounds.
// Unknown or empty modes mean omniscient. A window request with missing or
// inverted bounds falls back to temporal at the current video time.
func NewTimeWindow(mode QueryMode, videoTimestamp float64, start, end *float64) TimeWindow {
	if videoTimestamp < 0 {
		videoTimestamp = 0
	}

	switch mode {
	case QueryTemporal:
		return TimeWindow{Mode: QueryTemporal, Start: 0, End: videoTimestamp}
	case QueryWindow:
		if start != nil && end != nil && *start >= 0 && *start <= *end {
			return TimeWindow{Mode: QueryWindow, Start: *start, End: *end}
		}
		return TimeWindow{Mode: QueryTemporal, Start: 0, End: videoTimestamp}
	default:
		return TimeWindow{Mode: QueryOmniscient}
	}
}

// Bounded reports whether the window limits context. The zero value is
// unbounded, like omniscient.
func (w TimeWindow) Bounded() bool {
	return w.Mode == QueryTemporal || w.Mode == QueryWindow
}

// Overlaps reports whether [from, to] intersects the window.
func (w TimeWindow) Overlaps(from, to float64) bool {
	if !w.Bounded() {
		return true
	}
	return from <= w.End && to >= w.Start
}

func (w TimeWindow) String() string {
	if !w.Bounded() {
		return string(QueryOmniscient)
	}
	return fmt.Sprintf("%s[%.1fs-%.1fs]", w.Mode, w.Start, w.End)
}

// AnswerRequest is everything the assistant needs to answer one chat question.
type AnswerRequest struct {
	Question       string
	SessionID      string
	UserID         string
	VideoTimestamp float64
	Window         TimeWindow
}
