package collaboration

import (
	"math"
	"time"
)

// SeekThreshold is how far, in seconds, a participant may drift from the
// master before it seeks. Smaller differences are buffering jitter.
const SeekThreshold = 2.0

// ShouldSeek is the client reconciliation rule for sync_video_time.
func ShouldSeek(localTime, reportedTime float64) bool {
	return math.Abs(localTime-reportedTime) > SeekThreshold
}

// ReportTime records the master's playback position and relays it to every
// participant. Reports from members other than the current master are
// dropped silently, so a demoted master cannot move the room. A connection
// outside any session gets ErrNotJoined.
func (sm *SessionManager) ReportTime(c *Client, seconds float64) error {
	rm, _, err := sm.registry.lockMember(c)
	if err != nil {
		return err
	}
	defer rm.mu.Unlock()

	if rm.master != c {
		return nil
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil
	}

	now := time.Now()
	rm.sync = playback{state: PlaybackTracking, time: seconds, updatedAt: now}
	rm.broadcast(encode(EventSyncVideoTime, SyncVideoTime{
		VideoTime: seconds,
		Timestamp: unixSeconds(now),
	}), c)

	return nil
}

// RequestCurrentTime asks the master, and only the master, to report its
// position to c.
func (sm *SessionManager) RequestCurrentTime(c *Client) error {
	rm, member, err := sm.registry.lockMember(c)
	if err != nil {
		return err
	}
	defer rm.mu.Unlock()

	if rm.master == nil {
		return ErrNoMaster
	}

	rm.master.enqueue(encode(EventTimeRequested, TimeRequested{
		RequesterID: member.UserID,
		SessionID:   member.SessionID,
	}))
	return nil
}

// SendCurrentTime is the master's directed answer to a time request. It
// reaches the requester only. A requester that already left is ignored.
func (sm *SessionManager) SendCurrentTime(c *Client, requesterID string, seconds float64) error {
	rm, _, err := sm.registry.lockMember(c)
	if err != nil {
		return err
	}
	defer rm.mu.Unlock()

	if rm.master != c {
		return ErrInvalidRole
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil
	}

	now := time.Now()
	rm.sync = playback{state: PlaybackTracking, time: seconds, updatedAt: now}

	target := rm.clientFor(requesterID)
	if target == nil || target == c {
		return nil
	}
	target.enqueue(encode(EventSyncVideoTime, SyncVideoTime{
		VideoTime: seconds,
		Timestamp: unixSeconds(now),
	}))
	return nil
}
