package collaboration

import (
	"context"
	"log/slog"
	"time"

	"watchparty/internal/models"
)

// statusWatch is the one polling task a session may have while its video is
// being processed.
type statusWatch struct {
	cancel context.CancelFunc
}

// watchStatusLocked starts the session's status watcher if its video still
// needs processing and none is running. Caller holds rm.mu.
func (sm *SessionManager) watchStatusLocked(rm *room) {
	if sm.statuses == nil || rm.watch != nil {
		return
	}
	if rm.session == nil || !rm.session.HasVideo() || rm.session.VideoProcessed {
		return
	}

	ctx, cancel := context.WithCancel(sm.ctx)
	w := &statusWatch{cancel: cancel}
	videoURL := rm.session.VideoURL

	if !sm.goBackground(func() { sm.pollStatus(ctx, w, rm.id, videoURL) }) {
		cancel()
		return
	}
	rm.watch = w
}

// pollStatus broadcasts video_status whenever the processing status changes.
// It ends on a terminal status, when the room empties, or at shutdown.
func (sm *SessionManager) pollStatus(ctx context.Context, w *statusWatch, sessionID, videoURL string) {
	defer sm.wg.Done()
	defer w.cancel()

	ticker := time.NewTicker(sm.opts.StatusPollInterval)
	defer ticker.Stop()

	var last *VideoStatus
	for {
		status, err := sm.statuses.Status(ctx, videoURL)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			slog.Warn("status poll failed", "session_id", sessionID, "video_url", videoURL, "error", err)
		default:
			current := VideoStatus{
				VideoURL:     videoURL,
				Status:       status.Status,
				Progress:     status.Progress,
				ErrorMessage: status.ErrorMessage,
			}
			if last == nil || *last != current {
				last = &current
				if !sm.publishStatus(sessionID, w, current) {
					return
				}
			}
			if status.Status.Terminal() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// publishStatus broadcasts one status change. It returns false when the
// watcher has been superseded or the room is gone. A terminal status also
// releases the room's watcher slot.
func (sm *SessionManager) publishStatus(sessionID string, w *statusWatch, st VideoStatus) bool {
	rm := sm.registry.lockRoom(sessionID, false)
	if rm == nil {
		return false
	}
	defer rm.mu.Unlock()

	if rm.watch != w {
		return false
	}

	rm.broadcast(encode(EventVideoStatus, st), nil)

	if st.Status.Terminal() {
		rm.watch = nil
		if st.Status == models.ProcessingCompleted && rm.session != nil {
			updated := *rm.session
			updated.VideoProcessed = true
			rm.session = &updated
		}
	}
	return true
}
