package bridge

import (
	"time"

	"github.com/brianly1003/ideremote/internal/domain/events"
)

// terminalLoop pushes a snapshot of every subscribed session whose content
// changed since the last push.
func (b *Bridge) terminalLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.TerminalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.pushTerminalDiffs()
		}
	}
}

func (b *Bridge) pushTerminalDiffs() {
	for _, sessionID := range b.subs.Sessions() {
		snap, err := b.sessions.Snapshot(sessionID, b.cfg.SnapshotLines)
		if err != nil {
			conns := b.subs.RemoveSession(sessionID)
			b.logger.Debug("dropping subscriptions of unreadable session",
				"session_id", sessionID,
				"subscribers", len(conns),
				"error", err)
			continue
		}

		if last, ok := b.subs.Last(sessionID); ok && last.Equal(snap) {
			continue
		}

		msg := events.NewTerminalOutput(sessionID, snap)
		delivered := false
		for _, connID := range b.subs.Subscribers(sessionID) {
			st, ok := b.conns.Get(connID)
			if !ok || !st.Approved() {
				continue
			}
			if b.send(st, msg) {
				delivered = true
			}
		}
		if delivered {
			b.subs.SetLast(sessionID, snap)
		}
	}
}

// progressLoop broadcasts the progress snapshot when it changes, and
// immediately when a task starts or finishes.
func (b *Bridge) progressLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.pushProgress(false)
		case <-b.forceProgress:
			b.pushProgress(true)
		}
	}
}

func (b *Bridge) pushProgress(force bool) {
	tasks, changed := b.tracker.Poll(force)
	if !changed {
		return
	}
	b.publish(events.NewIDEProgress(tasks))
}

func (b *Bridge) requestProgressPush() {
	select {
	case b.forceProgress <- struct{}{}:
	default:
	}
}
