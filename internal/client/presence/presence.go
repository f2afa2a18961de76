// Package presence writes the signed-in user's status and last-seen time to
// the remote store and renders the "last seen" line shown next to a peer.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
)

const (
	OnlineMarker       = "online"
	DoNotDisturbMarker = "do not disturb"
)

// Tracker pushes presence updates. Every write is best effort: failures are
// logged and never returned.
type Tracker struct {
	store   remote.Store
	log     logging.Logger
	timeout time.Duration
	now     func() time.Time
	encode  func(v any) (json.RawMessage, error)
}

func NewTracker(store remote.Store, timeout time.Duration, log logging.Logger) *Tracker {
	return &Tracker{
		store:   store,
		log:     log.With("component", "presence"),
		timeout: timeout,
		now:     time.Now,
		encode:  remote.Encode,
	}
}

func (t *Tracker) SetOnline(ctx context.Context, userID string) {
	t.set(ctx, userID, models.StatusOnline)
}

func (t *Tracker) SetOffline(ctx context.Context, userID string) {
	t.set(ctx, userID, models.StatusOffline)
}

// SetStatus writes an explicit status such as DoNotDisturb.
func (t *Tracker) SetStatus(ctx context.Context, userID string, status models.UserStatus) {
	t.set(ctx, userID, status)
}

func (t *Tracker) set(ctx context.Context, userID string, status models.UserStatus) {
	if userID == "" {
		return
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	seen := t.now().UTC()
	statusRaw, err := t.encode(status)
	if err != nil {
		t.log.Warn(ctx, "presence not encoded", "user_id", userID, "error", err)
		return
	}
	seenRaw, err := t.encode(seen)
	if err != nil {
		t.log.Warn(ctx, "presence not encoded", "user_id", userID, "error", err)
		return
	}

	err = t.store.Update(ctx, map[string]json.RawMessage{
		remote.Join(remote.UserPath(userID), "status"):   statusRaw,
		remote.Join(remote.UserPath(userID), "lastSeen"): seenRaw,
	})
	if err != nil {
		t.log.Warn(ctx, "presence update failed", "user_id", userID, "status", status, "error", err)
		return
	}
	t.log.Debug(ctx, "presence updated", "user_id", userID, "status", status)
}

// Format renders a peer's presence relative to now. Offline users get a
// "last seen" phrase bucketed by minutes, hours or days; values are
// truncated, so 90 minutes is "1 h ago".
func Format(status models.UserStatus, lastSeen, now time.Time) string {
	switch status {
	case models.StatusOnline:
		return OnlineMarker
	case models.StatusDoNotDisturb:
		return DoNotDisturbMarker
	}

	ago := now.UTC().Sub(lastSeen.UTC())
	switch {
	case ago < time.Minute:
		return "last seen just now"
	case ago < time.Hour:
		return fmt.Sprintf("last seen %d min ago", int(ago/time.Minute))
	case ago < 24*time.Hour:
		return fmt.Sprintf("last seen %d h ago", int(ago/time.Hour))
	default:
		return fmt.Sprintf("last seen %d d ago", int(ago/(24*time.Hour)))
	}
}

// FormatUser formats u's presence against the current time.
func FormatUser(u models.User) string {
	return Format(u.Status, u.LastSeen, time.Now())
}
