// Package presence tracks which users are currently online.
//
// An identity is online while now - lastSeen < window. Entries are refreshed by heartbeats and
// removed explicitly on disconnect or by sweeping once their window has passed. Tracker failures are
// logged and never surfaced to callers: presence is advisory.
package presence

import (
	"cmp"
	"context"
	"slices"
	"time"
)

const DefaultWindow = 5 * time.Minute

type Entry struct {
	ID       string    `json:"id"`
	Nickname string    `json:"nickname"`
	Email    string    `json:"email,omitempty"`
	LastSeen time.Time `json:"last_seen"`
	Online   bool      `json:"online"`
}

type Tracker interface {
	Register(ctx context.Context, id, nickname, email string)
	// Heartbeat refreshes lastSeen and reports whether the identity was known.
	Heartbeat(ctx context.Context, id string) bool
	Unregister(ctx context.Context, id string)
	IsOnline(ctx context.Context, id string) bool
	Get(ctx context.Context, id string) (Entry, bool)
	Online(ctx context.Context) []Entry
	Sweep(ctx context.Context, now time.Time) int
	Run(ctx context.Context, interval time.Duration)
	Watch() *Watcher
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.Nickname, b.Nickname); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func runSweeper(ctx context.Context, interval time.Duration, now func() time.Time, sweep func(context.Context, time.Time) int) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, now())
		}
	}
}
