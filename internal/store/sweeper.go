package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically deletes rooms that have not been touched within ttl.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	schedule string
	now      func() time.Time

	// Active, when set, is consulted before deleting; rooms it reports as
	// active are left alone.
	Active func(roomCode string) bool
	// OnSwept is called after each room is deleted.
	OnSwept func(roomCode string)

	cron *cron.Cron
}

func NewSweeper(s Store, ttl time.Duration, schedule string) *Sweeper {
	return &Sweeper{
		store:    s,
		ttl:      ttl,
		schedule: schedule,
		now:      time.Now,
	}
}

// Start registers the sweep on the cron schedule and begins running it.
func (sw *Sweeper) Start() error {
	sw.cron = cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := sw.cron.AddFunc(sw.schedule, func() {
		if _, err := sw.Sweep(context.Background()); err != nil {
			slog.Error("room sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", sw.schedule, err)
	}
	sw.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	if sw.cron == nil {
		return
	}
	<-sw.cron.Stop().Done()
}

// Sweep runs one pass and returns the number of rooms deleted.
func (sw *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := sw.store.ListStale(ctx, sw.now().Add(-sw.ttl))
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, r := range stale {
		if sw.Active != nil && sw.Active(r.RoomCode) {
			continue
		}
		if err := sw.store.DeleteByRoomCode(ctx, r.RoomCode); err != nil {
			return deleted, err
		}
		deleted++
		slog.Info("swept stale room", "room", r.RoomCode, "last_updated", r.LastUpdated)
		if sw.OnSwept != nil {
			sw.OnSwept(r.RoomCode)
		}
	}
	return deleted, nil
}
