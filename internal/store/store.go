// Package store persists room documents and applies partial mutations to them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cortexuvula/roomsync/internal/room"
)

var (
	// ErrNotFound is returned when no room matches the lookup.
	ErrNotFound = errors.New("room not found")
	// ErrCodeTaken is returned by InsertRoom when the room code is already in use.
	ErrCodeTaken = errors.New("room code already in use")
)

// Store is the persistence boundary for room documents. Every mutation is
// applied atomically against the stored copy and returns the post-update document.
type Store interface {
	FindByRoomCode(ctx context.Context, roomCode string) (*room.Room, error)
	InsertRoom(ctx context.Context, r *room.Room) error
	UpdateByID(ctx context.Context, id string, ops ...Op) (*room.Room, error)
	DeleteByRoomCode(ctx context.Context, roomCode string) error
	// ListStale returns rooms whose LastUpdated is before the cutoff.
	ListStale(ctx context.Context, before time.Time) ([]*room.Room, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
