package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"

	"github.com/cortexuvula/roomsync/internal/room"
)

const (
	roomPrefix       = "room:"
	codePrefix       = "code:"
	lastUpdatedIndex = "room_last_updated"
)

// BuntStore keeps rooms as JSON values in a buntdb database. Room documents
// live under room:<id>; code:<roomCode> maps a room code to its id.
type BuntStore struct {
	db  *buntdb.DB
	now func() time.Time
}

// OpenBunt opens (or creates) the database at path. ":memory:" keeps everything in RAM.
func OpenBunt(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening room database: %w", err)
	}
	if err := db.CreateIndex(lastUpdatedIndex, roomPrefix+"*", buntdb.IndexJSON("lastUpdated")); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating lastUpdated index: %w", err)
	}
	return &BuntStore{db: db, now: time.Now}, nil
}

// SetClock overrides the time source used to stamp lastUpdated.
func (s *BuntStore) SetClock(now func() time.Time) {
	s.now = now
}

// stamp returns the current time at second precision in UTC so the
// RFC 3339 form sorts lexically in the lastUpdated index.
func (s *BuntStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *BuntStore) FindByRoomCode(_ context.Context, roomCode string) (*room.Room, error) {
	var r *room.Room
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		r, err = getByCode(tx, roomCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *BuntStore) InsertRoom(_ context.Context, r *room.Room) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Voters == nil {
		r.Voters = []room.Voter{}
	}
	r.LastUpdated = s.stamp()
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(codePrefix + r.RoomCode); err == nil {
			return ErrCodeTaken
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		if err := putRoom(tx, r); err != nil {
			return err
		}
		_, _, err := tx.Set(codePrefix+r.RoomCode, r.ID, nil)
		return err
	})
}

func (s *BuntStore) UpdateByID(_ context.Context, id string, ops ...Op) (*room.Room, error) {
	var updated *room.Room
	err := s.db.Update(func(tx *buntdb.Tx) error {
		r, err := getByID(tx, id)
		if err != nil {
			return err
		}
		Apply(r, ops...)
		if err := r.Check(); err != nil {
			return fmt.Errorf("rejected mutation on room %s: %w", r.RoomCode, err)
		}
		r.LastUpdated = s.stamp()
		if err := putRoom(tx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByRoomCode removes the room. Deleting a missing room is not an error.
func (s *BuntStore) DeleteByRoomCode(_ context.Context, roomCode string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		id, err := tx.Delete(codePrefix + roomCode)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.Delete(roomPrefix + id); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		return nil
	})
}

func (s *BuntStore) ListStale(_ context.Context, before time.Time) ([]*room.Room, error) {
	pivot := fmt.Sprintf(`{"lastUpdated":"%s"}`, before.UTC().Format(time.RFC3339))
	var stale []*room.Room
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendLessThan(lastUpdatedIndex, pivot, func(_, val string) bool {
			r := &room.Room{}
			if err := json.Unmarshal([]byte(val), r); err == nil {
				stale = append(stale, r)
			}
			return true
		})
	})
	return stale, err
}

func (s *BuntStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(codePrefix+"*", func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, err
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}

func getByCode(tx *buntdb.Tx, roomCode string) (*room.Room, error) {
	id, err := tx.Get(codePrefix + roomCode)
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return getByID(tx, id)
}

func getByID(tx *buntdb.Tx, id string) (*room.Room, error) {
	val, err := tx.Get(roomPrefix + id)
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r := &room.Room{}
	if err := json.Unmarshal([]byte(val), r); err != nil {
		return nil, fmt.Errorf("decoding room %s: %w", id, err)
	}
	return r, nil
}

func putRoom(tx *buntdb.Tx, r *room.Room) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(roomPrefix+r.ID, string(b), nil)
	return err
}
