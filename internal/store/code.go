package store

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/cortexuvula/roomsync/internal/room"
)

// CodeLength is the number of characters in a room code.
const CodeLength = 4

// codeAlphabet omits characters that are easy to misread (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 32

var ErrCodeExhausted = errors.New("could not allocate a free room code")

// NewRoomCode returns a random code.
func NewRoomCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode upper-cases and trims a user supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Insert stores r under a freshly generated code, retrying on collisions.
func Insert(ctx context.Context, s Store, r *room.Room) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewRoomCode()
		if err != nil {
			return err
		}
		r.RoomCode = code
		err = s.InsertRoom(ctx, r)
		if !errors.Is(err, ErrCodeTaken) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrCodeExhausted
}
