package room

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// MaxNameLength is the rune length names are truncated to before suffixing.
const MaxNameLength = 20

const maxNameSuffix = 10

var ErrTooManyDuplicateNames = errors.New("too many duplicate names")

// CleanseName trims and truncates raw, then appends " (n)" until the result
// no longer collides case-insensitively with any of existing.
func CleanseName(raw string, existing []string) (string, error) {
	name := strings.TrimSpace(raw)
	if r := []rune(name); len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}

	if !collides(name, existing) {
		return name, nil
	}
	for n := 1; n < maxNameSuffix; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !collides(candidate, existing) {
			return candidate, nil
		}
	}
	return "", ErrTooManyDuplicateNames
}

func collides(name string, existing []string) bool {
	return lo.ContainsBy(existing, func(e string) bool {
		return strings.EqualFold(name, e)
	})
}
