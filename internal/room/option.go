package room

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MinOptions = 2
	MaxOptions = 16
)

var (
	ErrTooFewOptions   = fmt.Errorf("a room needs at least %d options", MinOptions)
	ErrTooManyOptions  = fmt.Errorf("a room allows at most %d options", MaxOptions)
	ErrMixedOptions    = errors.New("options must all be numbers or exactly Yes and No")
	ErrUnknownPreset   = errors.New("unknown option preset")
	ErrDuplicateOption = errors.New("duplicate option")
)

// Option is one selectable value. Numeric options travel as JSON numbers,
// everything else as JSON strings.
type Option string

// IsNumeric reports whether the option is a JSON number literal, so it can be
// emitted unquoted. NaN, Inf, hex floats, and a leading '+' are not.
func (o Option) IsNumeric() bool {
	if o == "" {
		return false
	}
	first, last := o[0], o[len(o)-1]
	if first != '-' && !isDigit(first) || !isDigit(last) {
		return false
	}
	return json.Valid([]byte(o))
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (o Option) MarshalJSON() ([]byte, error) {
	if o.IsNumeric() {
		return []byte(o), nil
	}
	return json.Marshal(string(o))
}

func (o *Option) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*o = Option(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("option must be a number or a string: %w", err)
	}
	*o = Option(s)
	return nil
}

var presets = map[string][]Option{
	"fibonacci":          {"0", "1", "2", "3", "5", "8", "13", "21"},
	"modified-fibonacci": {"0", "0.5", "1", "2", "3", "5", "8", "13", "20", "40", "100"},
	"powers-of-two":      {"0", "1", "2", "4", "8", "16", "32", "64"},
	"yes-no":             {"Yes", "No"},
}

// Preset returns a copy of a named option set.
func Preset(name string) ([]Option, error) {
	opts, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return append([]Option(nil), opts...), nil
}

// ValidateOptions enforces the 2-16 entry bound and that the set is either
// all numeric or exactly the Yes/No pair.
func ValidateOptions(opts []Option) error {
	if len(opts) < MinOptions {
		return ErrTooFewOptions
	}
	if len(opts) > MaxOptions {
		return ErrTooManyOptions
	}
	if len(opts) == 2 && opts[0] == "Yes" && opts[1] == "No" {
		return nil
	}
	seen := make(map[Option]struct{}, len(opts))
	for _, o := range opts {
		if !o.IsNumeric() {
			return ErrMixedOptions
		}
		if _, dup := seen[o]; dup {
			return fmt.Errorf("%w %q", ErrDuplicateOption, o)
		}
		seen[o] = struct{}{}
	}
	return nil
}
