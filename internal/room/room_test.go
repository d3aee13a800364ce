package room

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optPtr(o Option) *Option         { return &o }
func confPtr(c Confidence) *Confidence { return &c }

func TestCleanseName(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		existing []string
		want     string
	}{
		{"trims whitespace", "  alice  ", nil, "alice"},
		{"truncates to twenty", "abcdefghijklmnopqrstuvwxyz", nil, "abcdefghijklmnopqrst"},
		{"first collision", "Alice", []string{"alice"}, "Alice (1)"},
		{"skips taken suffix", "bob", []string{"Bob", "BOB (1)"}, "bob (2)"},
		{"no collision keeps name", "carol", []string{"dave"}, "carol"},
		{"truncates before suffix", "abcdefghijklmnopqrstuvwxyz", []string{"abcdefghijklmnopqrst"}, "abcdefghijklmnopqrst (1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanseName(tt.raw, tt.existing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanseNameUsesLastSuffix(t *testing.T) {
	existing := []string{"Al"}
	for i := 1; i <= 8; i++ {
		existing = append(existing, "Al ("+strconv.Itoa(i)+")")
	}
	got, err := CleanseName("al", existing)
	require.NoError(t, err)
	assert.Equal(t, "al (9)", got)
}

func TestCleanseNameExhausted(t *testing.T) {
	existing := []string{"Al"}
	for i := 1; i <= 9; i++ {
		existing = append(existing, "Al ("+strconv.Itoa(i)+")")
	}
	_, err := CleanseName("Al", existing)
	assert.ErrorIs(t, err, ErrTooManyDuplicateNames)
}

func TestCalculateConfidence(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		elapsed time.Duration
		want    Confidence
	}{
		{0, ConfidenceHigh},
		{4999 * time.Millisecond, ConfidenceHigh},
		{5 * time.Second, ConfidenceMedium},
		{14 * time.Second, ConfidenceMedium},
		{15 * time.Second, ConfidenceLow},
		{time.Hour, ConfidenceLow},
	}
	for _, tt := range tests {
		got, err := CalculateConfidence(&start, start.Add(tt.elapsed))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "elapsed %s", tt.elapsed)
	}
}

func TestCalculateConfidenceNotStarted(t *testing.T) {
	_, err := CalculateConfidence(nil, time.Now())
	assert.ErrorIs(t, err, ErrVotingNotStarted)
}

func TestOptionJSON(t *testing.T) {
	b, err := json.Marshal([]Option{"1", "0.5", "Yes"})
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 0.5, "Yes"]`, string(b))

	var got []Option
	require.NoError(t, json.Unmarshal([]byte(`[3, "No", 0.5]`), &got))
	assert.Equal(t, []Option{"3", "No", "0.5"}, got)
}

func TestOptionIsNumeric(t *testing.T) {
	tests := []struct {
		in   Option
		want bool
	}{
		{"0", true},
		{"13", true},
		{"-0.5", true},
		{"1e3", true},
		{"2.5E-1", true},
		{"NaN", false},
		{"Inf", false},
		{"+Inf", false},
		{"+5", false},
		{"5.", false},
		{".5", false},
		{"0x1p-2", false},
		{"01", false},
		{" 5", false},
		{"5 ", false},
		{"", false},
		{"Yes", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.IsNumeric())
		})
	}
}

func TestNonJSONNumbersMarshalAsStrings(t *testing.T) {
	for _, o := range []Option{"NaN", "Inf", "+5", "5.", "0x1p-2"} {
		b, err := json.Marshal(o)
		require.NoError(t, err)
		assert.True(t, json.Valid(b), "%s", b)
		assert.JSONEq(t, strconv.Quote(string(o)), string(b))
	}
	assert.ErrorIs(t, ValidateOptions([]Option{"NaN", "1"}), ErrMixedOptions)
	assert.ErrorIs(t, ValidateOptions([]Option{"1", "0x1p-2"}), ErrMixedOptions)
}

func TestValidateOptions(t *testing.T) {
	assert.NoError(t, ValidateOptions([]Option{"1", "2"}))
	assert.NoError(t, ValidateOptions([]Option{"Yes", "No"}))
	assert.ErrorIs(t, ValidateOptions([]Option{"1"}), ErrTooFewOptions)
	assert.ErrorIs(t, ValidateOptions([]Option{"1", "Yes"}), ErrMixedOptions)
	assert.ErrorIs(t, ValidateOptions([]Option{"Yes", "No", "Maybe"}), ErrMixedOptions)

	many := make([]Option, 17)
	for i := range many {
		many[i] = Option(strconv.Itoa(i))
	}
	assert.ErrorIs(t, ValidateOptions(many), ErrTooManyOptions)
	assert.Error(t, ValidateOptions([]Option{"1", "1"}))
}

func TestPreset(t *testing.T) {
	opts, err := Preset("fibonacci")
	require.NoError(t, err)
	assert.Equal(t, []Option{"0", "1", "2", "3", "5", "8", "13", "21"}, opts)
	require.NoError(t, ValidateOptions(opts))

	opts[0] = "99"
	again, _ := Preset("fibonacci")
	assert.Equal(t, Option("0"), again[0])

	_, err = Preset("nope")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestClone(t *testing.T) {
	start := time.Now()
	r := &Room{
		ID:              "r1",
		Moderator:       &Moderator{ID: "m", Name: "Mod"},
		Voters:          []Voter{{ID: "v", Name: "V", Selection: optPtr("1"), Confidence: confPtr(ConfidenceHigh)}},
		Options:         []Option{"1", "2"},
		VotingStartedAt: &start,
	}
	c := r.Clone()
	c.Moderator.Name = "changed"
	*c.Voters[0].Selection = "2"
	c.Options[0] = "9"

	assert.Equal(t, "Mod", r.Moderator.Name)
	assert.Equal(t, Option("1"), *r.Voters[0].Selection)
	assert.Equal(t, Option("1"), r.Options[0])
}

func TestCheck(t *testing.T) {
	r := &Room{
		Moderator: &Moderator{ID: "m", Name: "Mod"},
		Voters:    []Voter{{ID: "v", Name: "V"}},
		Options:   []Option{"1", "2"},
	}
	require.NoError(t, r.Check())

	r.Voters[0].Selection = optPtr("1")
	assert.Error(t, r.Check(), "selection without confidence")

	r.Voters[0].Confidence = confPtr(ConfidenceLow)
	require.NoError(t, r.Check())

	r.Voters[0].Selection = optPtr("7")
	assert.Error(t, r.Check(), "selection outside options")

	r.Voters[0] = Voter{ID: "m", Name: "dup"}
	assert.Error(t, r.Check(), "moderator also voter")

	r.Voters = nil
	r.ModeratorVotingProxy = &Voter{ID: "other"}
	assert.Error(t, r.Check(), "proxy id mismatch")
}

func TestNamesExcept(t *testing.T) {
	r := &Room{
		Moderator: &Moderator{ID: "m", Name: "Mod"},
		Voters:    []Voter{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}},
	}
	assert.ElementsMatch(t, []string{"Mod", "B"}, r.NamesExcept("a"))
	assert.ElementsMatch(t, []string{"A", "B"}, r.NamesExcept("m"))
}
