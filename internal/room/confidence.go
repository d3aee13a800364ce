package room

import (
	"errors"
	"time"
)

var ErrVotingNotStarted = errors.New("voting has not started")

const (
	highConfidenceWindow   = 5 * time.Second
	mediumConfidenceWindow = 15 * time.Second
)

// CalculateConfidence maps the time since votingStartedAt to a confidence level.
// A nil start time is a sequencing fault, not a user error.
func CalculateConfidence(votingStartedAt *time.Time, now time.Time) (Confidence, error) {
	if votingStartedAt == nil {
		return "", ErrVotingNotStarted
	}
	elapsed := now.Sub(*votingStartedAt)
	switch {
	case elapsed < highConfidenceWindow:
		return ConfidenceHigh, nil
	case elapsed < mediumConfidenceWindow:
		return ConfidenceMedium, nil
	default:
		return ConfidenceLow, nil
	}
}
