// Package room holds the authoritative room document and the pure rules that
// operate on it. Nothing here touches storage or transport.
package room

import (
	"time"

	"github.com/samber/lo"
)

// State is the phase a room is in.
type State string

const (
	StateVoting  State = "Voting"
	StateResults State = "Results"
)

// Confidence is derived from how quickly a voter picked an option after voting started.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Moderator is the single participant allowed to drive the room.
type Moderator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Voter is a seated, non-moderating participant.
// Selection and Confidence are either both set or both nil.
type Voter struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Selection  *Option     `json:"selection"`
	Confidence *Confidence `json:"confidence"`
}

// HasVote reports whether the voter has both a selection and a confidence.
func (v Voter) HasVote() bool {
	return v.Selection != nil && v.Confidence != nil
}

// ClearVote returns a copy of v with selection and confidence reset.
func (v Voter) ClearVote() Voter {
	v.Selection = nil
	v.Confidence = nil
	return v
}

// Room is the persisted state of one room.
type Room struct {
	ID                string     `json:"id"`
	RoomCode          string     `json:"roomCode"`
	Moderator         *Moderator `json:"moderator"`
	Voters            []Voter    `json:"voters"`
	Options           []Option   `json:"options"`
	State             State      `json:"state"`
	VotingStartedAt   *time.Time `json:"votingStartedAt"`
	VotingDescription string     `json:"votingDescription"`
	LastUpdated       time.Time  `json:"lastUpdated"`

	// ModeratorVotingProxy is the moderator's own ballot while they also vote.
	// Its ID always equals Moderator.ID.
	ModeratorVotingProxy *Voter `json:"moderatorVotingProxy,omitempty"`
}

// IsModerator reports whether participantID holds the moderator seat.
func (r *Room) IsModerator(participantID string) bool {
	return r.Moderator != nil && r.Moderator.ID == participantID
}

// VoterIndex returns the position of participantID in Voters, or -1.
func (r *Room) VoterIndex(participantID string) int {
	for i := range r.Voters {
		if r.Voters[i].ID == participantID {
			return i
		}
	}
	return -1
}

// IsVoter reports whether participantID is in Voters.
func (r *Room) IsVoter(participantID string) bool {
	return r.VoterIndex(participantID) >= 0
}

// IsSeated reports whether participantID is the moderator or a voter.
func (r *Room) IsSeated(participantID string) bool {
	return r.IsModerator(participantID) || r.IsVoter(participantID)
}

// HasOption reports whether o is one of the room's selectable options.
func (r *Room) HasOption(o Option) bool {
	return lo.Contains(r.Options, o)
}

// NamesExcept returns every seated participant's name except participantID's.
func (r *Room) NamesExcept(participantID string) []string {
	names := make([]string, 0, len(r.Voters)+1)
	if r.Moderator != nil && r.Moderator.ID != participantID {
		names = append(names, r.Moderator.Name)
	}
	for _, v := range r.Voters {
		if v.ID != participantID {
			names = append(names, v.Name)
		}
	}
	return names
}

// Empty reports whether the room has neither a moderator nor voters.
func (r *Room) Empty() bool {
	return r.Moderator == nil && len(r.Voters) == 0
}

// Clone returns a deep copy so callers can mutate without aliasing a cached document.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.Moderator != nil {
		m := *r.Moderator
		c.Moderator = &m
	}
	if r.Voters != nil {
		c.Voters = make([]Voter, len(r.Voters))
		for i, v := range r.Voters {
			c.Voters[i] = cloneVoter(v)
		}
	}
	if r.Options != nil {
		c.Options = append([]Option(nil), r.Options...)
	}
	if r.VotingStartedAt != nil {
		t := *r.VotingStartedAt
		c.VotingStartedAt = &t
	}
	if r.ModeratorVotingProxy != nil {
		p := cloneVoter(*r.ModeratorVotingProxy)
		c.ModeratorVotingProxy = &p
	}
	return &c
}

func cloneVoter(v Voter) Voter {
	if v.Selection != nil {
		s := *v.Selection
		v.Selection = &s
	}
	if v.Confidence != nil {
		c := *v.Confidence
		v.Confidence = &c
	}
	return v
}
