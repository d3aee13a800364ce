package store

import (
	"time"

	"github.com/samber/lo"

	"github.com/cortexuvula/roomsync/internal/room"
)

// Op is one field-level change applied to a freshly read document inside
// the store's write transaction.
type Op func(r *room.Room)

func SetModerator(m *room.Moderator) Op {
	return func(r *room.Room) {
		if m == nil {
			r.Moderator = nil
			return
		}
		c := *m
		r.Moderator = &c
	}
}

// SetVoters replaces the whole voter list.
func SetVoters(voters []room.Voter) Op {
	return func(r *room.Room) {
		r.Voters = append([]room.Voter(nil), voters...)
	}
}

// PushVoter appends a voter.
func PushVoter(v room.Voter) Op {
	return func(r *room.Room) {
		r.Voters = append(r.Voters, v)
	}
}

// PullVoter removes every voter with the given id.
func PullVoter(participantID string) Op {
	return func(r *room.Room) {
		r.Voters = lo.Reject(r.Voters, func(v room.Voter, _ int) bool {
			return v.ID == participantID
		})
	}
}

func SetState(s room.State) Op {
	return func(r *room.Room) { r.State = s }
}

func SetVotingStartedAt(t *time.Time) Op {
	return func(r *room.Room) {
		if t == nil {
			r.VotingStartedAt = nil
			return
		}
		c := *t
		r.VotingStartedAt = &c
	}
}

func SetVotingDescription(d string) Op {
	return func(r *room.Room) { r.VotingDescription = d }
}

// SetVotingProxy sets or, with nil, clears the moderator's own ballot.
func SetVotingProxy(v *room.Voter) Op {
	return func(r *room.Room) {
		if v == nil {
			r.ModeratorVotingProxy = nil
			return
		}
		c := *v
		r.ModeratorVotingProxy = &c
	}
}

// Apply runs ops in order against r.
func Apply(r *room.Room, ops ...Op) {
	for _, op := range ops {
		op(r)
	}
}

// ClearVotes resets selection and confidence on every voter and on the
// moderator's voting proxy.
func ClearVotes() Op {
	return func(r *room.Room) {
		for i := range r.Voters {
			r.Voters[i] = r.Voters[i].ClearVote()
		}
		if r.ModeratorVotingProxy != nil {
			p := r.ModeratorVotingProxy.ClearVote()
			r.ModeratorVotingProxy = &p
		}
	}
}

// SetVote records a selection and confidence on the voter with the given id.
func SetVote(participantID string, selection room.Option, confidence room.Confidence) Op {
	return func(r *room.Room) {
		if i := r.VoterIndex(participantID); i >= 0 {
			r.Voters[i].Selection = &selection
			r.Voters[i].Confidence = &confidence
		}
	}
}

// SetProxyVote records a selection and confidence on the moderator's voting proxy.
func SetProxyVote(selection room.Option, confidence room.Confidence) Op {
	return func(r *room.Room) {
		if r.ModeratorVotingProxy != nil {
			r.ModeratorVotingProxy.Selection = &selection
			r.ModeratorVotingProxy.Confidence = &confidence
		}
	}
}

// SetVoterName renames the voter with the given id.
func SetVoterName(participantID, name string) Op {
	return func(r *room.Room) {
		if i := r.VoterIndex(participantID); i >= 0 {
			r.Voters[i].Name = name
		}
	}
}
