package pipeline

import (
	"context"

	"github.com/cortexuvula/roomsync/internal/room"
)

// RequireModerator passes only for the room's moderator.
var RequireModerator Stage = StageFunc(func(_ context.Context, doc *room.Room, c Context, _ any) error {
	if !doc.IsModerator(c.ParticipantID) {
		return Reject("participant is not the moderator")
	}
	return nil
})

// RequireVoter passes for a seated voter, and for the moderator while they
// hold a voting proxy.
var RequireVoter Stage = StageFunc(func(_ context.Context, doc *room.Room, c Context, _ any) error {
	if doc.IsVoter(c.ParticipantID) {
		return nil
	}
	if doc.IsModerator(c.ParticipantID) && doc.ModeratorVotingProxy != nil {
		return nil
	}
	return Reject("participant is not a voter")
})

// RequireParticipant passes when either RequireModerator or RequireVoter would.
var RequireParticipant Stage = StageFunc(func(ctx context.Context, doc *room.Room, c Context, payload any) error {
	if RequireModerator.Run(ctx, doc, c, payload) == nil || RequireVoter.Run(ctx, doc, c, payload) == nil {
		return nil
	}
	return Reject("participant is not in the room")
})
