package session

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/cortexuvula/roomsync/internal/pipeline"
	"github.com/cortexuvula/roomsync/internal/registry"
	"github.com/cortexuvula/roomsync/internal/room"
	"github.com/cortexuvula/roomsync/internal/store"
)

const (
	maxDescriptionLength   = 1000
	maxDescriptionNewlines = 9
)

func keyOf(c pipeline.Context) registry.Key {
	return registry.Key{RoomCode: c.RoomCode, ParticipantID: c.ParticipantID}
}

func (e *Engine) join(ctx context.Context, doc *room.Room, c pipeline.Context, payload any) error {
	p := payload.(*pipeline.JoinPayload)

	// Reconnect: already seated, so just resend the room to this connection.
	if doc.IsSeated(c.ParticipantID) {
		return e.sendRoomUpdate(keyOf(c), doc)
	}

	if strings.TrimSpace(p.Name) == "" {
		return pipeline.Reject("name is required")
	}
	name, err := room.CleanseName(p.Name, doc.NamesExcept(c.ParticipantID))
	if err != nil {
		return pipeline.Reject("%v", err)
	}

	if doc.Moderator == nil {
		return e.persist(ctx, doc, store.SetModerator(&room.Moderator{ID: c.ParticipantID, Name: name}))
	}
	return e.persist(ctx, doc, store.PushVoter(room.Voter{ID: c.ParticipantID, Name: name}))
}

func (e *Engine) startVoting(ctx context.Context, doc *room.Room, _ pipeline.Context, _ any) error {
	started := e.now().UTC()
	return e.persist(ctx, doc,
		store.ClearVotes(),
		store.SetState(room.StateVoting),
		store.SetVotingStartedAt(&started),
	)
}

func (e *Engine) stopVoting(ctx context.Context, doc *room.Room, _ pipeline.Context, _ any) error {
	return e.persist(ctx, doc, store.SetState(room.StateResults))
}

func (e *Engine) optionSelected(ctx context.Context, doc *room.Room, c pipeline.Context, payload any) error {
	p := payload.(*pipeline.OptionSelectedPayload)
	selection := room.Option(p.Selection)
	if !doc.HasOption(selection) {
		return pipeline.Reject("%q is not one of the room's options", p.Selection)
	}

	confidence, err := room.CalculateConfidence(doc.VotingStartedAt, e.now())
	if err != nil {
		return fmt.Errorf("selection in room %s: %w", doc.RoomCode, err)
	}

	if doc.IsVoter(c.ParticipantID) {
		return e.persist(ctx, doc, store.SetVote(c.ParticipantID, selection, confidence))
	}
	return e.persist(ctx, doc, store.SetProxyVote(selection, confidence))
}

func (e *Engine) moderatorChange(ctx context.Context, doc *room.Room, _ pipeline.Context, payload any) error {
	p := payload.(*pipeline.ModeratorChangePayload)

	target, ok := lo.Find(doc.Voters, func(v room.Voter) bool { return v.ID == p.NewModeratorID })
	if !ok {
		return pipeline.Reject("no voter %q to make moderator", p.NewModeratorID)
	}

	demoted := room.Voter{ID: doc.Moderator.ID, Name: doc.Moderator.Name}
	if proxy := doc.ModeratorVotingProxy; proxy != nil && proxy.HasVote() {
		demoted.Selection = proxy.Selection
		demoted.Confidence = proxy.Confidence
	}

	return e.persist(ctx, doc,
		store.PullVoter(target.ID),
		store.SetVotingProxy(nil),
		store.SetModerator(&room.Moderator{ID: target.ID, Name: target.Name}),
		store.PushVoter(demoted),
	)
}

func (e *Engine) kickVoter(ctx context.Context, doc *room.Room, c pipeline.Context, payload any) error {
	p := payload.(*pipeline.KickVoterPayload)
	if p.VoterID == c.ParticipantID {
		return pipeline.Reject("moderator cannot kick themselves")
	}

	updated, err := e.apply(ctx, doc, store.PullVoter(p.VoterID))
	if pipeline.IsValidation(err) {
		// Room already gone, nothing left to kick from.
		return nil
	}
	if err != nil {
		return err
	}
	broadcastErr := e.broadcast(updated, p.VoterID)

	kicked := registry.Key{RoomCode: doc.RoomCode, ParticipantID: p.VoterID}
	if conn, ok := e.registry.Get(kicked); ok {
		e.send(conn, kickedPayload)
		e.registry.CompareAndRemove(kicked, conn)
	}
	return broadcastErr
}

func (e *Engine) updateVotingDescription(ctx context.Context, doc *room.Room, _ pipeline.Context, payload any) error {
	p := payload.(*pipeline.UpdateVotingDescriptionPayload)
	value := strings.TrimSpace(p.Value)
	if utf8.RuneCountInString(value) > maxDescriptionLength {
		return pipeline.Reject("description longer than %d characters", maxDescriptionLength)
	}
	if strings.Count(value, "\n") > maxDescriptionNewlines {
		return pipeline.Reject("description has more than %d line breaks", maxDescriptionNewlines)
	}
	return e.persist(ctx, doc, store.SetVotingDescription(value))
}

func (e *Engine) changeName(ctx context.Context, doc *room.Room, c pipeline.Context, payload any) error {
	p := payload.(*pipeline.ChangeNamePayload)
	if strings.TrimSpace(p.Value) == "" {
		return pipeline.Reject("name is required")
	}
	name, err := room.CleanseName(p.Value, doc.NamesExcept(c.ParticipantID))
	if err != nil {
		return pipeline.Reject("%v", err)
	}

	if !doc.IsModerator(c.ParticipantID) {
		return e.persist(ctx, doc, store.SetVoterName(c.ParticipantID, name))
	}
	ops := []store.Op{store.SetModerator(&room.Moderator{ID: c.ParticipantID, Name: name})}
	if proxy := doc.ModeratorVotingProxy; proxy != nil {
		renamed := *proxy
		renamed.Name = name
		ops = append(ops, store.SetVotingProxy(&renamed))
	}
	return e.persist(ctx, doc, ops...)
}

// moderatorVoting toggles the moderator's own ballot.
func (e *Engine) moderatorVoting(ctx context.Context, doc *room.Room, c pipeline.Context, payload any) error {
	p := payload.(*pipeline.ModeratorVotingPayload)
	hasProxy := doc.ModeratorVotingProxy != nil
	if p.Enabled == hasProxy {
		return e.sendRoomUpdate(keyOf(c), doc)
	}
	if !p.Enabled {
		return e.persist(ctx, doc, store.SetVotingProxy(nil))
	}
	return e.persist(ctx, doc, store.SetVotingProxy(&room.Voter{ID: doc.Moderator.ID, Name: doc.Moderator.Name}))
}
