// Package pipeline runs inbound events through their declared chain of
// validator and handler stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cortexuvula/roomsync/internal/room"
)

// Context identifies who sent the event and to which room.
type Context struct {
	ParticipantID string
	RoomCode      string
}

// Stage is one step of an event chain. Returning an error halts the chain.
type Stage interface {
	Run(ctx context.Context, doc *room.Room, c Context, payload any) error
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, doc *room.Room, c Context, payload any) error

func (f StageFunc) Run(ctx context.Context, doc *room.Room, c Context, payload any) error {
	return f(ctx, doc, c, payload)
}

// Validators returns the validator stages declared for kind, in order.
func Validators(kind Kind) []Stage {
	switch kind {
	case KindStartVoting, KindStopVoting, KindModeratorChange, KindKickVoter,
		KindUpdateVotingDescription, KindModeratorVoting:
		return []Stage{RequireModerator}
	case KindOptionSelected:
		return []Stage{RequireVoter}
	case KindChangeName:
		return []Stage{RequireParticipant}
	default:
		return nil
	}
}

// Pipeline maps each Kind to its ordered stage chain.
type Pipeline struct {
	chains map[Kind][]Stage
}

// New builds a pipeline whose chains are the declared validators followed
// by the given terminal handler. Every known kind must have a handler.
func New(handlers map[Kind]Stage) (*Pipeline, error) {
	p := &Pipeline{chains: make(map[Kind][]Stage, len(handlers))}
	for _, k := range Kinds() {
		h, ok := handlers[k]
		if !ok || h == nil {
			return nil, fmt.Errorf("no handler registered for %s", k)
		}
		p.chains[k] = append(Validators(k), h)
	}
	return p, nil
}

// Chain returns the stages that run for kind.
func (p *Pipeline) Chain(kind Kind) []Stage {
	return p.chains[kind]
}

// Run executes the chain for kind in order. The first error halts it.
// A panic in any stage is recovered and returned wrapping ErrStagePanic.
func (p *Pipeline) Run(ctx context.Context, kind Kind, doc *room.Room, c Context, payload any) (err error) {
	chain, ok := p.chains[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, kind)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline stage panicked", "event", kind.String(), "room", c.RoomCode, "participant", c.ParticipantID, "panic", r)
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
	}()

	for _, stage := range chain {
		if err := stage.Run(ctx, doc, c, payload); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) && ve.Kind == KindUnknown {
				ve.Kind = kind
			}
			return err
		}
	}
	return nil
}
