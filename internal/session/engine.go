// Package session implements the room session engine: it routes inbound
// events through the pipeline, persists their effects and fans the
// resulting room document out to every connection in the room.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexuvula/roomsync/internal/metrics"
	"github.com/cortexuvula/roomsync/internal/pipeline"
	"github.com/cortexuvula/roomsync/internal/registry"
	"github.com/cortexuvula/roomsync/internal/room"
	"github.com/cortexuvula/roomsync/internal/store"
)

// errNoDocument marks an attempt to broadcast without a room document.
var errNoDocument = errors.New("broadcast without room document")

// Engine owns no per-room locks. Concurrent handlers touching the same room
// each read, validate and write independently; the last persisted write wins.
type Engine struct {
	store    store.Store
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for votingStartedAt and confidence.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(s store.Store, reg *registry.Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    s,
		registry: reg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	p, err := pipeline.New(map[pipeline.Kind]pipeline.Stage{
		pipeline.KindJoin:                    pipeline.StageFunc(e.join),
		pipeline.KindStartVoting:             pipeline.StageFunc(e.startVoting),
		pipeline.KindStopVoting:              pipeline.StageFunc(e.stopVoting),
		pipeline.KindOptionSelected:          pipeline.StageFunc(e.optionSelected),
		pipeline.KindModeratorChange:         pipeline.StageFunc(e.moderatorChange),
		pipeline.KindKickVoter:               pipeline.StageFunc(e.kickVoter),
		pipeline.KindUpdateVotingDescription: pipeline.StageFunc(e.updateVotingDescription),
		pipeline.KindChangeName:              pipeline.StageFunc(e.changeName),
		pipeline.KindModeratorVoting:         pipeline.StageFunc(e.moderatorVoting),
	})
	if err != nil {
		return nil, err
	}
	e.pipeline = p
	return e, nil
}

// Registry returns the connection registry the engine broadcasts through.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Open registers conn for key, superseding any earlier connection, and
// sends the Connected greeting.
func (e *Engine) Open(ctx context.Context, key registry.Key, conn registry.Conn) error {
	exists, err := e.RoomExists(ctx, key.RoomCode)
	if err != nil {
		return fmt.Errorf("checking room %s: %w", key.RoomCode, err)
	}
	msg, err := encodeConnected(key.ParticipantID, exists)
	if err != nil {
		return err
	}
	// Connected is queued before any broadcast can reach conn.
	e.registry.Put(key, conn)
	e.send(conn, msg)
	e.updateRoomGauge()
	return nil
}

// RoomExists reports whether a room with the given code is stored.
func (e *Engine) RoomExists(ctx context.Context, roomCode string) (bool, error) {
	_, err := e.store.FindByRoomCode(ctx, roomCode)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HandleMessage decodes one inbound JSON event from key and runs it through
// its pipeline chain. The returned error is for callers that want it; the
// engine has already logged it.
func (e *Engine) HandleMessage(ctx context.Context, key registry.Key, raw []byte) error {
	log := slog.With("room", key.RoomCode, "participant", key.ParticipantID)

	kind, payload, err := pipeline.Decode(raw)
	if err != nil {
		log.Info("discarding inbound event", "error", err)
		e.recordEvent(kind, metrics.OutcomeRejected)
		return err
	}

	c := pipeline.Context{ParticipantID: key.ParticipantID, RoomCode: key.RoomCode}
	doc, err := e.store.FindByRoomCode(ctx, key.RoomCode)
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = &pipeline.ValidationError{Kind: kind, Message: "room does not exist"}
	case err != nil:
		err = fmt.Errorf("loading room: %w", err)
	default:
		err = e.pipeline.Run(ctx, kind, doc, c, payload)
	}

	switch {
	case err == nil:
		log.Debug("event applied", "event", kind.String())
		e.recordEvent(kind, metrics.OutcomeApplied)
	case pipeline.IsValidation(err):
		log.Info("event rejected", "event", kind.String(), "reason", err)
		e.recordEvent(kind, metrics.OutcomeRejected)
	default:
		log.Error("event failed", "event", kind.String(), "error", err)
		e.recordEvent(kind, metrics.OutcomeFailed)
		e.recordError("event")
	}
	return err
}

// Leave removes key's participant from their room. The moderator seat passes
// to the first voter; a moderator leaving an otherwise empty room deletes it.
// A participant holding no seat leaves the room untouched.
func (e *Engine) Leave(ctx context.Context, key registry.Key) error {
	log := slog.With("room", key.RoomCode, "participant", key.ParticipantID)
	defer e.updateRoomGauge()

	doc, err := e.store.FindByRoomCode(ctx, key.RoomCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Error("leave: loading room failed", "error", err)
		e.recordError("store")
		return err
	}

	if !doc.IsSeated(key.ParticipantID) {
		return nil
	}
	if !doc.IsModerator(key.ParticipantID) {
		err = e.persist(ctx, doc, store.PullVoter(key.ParticipantID))
		if err != nil {
			log.Error("leave failed", "error", err)
		}
		return err
	}

	if len(doc.Voters) == 0 {
		if err := e.store.DeleteByRoomCode(ctx, key.RoomCode); err != nil {
			log.Error("leave: deleting room failed", "error", err)
			e.recordError("store")
			return err
		}
		log.Info("room deleted, moderator left an empty room")
		e.recordRoomDeleted("empty")
		return nil
	}

	next := doc.Voters[0]
	err = e.persist(ctx, doc,
		store.PullVoter(next.ID),
		store.SetModerator(&room.Moderator{ID: next.ID, Name: next.Name}),
		store.SetVotingProxy(nil),
	)
	if err != nil {
		log.Error("leave: promoting moderator failed", "error", err)
		return err
	}
	log.Info("moderator left, promoted first voter", "new_moderator", next.ID)
	return nil
}

// CreateRoom stores an empty room with the given options under a fresh code.
// The first participant to join becomes its moderator.
func (e *Engine) CreateRoom(ctx context.Context, options []room.Option) (*room.Room, error) {
	if err := room.ValidateOptions(options); err != nil {
		return nil, err
	}
	doc := &room.Room{
		Voters:  []room.Voter{},
		Options: options,
		State:   room.StateResults,
	}
	if err := store.Insert(ctx, e.store, doc); err != nil {
		e.recordError("store")
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RoomsCreatedTotal.Inc()
	}
	slog.Info("room created", "room", doc.RoomCode, "options", len(options))
	return doc, nil
}

// persist applies ops to doc's stored copy and broadcasts the result.
// A room that vanished in the meantime is a lookup failure.
func (e *Engine) persist(ctx context.Context, doc *room.Room, ops ...store.Op) error {
	updated, err := e.apply(ctx, doc, ops...)
	if err != nil {
		return err
	}
	return e.broadcast(updated, "")
}

func (e *Engine) apply(ctx context.Context, doc *room.Room, ops ...store.Op) (*room.Room, error) {
	updated, err := e.store.UpdateByID(ctx, doc.ID, ops...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, pipeline.Reject("room %s no longer exists", doc.RoomCode)
	}
	if err != nil {
		e.recordError("store")
		return nil, fmt.Errorf("updating room %s: %w", doc.RoomCode, err)
	}
	return updated, nil
}

// broadcast sends a RoomUpdate for doc to every connection in its room
// except the one belonging to skipID.
func (e *Engine) broadcast(doc *room.Room, skipID string) error {
	if doc == nil {
		return errNoDocument
	}
	msg, err := encodeRoomUpdate(doc)
	if err != nil {
		return err
	}
	var skip registry.Conn
	if skipID != "" {
		skip, _ = e.registry.Get(registry.Key{RoomCode: doc.RoomCode, ParticipantID: skipID})
	}
	for _, c := range e.registry.ForRoom(doc.RoomCode) {
		if skip != nil && c == skip {
			continue
		}
		e.send(c, msg)
	}
	if e.metrics != nil {
		e.metrics.BroadcastsTotal.Inc()
	}
	return nil
}

// sendRoomUpdate sends doc to key's connection only, if one is registered.
func (e *Engine) sendRoomUpdate(key registry.Key, doc *room.Room) error {
	if doc == nil {
		return errNoDocument
	}
	conn, ok := e.registry.Get(key)
	if !ok {
		return nil
	}
	msg, err := encodeRoomUpdate(doc)
	if err != nil {
		return err
	}
	e.send(conn, msg)
	return nil
}

// send never fails the caller; a dead recipient is only counted.
func (e *Engine) send(conn registry.Conn, msg []byte) {
	if !conn.Open() {
		return
	}
	if err := conn.Send(msg); err != nil {
		slog.Debug("send failed", "error", err)
		if e.metrics != nil {
			e.metrics.SendFailuresTotal.Inc()
		}
	}
}

func (e *Engine) recordEvent(kind pipeline.Kind, outcome string) {
	if e.metrics != nil {
		e.metrics.EventsTotal.WithLabelValues(kind.String(), outcome).Inc()
	}
}

func (e *Engine) recordError(kind string) {
	if e.metrics != nil {
		e.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
	}
}

func (e *Engine) recordRoomDeleted(reason string) {
	if e.metrics != nil {
		e.metrics.RoomsDeleted.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) updateRoomGauge() {
	if e.metrics != nil {
		e.metrics.ActiveRooms.Set(float64(e.registry.RoomCount()))
	}
}
