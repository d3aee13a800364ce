package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexuvula/roomsync/internal/room"
)

func testRoom() *room.Room {
	return &room.Room{
		RoomCode:  "ABCD",
		Moderator: &room.Moderator{ID: "mod", Name: "Mod"},
		Voters:    []room.Voter{{ID: "v1", Name: "V1"}},
		Options:   []room.Option{"1", "2"},
		State:     room.StateResults,
	}
}

func recordingHandlers(calls *[]Kind) map[Kind]Stage {
	h := make(map[Kind]Stage)
	for _, k := range Kinds() {
		k := k
		h[k] = StageFunc(func(context.Context, *room.Room, Context, any) error {
			*calls = append(*calls, k)
			return nil
		})
	}
	return h
}

func TestNewRequiresEveryHandler(t *testing.T) {
	var calls []Kind
	h := recordingHandlers(&calls)
	delete(h, KindKickVoter)
	_, err := New(h)
	assert.Error(t, err)
}

func TestDeclaredChains(t *testing.T) {
	var calls []Kind
	p, err := New(recordingHandlers(&calls))
	require.NoError(t, err)

	assert.Len(t, p.Chain(KindJoin), 1, "join runs the handler only")
	for _, k := range []Kind{KindStartVoting, KindStopVoting, KindModeratorChange, KindKickVoter, KindUpdateVotingDescription, KindOptionSelected, KindChangeName, KindModeratorVoting} {
		assert.Len(t, p.Chain(k), 2, "%s has one validator plus handler", k)
	}
}

func TestRunHaltsOnFirstError(t *testing.T) {
	var calls []Kind
	p, err := New(recordingHandlers(&calls))
	require.NoError(t, err)
	doc := testRoom()

	err = p.Run(context.Background(), KindStartVoting, doc, Context{ParticipantID: "v1"}, &Empty{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "StartVoting")
	assert.Empty(t, calls, "handler must not run after a failed validator")

	require.NoError(t, p.Run(context.Background(), KindStartVoting, doc, Context{ParticipantID: "mod"}, &Empty{}))
	assert.Equal(t, []Kind{KindStartVoting}, calls)
}

func TestRunRecoversPanics(t *testing.T) {
	var calls []Kind
	h := recordingHandlers(&calls)
	h[KindJoin] = StageFunc(func(context.Context, *room.Room, Context, any) error {
		panic("boom")
	})
	p, err := New(h)
	require.NoError(t, err)

	err = p.Run(context.Background(), KindJoin, testRoom(), Context{}, &JoinPayload{})
	assert.ErrorIs(t, err, ErrStagePanic)
	assert.False(t, IsValidation(err))
}

func TestRunPropagatesHandlerError(t *testing.T) {
	var calls []Kind
	h := recordingHandlers(&calls)
	fatal := errors.New("store down")
	h[KindStopVoting] = StageFunc(func(context.Context, *room.Room, Context, any) error { return fatal })
	p, err := New(h)
	require.NoError(t, err)

	err = p.Run(context.Background(), KindStopVoting, testRoom(), Context{ParticipantID: "mod"}, &Empty{})
	assert.ErrorIs(t, err, fatal)
	assert.False(t, IsValidation(err))
}

func TestValidators(t *testing.T) {
	ctx := context.Background()
	doc := testRoom()

	tests := []struct {
		name        string
		stage       Stage
		participant string
		withProxy   bool
		pass        bool
	}{
		{"moderator passes require-moderator", RequireModerator, "mod", false, true},
		{"voter fails require-moderator", RequireModerator, "v1", false, false},
		{"voter passes require-voter", RequireVoter, "v1", false, true},
		{"moderator fails require-voter", RequireVoter, "mod", false, false},
		{"moderator with proxy passes require-voter", RequireVoter, "mod", true, true},
		{"stranger fails require-voter", RequireVoter, "x", false, false},
		{"moderator passes require-participant", RequireParticipant, "mod", false, true},
		{"voter passes require-participant", RequireParticipant, "v1", false, true},
		{"stranger fails require-participant", RequireParticipant, "x", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := doc.Clone()
			if tt.withProxy {
				d.ModeratorVotingProxy = &room.Voter{ID: "mod", Name: "Mod"}
			}
			err := tt.stage.Run(ctx, d, Context{ParticipantID: tt.participant}, nil)
			if tt.pass {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsValidation(err), "want validation error, got %v", err)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	kind, payload, err := Decode([]byte(`{"event":"OptionSelected","selection":5}`))
	require.NoError(t, err)
	assert.Equal(t, KindOptionSelected, kind)
	assert.Equal(t, &OptionSelectedPayload{Selection: "5"}, payload)

	kind, payload, err = Decode([]byte(`{"event":"OptionSelected","selection":0.5}`))
	require.NoError(t, err)
	assert.Equal(t, &OptionSelectedPayload{Selection: "0.5"}, payload)

	kind, payload, err = Decode([]byte(`{"event":"Join","name":"Alice"}`))
	require.NoError(t, err)
	assert.Equal(t, KindJoin, kind)
	assert.Equal(t, &JoinPayload{Name: "Alice"}, payload)

	_, payload, err = Decode([]byte(`{"event":"ModeratorChange","newModeratorId":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, &ModeratorChangePayload{NewModeratorID: "abc"}, payload)

	_, payload, err = Decode([]byte(`{"event":"ModeratorVoting","enabled":true}`))
	require.NoError(t, err)
	assert.Equal(t, &ModeratorVotingPayload{Enabled: true}, payload)

	kind, payload, err = Decode([]byte(`{"event":"StartVoting"}`))
	require.NoError(t, err)
	assert.Equal(t, KindStartVoting, kind)
	assert.Equal(t, &Empty{}, payload)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, _, err = Decode([]byte(`{"name":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, _, err = Decode([]byte(`{"event":"Dance"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		got, ok := ParseKind(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, got)
	}
	_, ok := ParseKind("Nope")
	assert.False(t, ok)
	assert.Equal(t, "Unknown", KindUnknown.String())
}
