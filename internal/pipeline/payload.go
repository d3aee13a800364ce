package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
)

type JoinPayload struct {
	Name string `mapstructure:"name"`
}

type OptionSelectedPayload struct {
	Selection string `mapstructure:"selection"`
}

type ModeratorChangePayload struct {
	NewModeratorID string `mapstructure:"newModeratorId"`
}

type KickVoterPayload struct {
	VoterID string `mapstructure:"voterId"`
}

type UpdateVotingDescriptionPayload struct {
	Value string `mapstructure:"value"`
}

type ChangeNamePayload struct {
	Value string `mapstructure:"value"`
}

type ModeratorVotingPayload struct {
	Enabled bool `mapstructure:"enabled"`
}

// Empty is the payload of events that carry no fields.
type Empty struct{}

func newPayload(k Kind) any {
	switch k {
	case KindJoin:
		return &JoinPayload{}
	case KindOptionSelected:
		return &OptionSelectedPayload{}
	case KindModeratorChange:
		return &ModeratorChangePayload{}
	case KindKickVoter:
		return &KickVoterPayload{}
	case KindUpdateVotingDescription:
		return &UpdateVotingDescriptionPayload{}
	case KindChangeName:
		return &ChangeNamePayload{}
	case KindModeratorVoting:
		return &ModeratorVotingPayload{}
	default:
		return &Empty{}
	}
}

// Decode parses a flat JSON event object such as
// {"event":"OptionSelected","selection":5} into its kind and typed payload.
// Field types are decoded weakly, so numeric selections arrive as strings.
func Decode(raw []byte) (Kind, any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return KindUnknown, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	name, _ := fields["event"].(string)
	if name == "" {
		return KindUnknown, nil, fmt.Errorf("%w: missing event field", ErrMalformedEvent)
	}
	kind, ok := ParseKind(name)
	if !ok {
		return KindUnknown, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	delete(fields, "event")

	payload := newPayload(kind)
	if err := mapstructure.WeakDecode(fields, payload); err != nil {
		return kind, nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, kind, err)
	}
	return kind, payload, nil
}
