package pipeline

// Kind discriminates inbound client events.
type Kind int

const (
	KindUnknown Kind = iota
	KindJoin
	KindStartVoting
	KindStopVoting
	KindOptionSelected
	KindModeratorChange
	KindKickVoter
	KindUpdateVotingDescription
	KindChangeName
	KindModeratorVoting
)

var kindNames = map[Kind]string{
	KindJoin:                    "Join",
	KindStartVoting:             "StartVoting",
	KindStopVoting:              "StopVoting",
	KindOptionSelected:          "OptionSelected",
	KindModeratorChange:         "ModeratorChange",
	KindKickVoter:               "KickVoter",
	KindUpdateVotingDescription: "UpdateVotingDescription",
	KindChangeName:              "ChangeName",
	KindModeratorVoting:         "ModeratorVoting",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// ParseKind maps a wire event name to its Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// Kinds returns every known event kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindJoin,
		KindStartVoting,
		KindStopVoting,
		KindOptionSelected,
		KindModeratorChange,
		KindKickVoter,
		KindUpdateVotingDescription,
		KindChangeName,
		KindModeratorVoting,
	}
}
