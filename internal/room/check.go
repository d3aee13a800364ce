package room

import (
	"fmt"
)

// Check verifies the document invariants that every mutation must preserve.
func (r *Room) Check() error {
	seen := make(map[string]struct{}, len(r.Voters)+1)
	if r.Moderator != nil {
		seen[r.Moderator.ID] = struct{}{}
	}
	for _, v := range r.Voters {
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("participant %q seated more than once", v.ID)
		}
		seen[v.ID] = struct{}{}
		if err := r.checkVote(v); err != nil {
			return err
		}
	}
	if p := r.ModeratorVotingProxy; p != nil {
		if r.Moderator == nil || p.ID != r.Moderator.ID {
			return fmt.Errorf("voting proxy %q does not belong to the moderator", p.ID)
		}
		if err := r.checkVote(*p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Room) checkVote(v Voter) error {
	if (v.Selection == nil) != (v.Confidence == nil) {
		return fmt.Errorf("voter %q has selection without confidence or vice versa", v.ID)
	}
	if v.Selection != nil && !r.HasOption(*v.Selection) {
		return fmt.Errorf("voter %q selected %q which is not an option", v.ID, *v.Selection)
	}
	return nil
}
