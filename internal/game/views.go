package game

import (
	"github.com/google/uuid"

	"hipsterbar/internal/bar"
)

func newBarView(b *bar.Bar, version int) *BarView {
	revealed := revealedIngredients(b)

	members := b.Members()
	v := &BarView{
		ID:                b.ID(),
		Code:              b.Code().String(),
		Theme:             b.Theme(),
		DefaultQuota:      b.DefaultQuota(),
		Policy:            b.Policy(),
		SubmissionsLocked: b.SubmissionsLocked(),
		Closed:            b.IsClosed(),
		CreatedAt:         b.CreatedAt(),
		Members:           make([]MemberView, len(members)),
		PoolSize:          len(b.Ingredients()),
		Unconsumed:        len(b.UnconsumedIngredients()),
		Played:            []IngredientView{},
		Sessions:          []SessionView{},
		Version:           version,
	}
	for i, m := range members {
		v.Members[i] = newMemberView(m)
	}
	for _, ing := range b.Ingredients() {
		if ing.Consumed {
			v.Played = append(v.Played, newIngredientView(ing, revealed[ing.ID]))
		}
	}
	for _, s := range b.Sessions() {
		sv := SessionView{ID: s.ID, StartedAt: s.StartedAt, EndedAt: s.EndedAt, Cycles: []CycleView{}}
		for _, c := range s.Cycles {
			sv.Cycles = append(sv.Cycles, newCycleView(b, c))
		}
		v.Sessions = append(v.Sessions, sv)
	}
	return v
}

func newMemberView(m bar.Member) MemberView {
	return MemberView{ID: m.ID, DisplayName: m.DisplayName, Quota: m.Quota}
}

func newSubmissionView(s bar.Submission) SubmissionView {
	return SubmissionView{ID: s.ID, SubmittedAt: s.SubmittedAt}
}

func newIngredientView(ing bar.Ingredient, showSubmitters bool) IngredientView {
	v := IngredientView{
		ID:        ing.ID,
		VideoRef:  ing.VideoRef,
		Title:     ing.Title,
		Thumbnail: ing.Thumbnail,
		Consumed:  ing.Consumed,
	}
	if showSubmitters {
		v.Submitters = ing.Submitters
	}
	return v
}

func newCycleView(b *bar.Bar, c bar.Cycle) CycleView {
	v := CycleView{
		ID:           c.ID,
		IngredientID: c.IngredientID,
		StartedAt:    c.StartedAt,
		RevealedAt:   c.RevealedAt,
		Voters:       make([]uuid.UUID, 0, len(c.Votes)),
	}
	for _, vote := range c.Votes {
		v.Voters = append(v.Voters, vote.VoterID)
	}
	if !c.Open() {
		v.Votes = c.Votes
		if res, ok := b.RevealResultFor(c.ID); ok {
			v.Result = &res
		}
	}
	return v
}

// revealedIngredients collects the ingredients played in a revealed cycle.
func revealedIngredients(b *bar.Bar) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	for _, s := range b.Sessions() {
		for _, c := range s.Cycles {
			if !c.Open() {
				out[c.IngredientID] = true
			}
		}
	}
	return out
}

func poolChanged(b *bar.Bar) PoolChangedEvent {
	return PoolChangedEvent{
		PoolSize:   len(b.Ingredients()),
		Unconsumed: len(b.UnconsumedIngredients()),
	}
}
