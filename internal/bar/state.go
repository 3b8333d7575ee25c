package bar

import (
	"time"

	"github.com/google/uuid"
)

// State is the complete persisted form of a bar.
type State struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	Theme             string           `json:"theme"`
	DefaultQuota      int              `json:"default_quota"`
	Policy            SubmissionPolicy `json:"policy"`
	SubmissionsLocked bool             `json:"submissions_locked"`
	CreatedAt         time.Time        `json:"created_at"`
	Members           []Member         `json:"members"`
	Ingredients       []Ingredient     `json:"ingredients"`
	Submissions       []Submission     `json:"submissions"`
	Sessions          []Session        `json:"sessions"`
}

// Snapshot returns a deep copy of the aggregate's state.
func (b *Bar) Snapshot() State {
	return State{
		ID:                b.id,
		Code:              string(b.code),
		Theme:             b.theme,
		DefaultQuota:      b.defaultQuota,
		Policy:            b.policy,
		SubmissionsLocked: b.locked,
		CreatedAt:         b.createdAt,
		Members:           b.Members(),
		Ingredients:       b.Ingredients(),
		Submissions:       b.Submissions(),
		Sessions:          b.Sessions(),
	}
}

// Restore rebuilds a bar from previously persisted state, rejecting state
// that breaks the aggregate's structural invariants.
func Restore(st State) (*Bar, error) {
	b, err := New(st.ID, st.Code, st.Theme, st.DefaultQuota, st.Policy, st.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.locked = st.SubmissionsLocked

	names := make(map[string]bool, len(st.Members))
	for _, m := range st.Members {
		if m.ID == uuid.Nil || m.Quota < 1 {
			return nil, violation(ErrInvalidBar, "stored member %s is invalid", m.ID)
		}
		m.NormalizedName = normalizeName(m.DisplayName)
		if names[m.NormalizedName] || b.memberIndex(m.ID) >= 0 {
			return nil, violation(ErrInvalidBar, "stored member %s is duplicated", m.ID)
		}
		names[m.NormalizedName] = true
		b.members = append(b.members, m)
	}

	refs := make(map[string]bool, len(st.Ingredients))
	for _, ing := range st.Ingredients {
		if ing.ID == uuid.Nil || ing.VideoRef == "" || refs[ing.VideoRef] || b.ingredientIndex(ing.ID) >= 0 {
			return nil, violation(ErrInvalidBar, "stored ingredient %s is invalid", ing.ID)
		}
		refs[ing.VideoRef] = true
		b.ingredients = append(b.ingredients, cloneIngredient(ing))
	}

	for _, s := range st.Submissions {
		if s.ID == uuid.Nil || b.memberIndex(s.MemberID) < 0 || b.ingredientIndex(s.IngredientID) < 0 {
			return nil, violation(ErrInvalidBar, "stored submission %s is invalid", s.ID)
		}
		b.submissions = append(b.submissions, s)
	}

	active := 0
	for _, s := range st.Sessions {
		if s.ID == uuid.Nil || b.sessionIndex(s.ID) >= 0 {
			return nil, violation(ErrInvalidBar, "stored session %s is invalid", s.ID)
		}
		if s.Active() {
			active++
		}
		for i, c := range s.Cycles {
			if c.Open() && i != len(s.Cycles)-1 {
				return nil, violation(ErrInvalidBar, "stored session %s has more than one open cycle", s.ID)
			}
			voters := make(map[uuid.UUID]bool, len(c.Votes))
			for _, v := range c.Votes {
				if voters[v.VoterID] {
					return nil, violation(ErrInvalidBar, "stored cycle %s has duplicate votes", c.ID)
				}
				voters[v.VoterID] = true
			}
		}
		b.sessions = append(b.sessions, cloneSession(s))
	}
	if active > 1 {
		return nil, violation(ErrInvalidBar, "stored bar has more than one active session")
	}
	return b, nil
}
