// internal/bar/bar.go
package bar

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinNameLength  = 3
	MaxNameLength  = 20
	MaxThemeLength = 60
)

// Bar is the aggregate root of one game. It is not safe for concurrent use;
// callers serialize access per bar.
type Bar struct {
	id           uuid.UUID
	code         Code
	theme        string
	defaultQuota int
	policy       SubmissionPolicy
	locked       bool
	createdAt    time.Time

	members     []Member
	ingredients []Ingredient
	submissions []Submission
	sessions    []Session
}

// New creates an empty bar.
func New(id uuid.UUID, code, theme string, defaultQuota int, policy SubmissionPolicy, createdAt time.Time) (*Bar, error) {
	if id == uuid.Nil {
		return nil, violation(ErrInvalidBar, "bar id is required")
	}
	c, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	t, err := normalizeTheme(theme)
	if err != nil {
		return nil, err
	}
	if defaultQuota < 1 {
		return nil, violation(ErrInvalidQuota, "quota must be at least 1")
	}
	if !policy.Valid() {
		return nil, violation(ErrInvalidBar, "unknown submission policy %q", policy)
	}
	return &Bar{
		id:           id,
		code:         c,
		theme:        t,
		defaultQuota: defaultQuota,
		policy:       policy,
		createdAt:    createdAt,
	}, nil
}

func normalizeTheme(theme string) (string, error) {
	t := strings.TrimSpace(theme)
	if t == "" {
		return "", violation(ErrInvalidBar, "theme is required")
	}
	if utf8.RuneCountInString(t) > MaxThemeLength {
		return "", violation(ErrInvalidBar, "theme must be at most %d characters", MaxThemeLength)
	}
	return t, nil
}

func (b *Bar) ID() uuid.UUID { return b.id }
func (b *Bar) Code() Code { return b.code }
func (b *Bar) Theme() string { return b.theme }
func (b *Bar) DefaultQuota() int { return b.defaultQuota }
func (b *Bar) Policy() SubmissionPolicy { return b.policy }
func (b *Bar) SubmissionsLocked() bool { return b.locked }
func (b *Bar) CreatedAt() time.Time { return b.createdAt }

// IsClosed reports whether every ingredient in a non-empty pool has been
// played.
func (b *Bar) IsClosed() bool {
	if len(b.ingredients) == 0 {
		return false
	}
	for _, ing := range b.ingredients {
		if !ing.Consumed {
			return false
		}
	}
	return true
}

// Join adds a member with the bar's current default quota.
func (b *Bar) Join(id uuid.UUID, displayName string) (Member, error) {
	if id == uuid.Nil {
		return Member{}, violation(ErrInvalidMember, "member id is required")
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		return Member{}, violation(ErrInvalidMember, "display name is required")
	}
	if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
		return Member{}, violation(ErrInvalidMember, "display name must be between %d and %d characters", MinNameLength, MaxNameLength)
	}
	normalized := normalizeName(name)
	for _, m := range b.members {
		if m.ID == id {
			return Member{}, violation(ErrDuplicateID, "member already joined")
		}
		if m.NormalizedName == normalized {
			return Member{}, violation(ErrDuplicateName, "display name %q is already taken", name)
		}
	}
	m := Member{
		ID:             id,
		DisplayName:    name,
		NormalizedName: normalized,
		Quota:          b.defaultQuota,
	}
	b.members = append(b.members, m)
	return m, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SetMemberQuota changes one member's quota. Lowering it below what the
// member already submitted only blocks further submissions.
func (b *Bar) SetMemberQuota(memberID uuid.UUID, quota int) (Member, error) {
	if quota < 1 {
		return Member{}, violation(ErrInvalidQuota, "quota must be at least 1")
	}
	idx := b.memberIndex(memberID)
	if idx < 0 {
		return Member{}, violation(ErrUnknownMember, "member not found")
	}
	b.members[idx].Quota = quota
	return b.members[idx], nil
}

// SetDefaultQuota changes the quota given to members who join later.
func (b *Bar) SetDefaultQuota(quota int) error {
	if quota < 1 {
		return violation(ErrInvalidQuota, "quota must be at least 1")
	}
	b.defaultQuota = quota
	return nil
}

func (b *Bar) memberIndex(id uuid.UUID) int {
	if id == uuid.Nil {
		return -1
	}
	for i, m := range b.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Member looks up a member by id.
func (b *Bar) Member(id uuid.UUID) (Member, bool) {
	idx := b.memberIndex(id)
	if idx < 0 {
		return Member{}, false
	}
	return b.members[idx], true
}

// RequireMember is Member for callers that need a violation when the id is
// not on the roster.
func (b *Bar) RequireMember(id uuid.UUID) (Member, error) {
	m, ok := b.Member(id)
	if !ok {
		return Member{}, violation(ErrUnknownMember, "member %s is not in this bar", id)
	}
	return m, nil
}

// Members returns the roster in join order.
func (b *Bar) Members() []Member {
	return append([]Member(nil), b.members...)
}

// Ingredients returns the pool in submission order.
func (b *Bar) Ingredients() []Ingredient {
	out := make([]Ingredient, len(b.ingredients))
	for i, ing := range b.ingredients {
		out[i] = cloneIngredient(ing)
	}
	return out
}

// UnconsumedIngredients returns the entries that can still be played.
func (b *Bar) UnconsumedIngredients() []Ingredient {
	var out []Ingredient
	for _, ing := range b.ingredients {
		if !ing.Consumed {
			out = append(out, cloneIngredient(ing))
		}
	}
	return out
}

// Ingredient looks up a pool entry by id.
func (b *Bar) Ingredient(id uuid.UUID) (Ingredient, bool) {
	idx := b.ingredientIndex(id)
	if idx < 0 {
		return Ingredient{}, false
	}
	return cloneIngredient(b.ingredients[idx]), true
}

// Submissions returns the whole ledger.
func (b *Bar) Submissions() []Submission {
	return append([]Submission(nil), b.submissions...)
}

// SubmissionsBy returns the ledger rows of one member.
func (b *Bar) SubmissionsBy(memberID uuid.UUID) []Submission {
	var out []Submission
	for _, s := range b.submissions {
		if s.MemberID == memberID {
			out = append(out, s)
		}
	}
	return out
}

// RemainingQuota is how many more rows the member may add to the ledger.
func (b *Bar) RemainingQuota(memberID uuid.UUID) int {
	m, ok := b.Member(memberID)
	if !ok {
		return 0
	}
	left := m.Quota - len(b.SubmissionsBy(memberID))
	if left < 0 {
		return 0
	}
	return left
}

// Sessions returns every session in start order.
func (b *Bar) Sessions() []Session {
	out := make([]Session, len(b.sessions))
	for i, s := range b.sessions {
		out[i] = cloneSession(s)
	}
	return out
}

// Session looks up a session by id.
func (b *Bar) Session(id uuid.UUID) (Session, bool) {
	idx := b.sessionIndex(id)
	if idx < 0 {
		return Session{}, false
	}
	return cloneSession(b.sessions[idx]), true
}

// ActiveSession returns the session without an end time, if any.
func (b *Bar) ActiveSession() (Session, bool) {
	for _, s := range b.sessions {
		if s.Active() {
			return cloneSession(s), true
		}
	}
	return Session{}, false
}

// ActiveCycle returns the open cycle of the active session, if any.
func (b *Bar) ActiveCycle() (Cycle, bool) {
	s, ok := b.ActiveSession()
	if !ok {
		return Cycle{}, false
	}
	c, ok := s.LatestCycle()
	if !ok || !c.Open() {
		return Cycle{}, false
	}
	return c, true
}

func cloneIngredient(ing Ingredient) Ingredient {
	ing.Submitters = append([]uuid.UUID(nil), ing.Submitters...)
	return ing
}

func cloneSession(s Session) Session {
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	cycles := make([]Cycle, len(s.Cycles))
	for i, c := range s.Cycles {
		cycles[i] = cloneCycle(c)
	}
	s.Cycles = cycles
	return s
}

func cloneCycle(c Cycle) Cycle {
	if c.RevealedAt != nil {
		t := *c.RevealedAt
		c.RevealedAt = &t
	}
	votes := make([]Vote, len(c.Votes))
	for i, v := range c.Votes {
		if v.Correct != nil {
			ok := *v.Correct
			v.Correct = &ok
		}
		votes[i] = v
	}
	c.Votes = votes
	return c
}
