// internal/bar/domain.go
package bar

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SubmissionPolicy controls when players may add videos to the pool.
type SubmissionPolicy string

const (
	// LockOnFirstBrew closes submissions while a session runs and reopens
	// them when it ends.
	LockOnFirstBrew SubmissionPolicy = "lock_on_first_brew"
	// AlwaysOpen never locks submissions.
	AlwaysOpen SubmissionPolicy = "always_open"
)

// Valid reports whether p is a known policy.
func (p SubmissionPolicy) Valid() bool {
	return p == LockOnFirstBrew || p == AlwaysOpen
}

// Member is a hipster taking part in a bar.
type Member struct {
	ID             uuid.UUID `json:"id"`
	DisplayName    string    `json:"display_name"`
	NormalizedName string    `json:"normalized_name"`
	Quota          int       `json:"quota"`
}

// Ingredient is a de-duplicated video in the pool together with everyone
// who submitted it.
type Ingredient struct {
	ID         uuid.UUID   `json:"id"`
	VideoRef   string      `json:"video_ref"`
	Title      string      `json:"title,omitempty"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Consumed   bool        `json:"consumed"`
	Submitters []uuid.UUID `json:"submitters"`
}

// SubmittedBy reports whether memberID is one of the submitters.
func (i Ingredient) SubmittedBy(memberID uuid.UUID) bool {
	return slices.Contains(i.Submitters, memberID)
}

// Submission is one member's claim on an ingredient.
type Submission struct {
	ID           uuid.UUID `json:"id"`
	IngredientID uuid.UUID `json:"ingredient_id"`
	MemberID     uuid.UUID `json:"member_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Session is one brew session: an ordered run of cycles.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	BarID     uuid.UUID  `json:"bar_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Cycles    []Cycle    `json:"cycles"`
}

// Active reports whether the session has not ended.
func (s Session) Active() bool { return s.EndedAt == nil }

// LatestCycle returns the most recently started cycle.
func (s Session) LatestCycle() (Cycle, bool) {
	if len(s.Cycles) == 0 {
		return Cycle{}, false
	}
	return s.Cycles[len(s.Cycles)-1], true
}

// Cycle is a single round: one video played, voted on and revealed.
type Cycle struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	IngredientID uuid.UUID  `json:"ingredient_id"`
	StartedAt    time.Time  `json:"started_at"`
	RevealedAt   *time.Time `json:"revealed_at,omitempty"`
	Votes        []Vote     `json:"votes"`
}

// Open reports whether voting is still possible.
func (c Cycle) Open() bool { return c.RevealedAt == nil }

// Vote is a guess that Target submitted the cycle's video. Correct stays nil
// until the cycle is revealed.
type Vote struct {
	ID       uuid.UUID `json:"id"`
	CycleID  uuid.UUID `json:"cycle_id"`
	VoterID  uuid.UUID `json:"voter_id"`
	TargetID uuid.UUID `json:"target_id"`
	CastAt   time.Time `json:"cast_at"`
	Correct  *bool     `json:"correct,omitempty"`
}

// RevealResult is what a reveal discloses about a cycle.
type RevealResult struct {
	CycleID         uuid.UUID         `json:"cycle_id"`
	IngredientID    uuid.UUID         `json:"ingredient_id"`
	Tally           map[uuid.UUID]int `json:"tally"`
	Submitters      []uuid.UUID       `json:"submitters"`
	CorrectGuessers []uuid.UUID       `json:"correct_guessers"`
}

// CandidatePicker chooses the next ingredient for a cycle from the
// unconsumed candidates. Returning false means none is usable right now.
type CandidatePicker interface {
	PickNext(candidates []Ingredient) (Ingredient, bool)
}

// PickerFunc adapts a function to CandidatePicker.
type PickerFunc func(candidates []Ingredient) (Ingredient, bool)

func (f PickerFunc) PickNext(candidates []Ingredient) (Ingredient, bool) {
	return f(candidates)
}
