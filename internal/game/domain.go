// internal/game/domain.go
package game

import (
	"time"

	"github.com/google/uuid"

	"hipsterbar/internal/bar"
)

// Event types, used both for the stored history and the live stream.
const (
	EventBarCreated          = "BarCreated"
	EventMemberJoined        = "MemberJoined"
	EventMemberQuotaChanged  = "MemberQuotaChanged"
	EventDefaultQuotaChanged = "DefaultQuotaChanged"
	EventVideoSubmitted      = "VideoSubmitted"
	EventSubmissionRemoved   = "SubmissionRemoved"
	EventSessionStarted      = "SessionStarted"
	EventCycleStarted        = "CycleStarted"
	EventVoteCast            = "VoteCast"
	EventCycleRevealed       = "CycleRevealed"
	EventSessionEnded        = "SessionEnded"
)

// Event is pushed to live subscribers of a bar.
type Event struct {
	Type    string `json:"type"`
	BarCode string `json:"bar_code"`
	Payload any    `json:"payload,omitempty"`
}

// BarCreatedEvent is recorded when a bar opens.
type BarCreatedEvent struct {
	BarID        uuid.UUID            `json:"bar_id"`
	Code         string               `json:"code"`
	Theme        string               `json:"theme"`
	DefaultQuota int                  `json:"default_quota"`
	Policy       bar.SubmissionPolicy `json:"policy"`
}

type MemberJoinedEvent struct {
	MemberID    uuid.UUID `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Quota       int       `json:"quota"`
}

type QuotaChangedEvent struct {
	MemberID *uuid.UUID `json:"member_id,omitempty"`
	Quota    int        `json:"quota"`
}

// VideoSubmittedEvent is the stored record of a submission. Only
// PoolChangedEvent is broadcast so submitters stay anonymous.
type VideoSubmittedEvent struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	IngredientID uuid.UUID `json:"ingredient_id"`
	MemberID     uuid.UUID `json:"member_id"`
	VideoRef     string    `json:"video_ref"`
}

type SubmissionRemovedEvent struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	MemberID     uuid.UUID `json:"member_id"`
}

// PoolChangedEvent is the public side of a submission change.
type PoolChangedEvent struct {
	PoolSize   int `json:"pool_size"`
	Unconsumed int `json:"unconsumed"`
}

type SessionStartedEvent struct {
	SessionID         uuid.UUID `json:"session_id"`
	StartedAt         time.Time `json:"started_at"`
	SubmissionsLocked bool      `json:"submissions_locked"`
}

type CycleStartedEvent struct {
	SessionID  uuid.UUID      `json:"session_id"`
	CycleID    uuid.UUID      `json:"cycle_id"`
	StartedAt  time.Time      `json:"started_at"`
	Ingredient IngredientView `json:"ingredient"`
}

// VoteCastEvent is the stored record of a vote.
type VoteCastEvent struct {
	CycleID  uuid.UUID `json:"cycle_id"`
	VoteID   uuid.UUID `json:"vote_id"`
	VoterID  uuid.UUID `json:"voter_id"`
	TargetID uuid.UUID `json:"target_id"`
}

// VoteReceivedEvent is broadcast instead of VoteCastEvent; the target
// stays secret until the reveal.
type VoteReceivedEvent struct {
	CycleID   uuid.UUID `json:"cycle_id"`
	VoterID   uuid.UUID `json:"voter_id"`
	VoteCount int       `json:"vote_count"`
}

type SessionEndedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`
}

// BarView is the client-facing projection of a bar. The pool is only
// counted; ingredients are listed once they have been played, and their
// submitters once the cycle has been revealed.
type BarView struct {
	ID                uuid.UUID            `json:"id"`
	Code              string               `json:"code"`
	Theme             string               `json:"theme"`
	DefaultQuota      int                  `json:"default_quota"`
	Policy            bar.SubmissionPolicy `json:"policy"`
	SubmissionsLocked bool                 `json:"submissions_locked"`
	Closed            bool                 `json:"closed"`
	CreatedAt         time.Time            `json:"created_at"`
	Members           []MemberView         `json:"members"`
	PoolSize          int                  `json:"pool_size"`
	Unconsumed        int                  `json:"unconsumed"`
	Played            []IngredientView     `json:"played"`
	Sessions          []SessionView        `json:"sessions"`
	Version           int                  `json:"version"`
}

type MemberView struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Quota       int       `json:"quota"`
}

type IngredientView struct {
	ID         uuid.UUID   `json:"id"`
	VideoRef   string      `json:"video_ref"`
	Title      string      `json:"title,omitempty"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	Consumed   bool        `json:"consumed"`
	Submitters []uuid.UUID `json:"submitters,omitempty"`
}

type SessionView struct {
	ID        uuid.UUID   `json:"id"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	Cycles    []CycleView `json:"cycles"`
}

// CycleView hides vote targets while the cycle is open.
type CycleView struct {
	ID           uuid.UUID         `json:"id"`
	IngredientID uuid.UUID         `json:"ingredient_id"`
	StartedAt    time.Time         `json:"started_at"`
	RevealedAt   *time.Time        `json:"revealed_at,omitempty"`
	Voters       []uuid.UUID       `json:"voters"`
	Result       *bar.RevealResult `json:"result,omitempty"`
	Votes        []bar.Vote        `json:"votes,omitempty"`
}

// SubmissionView identifies a submission without saying which ingredient
// it resolved to.
type SubmissionView struct {
	ID          uuid.UUID `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// MemberStatus is what a member sees about their own submissions.
type MemberStatus struct {
	Member         MemberView       `json:"member"`
	Submissions    []SubmissionView `json:"submissions"`
	RemainingQuota int              `json:"remaining_quota"`
}
