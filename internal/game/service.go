// internal/game/service.go
package game

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/leaderboard"
	"hipsterbar/internal/storage"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// CreateBarParams describes a new bar. Zero values fall back to the
// service defaults.
type CreateBarParams struct {
	Theme        string               `json:"theme"`
	DefaultQuota int                  `json:"default_quota"`
	Policy       bar.SubmissionPolicy `json:"policy"`
}

// SubmitParams describes a video handed in by a member. Missing title or
// thumbnail are looked up when a metadata source is configured.
type SubmitParams struct {
	MemberID  uuid.UUID `json:"member_id"`
	VideoRef  string    `json:"video_ref"`
	Title     string    `json:"title"`
	Thumbnail string    `json:"thumbnail"`
}

// Service defines the operations available on bars.
type Service interface {
	CreateBar(ctx context.Context, params CreateBarParams) (*BarView, error)
	GetBar(ctx context.Context, code string) (*BarView, error)
	JoinBar(ctx context.Context, code, displayName string) (bar.Member, error)
	SetMemberQuota(ctx context.Context, code string, memberID uuid.UUID, quota int) (bar.Member, error)
	SetDefaultQuota(ctx context.Context, code string, quota int) error
	MemberStatus(ctx context.Context, code string, memberID uuid.UUID) (*MemberStatus, error)

	Submit(ctx context.Context, code string, params SubmitParams) (bar.Submission, error)
	RemoveSubmission(ctx context.Context, code string, memberID, submissionID uuid.UUID) error

	StartSession(ctx context.Context, code string) (bar.Session, error)
	StartNextCycle(ctx context.Context, code string, sessionID uuid.UUID) (CycleStartedEvent, error)
	CastVote(ctx context.Context, code string, cycleID, voterID, targetID uuid.UUID) (bar.Vote, error)
	Reveal(ctx context.Context, code string, cycleID uuid.UUID) (bar.RevealResult, error)
	EndSession(ctx context.Context, code string, sessionID uuid.UUID) (bar.Session, error)

	Leaderboard(ctx context.Context, code string) (leaderboard.Leaderboard, error)
	History(ctx context.Context, code string) ([]storage.Event, error)
}
