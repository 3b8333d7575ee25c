// internal/game/implementation.go
package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/clients"
	"hipsterbar/internal/leaderboard"
	"hipsterbar/internal/metrics"
	"hipsterbar/internal/picker"
	"hipsterbar/internal/storage"
)

const (
	codeAlphabet       = "BCDFGHJKLMNPQRSTVWXYZ23456789"
	maxCodeAttempts    = 8
	maxConflictRetries = 3
)

// MetadataSource looks up display metadata for a video reference.
type MetadataSource interface {
	Lookup(ctx context.Context, videoRef string) (*clients.VideoMetadata, error)
}

// Options configures a Service. Every field is optional.
type Options struct {
	Picker        bar.CandidatePicker
	Metadata      MetadataSource
	Metrics       *metrics.Metrics
	Hub           *Hub
	Logger        *slog.Logger
	Clock         func() time.Time
	DefaultQuota  int
	DefaultPolicy bar.SubmissionPolicy
	// CreateRate is bar creations per minute across all clients.
	CreateRate  float64
	CreateBurst int
}

// service implements the Service interface.
type service struct {
	repo          storage.Repository
	picker        bar.CandidatePicker
	metadata      MetadataSource
	metrics       *metrics.Metrics
	hub           *Hub
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
	locks         *barLocks
	defaultQuota  int
	defaultPolicy bar.SubmissionPolicy
	createLimiter *rate.Limiter
	joinLimiter   *rate.Limiter
}

// NewService creates a new game service backed by repo.
func NewService(repo storage.Repository, opts Options) Service {
	s := &service{
		repo:          repo,
		picker:        opts.Picker,
		metadata:      opts.Metadata,
		metrics:       opts.Metrics,
		hub:           opts.Hub,
		logger:        opts.Logger,
		tracer:        otel.Tracer("hipsterbar/game"),
		now:           opts.Clock,
		locks:         newBarLocks(),
		defaultQuota:  opts.DefaultQuota,
		defaultPolicy: opts.DefaultPolicy,
		joinLimiter:   rate.NewLimiter(rate.Every(100*time.Millisecond), 20),
	}
	if s.picker == nil {
		s.picker = picker.NewRandom()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("component", "game")
	if s.now == nil {
		s.now = time.Now
	}
	if s.defaultQuota < 1 {
		s.defaultQuota = 3
	}
	if !s.defaultPolicy.Valid() {
		s.defaultPolicy = bar.LockOnFirstBrew
	}
	createRate, createBurst := opts.CreateRate, opts.CreateBurst
	if createRate <= 0 {
		createRate = 30
	}
	if createBurst < 1 {
		createBurst = 5
	}
	s.createLimiter = rate.NewLimiter(rate.Limit(createRate/60), createBurst)
	return s
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

// change is what a mutation records: the stored event and, optionally, a
// different payload for live subscribers.
type change struct {
	event  string
	record any
	public any
}

// mutate loads the bar, applies fn and saves the result under the bar's
// lock. A storage conflict from another process reloads and retries.
func (s *service) mutate(ctx context.Context, op, rawCode string, fn func(b *bar.Bar) (change, error)) error {
	return s.mutateLimited(ctx, op, rawCode, nil, fn)
}

// mutateLimited is mutate behind limiter; a nil limiter admits everything.
func (s *service) mutateLimited(ctx context.Context, op, rawCode string, limiter *rate.Limiter, fn func(b *bar.Bar) (change, error)) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "game."+op, trace.WithAttributes(
		attribute.String("bar.code", rawCode),
	))
	defer func() {
		s.finish(span, op, rawCode, start, err)
	}()

	if limiter != nil && !limiter.Allow() {
		return ErrRateLimited
	}
	code, err := bar.NormalizeCode(rawCode)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(code.String())
	defer unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		b, version, err := s.repo.Load(ctx, code)
		if err != nil {
			return err
		}
		ch, err := fn(b)
		if err != nil {
			return err
		}
		ev, err := storage.NewEvent(ch.event, ch.record, s.clock())
		if err != nil {
			return err
		}
		err = s.repo.Save(ctx, b, version, ev)
		if errors.Is(err, storage.ErrConcurrencyConflict) {
			span.AddEvent("storage.conflict", trace.WithAttributes(attribute.Int("attempt", attempt+1)))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to save bar %s: %w", code, err)
		}
		s.publish(code, ch)
		return nil
	}
	return storage.ErrConcurrencyConflict
}

func (s *service) publish(code bar.Code, ch change) {
	if s.hub == nil {
		return
	}
	payload := ch.public
	if payload == nil {
		payload = ch.record
	}
	s.hub.Publish(Event{Type: ch.event, BarCode: code.String(), Payload: payload})
}

// finish records the outcome of an operation in logs, metrics and the span.
func (s *service) finish(span trace.Span, op, code string, start time.Time, err error) {
	defer span.End()
	outcome := "ok"
	switch {
	case err == nil:
		s.logger.Debug("operation applied", "operation", op, "code", code)
	case errors.Is(err, ErrRateLimited):
		outcome = "rate_limited"
		s.logger.Info("operation rate limited", "operation", op, "code", code)
	case errors.Is(err, storage.ErrNotFound):
		outcome = string(bar.CategoryNotFound)
	case errors.Is(err, storage.ErrConcurrencyConflict):
		outcome = "storage_conflict"
		s.logger.Warn("operation abandoned after conflicts", "operation", op, "code", code)
	default:
		if cat, ok := bar.CategoryOf(err); ok {
			outcome = string(cat)
			s.logger.Debug("operation rejected", "operation", op, "code", code, "reason", err.Error())
			break
		}
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("operation failed", "operation", op, "code", code, "error", err)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	s.metrics.Observe(op, outcome, time.Since(start).Seconds())
}

// CreateBar opens a new bar under a freshly generated code.
func (s *service) CreateBar(ctx context.Context, params CreateBarParams) (view *BarView, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "game.create_bar")
	defer func() {
		code := ""
		if view != nil {
			code = view.Code
		}
		s.finish(span, "create_bar", code, start, err)
	}()

	if !s.createLimiter.Allow() {
		return nil, ErrRateLimited
	}
	quota := params.DefaultQuota
	if quota == 0 {
		quota = s.defaultQuota
	}
	policy := params.Policy
	if policy == "" {
		policy = s.defaultPolicy
	}

	id := uuid.New()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		b, err := bar.New(id, generateCode(), params.Theme, quota, policy, s.clock())
		if err != nil {
			return nil, err
		}
		ev, err := storage.NewEvent(EventBarCreated, BarCreatedEvent{
			BarID:        b.ID(),
			Code:         b.Code().String(),
			Theme:        b.Theme(),
			DefaultQuota: b.DefaultQuota(),
			Policy:       b.Policy(),
		}, b.CreatedAt())
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, b, ev)
		if errors.Is(err, storage.ErrBarExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create bar: %w", err)
		}
		s.metrics.BarCreated()
		s.logger.Info("bar created", "code", b.Code(), "policy", b.Policy())
		return newBarView(b, 1), nil
	}
	return nil, fmt.Errorf("failed to allocate a bar code after %d attempts: %w", maxCodeAttempts, storage.ErrBarExists)
}

func generateCode() string {
	code, err := codeFrom(rand.Reader)
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return code
}

// codeFrom draws a bar code from r. Bytes at or above the largest multiple
// of the alphabet size are discarded so every letter is equally likely.
func codeFrom(r io.Reader) (string, error) {
	const limit = 256 - 256%len(codeAlphabet)
	code := make([]byte, 0, bar.CodeLength)
	var b [1]byte
	for len(code) < bar.CodeLength {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		if int(b[0]) >= limit {
			continue
		}
		code = append(code, codeAlphabet[int(b[0])%len(codeAlphabet)])
	}
	return string(code), nil
}

// GetBar returns the public view of a bar.
func (s *service) GetBar(ctx context.Context, rawCode string) (*BarView, error) {
	b, version, err := s.load(ctx, rawCode)
	if err != nil {
		return nil, err
	}
	return newBarView(b, version), nil
}

func (s *service) load(ctx context.Context, rawCode string) (*bar.Bar, int, error) {
	code, err := bar.NormalizeCode(rawCode)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Load(ctx, code)
}

// JoinBar adds a member under displayName.
func (s *service) JoinBar(ctx context.Context, code, displayName string) (bar.Member, error) {
	var member bar.Member
	err := s.mutateLimited(ctx, "join_bar", code, s.joinLimiter, func(b *bar.Bar) (change, error) {
		m, err := b.Join(uuid.New(), displayName)
		if err != nil {
			return change{}, err
		}
		member = m
		return change{
			event:  EventMemberJoined,
			record: MemberJoinedEvent{MemberID: m.ID, DisplayName: m.DisplayName, Quota: m.Quota},
		}, nil
	})
	if err != nil {
		return bar.Member{}, err
	}
	s.metrics.MemberJoined()
	return member, nil
}

func (s *service) SetMemberQuota(ctx context.Context, code string, memberID uuid.UUID, quota int) (bar.Member, error) {
	var member bar.Member
	err := s.mutate(ctx, "set_member_quota", code, func(b *bar.Bar) (change, error) {
		m, err := b.SetMemberQuota(memberID, quota)
		if err != nil {
			return change{}, err
		}
		member = m
		return change{
			event:  EventMemberQuotaChanged,
			record: QuotaChangedEvent{MemberID: &m.ID, Quota: m.Quota},
		}, nil
	})
	return member, err
}

func (s *service) SetDefaultQuota(ctx context.Context, code string, quota int) error {
	return s.mutate(ctx, "set_default_quota", code, func(b *bar.Bar) (change, error) {
		if err := b.SetDefaultQuota(quota); err != nil {
			return change{}, err
		}
		return change{event: EventDefaultQuotaChanged, record: QuotaChangedEvent{Quota: quota}}, nil
	})
}

// MemberStatus lists a member's own submissions.
func (s *service) MemberStatus(ctx context.Context, code string, memberID uuid.UUID) (*MemberStatus, error) {
	b, _, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	m, err := b.RequireMember(memberID)
	if err != nil {
		return nil, err
	}
	subs := []SubmissionView{}
	for _, sub := range b.SubmissionsBy(memberID) {
		subs = append(subs, newSubmissionView(sub))
	}
	return &MemberStatus{
		Member:         newMemberView(m),
		Submissions:    subs,
		RemainingQuota: b.RemainingQuota(memberID),
	}, nil
}

// Submit adds a video to the pool on behalf of a member.
func (s *service) Submit(ctx context.Context, code string, params SubmitParams) (bar.Submission, error) {
	params.VideoRef = strings.TrimSpace(params.VideoRef)
	params.Title = strings.TrimSpace(params.Title)
	params.Thumbnail = strings.TrimSpace(params.Thumbnail)
	if params.VideoRef != "" && (params.Title == "" || params.Thumbnail == "") {
		s.fillMetadata(ctx, &params)
	}

	var sub bar.Submission
	err := s.mutate(ctx, "submit", code, func(b *bar.Bar) (change, error) {
		created, err := b.Submit(bar.SubmitParams{
			SubmissionID: uuid.New(),
			MemberID:     params.MemberID,
			VideoRef:     params.VideoRef,
			SubmittedAt:  s.clock(),
			Title:        params.Title,
			Thumbnail:    params.Thumbnail,
		})
		if err != nil {
			return change{}, err
		}
		sub = created
		return change{
			event: EventVideoSubmitted,
			record: VideoSubmittedEvent{
				SubmissionID: created.ID,
				IngredientID: created.IngredientID,
				MemberID:     created.MemberID,
				VideoRef:     params.VideoRef,
			},
			public: poolChanged(b),
		}, nil
	})
	if err != nil {
		return bar.Submission{}, err
	}
	s.metrics.Submitted()
	return sub, nil
}

// fillMetadata completes missing title and thumbnail. Lookup failures leave
// the params untouched.
func (s *service) fillMetadata(ctx context.Context, params *SubmitParams) {
	if s.metadata == nil {
		return
	}
	ctx, span := s.tracer.Start(ctx, "game.lookup_metadata")
	defer span.End()

	meta, err := s.metadata.Lookup(ctx, params.VideoRef)
	switch {
	case errors.Is(err, clients.ErrNoMetadata):
		s.metrics.MetadataLookup("missing")
		return
	case err != nil:
		s.metrics.MetadataLookup("error")
		s.logger.Debug("metadata lookup failed", "video_ref", params.VideoRef, "error", err)
		return
	}
	s.metrics.MetadataLookup("ok")
	if params.Title == "" {
		params.Title = strings.TrimSpace(meta.Title)
	}
	if params.Thumbnail == "" {
		params.Thumbnail = strings.TrimSpace(meta.ThumbnailURL)
	}
}

func (s *service) RemoveSubmission(ctx context.Context, code string, memberID, submissionID uuid.UUID) error {
	return s.mutate(ctx, "remove_submission", code, func(b *bar.Bar) (change, error) {
		if err := b.RemoveSubmission(memberID, submissionID); err != nil {
			return change{}, err
		}
		return change{
			event:  EventSubmissionRemoved,
			record: SubmissionRemovedEvent{SubmissionID: submissionID, MemberID: memberID},
			public: poolChanged(b),
		}, nil
	})
}

func (s *service) StartSession(ctx context.Context, code string) (bar.Session, error) {
	var session bar.Session
	err := s.mutate(ctx, "start_session", code, func(b *bar.Bar) (change, error) {
		started, err := b.StartSession(uuid.New(), s.clock())
		if err != nil {
			return change{}, err
		}
		session = started
		return change{
			event: EventSessionStarted,
			record: SessionStartedEvent{
				SessionID:         started.ID,
				StartedAt:         started.StartedAt,
				SubmissionsLocked: b.SubmissionsLocked(),
			},
		}, nil
	})
	return session, err
}

// StartNextCycle picks the next video of a session.
func (s *service) StartNextCycle(ctx context.Context, code string, sessionID uuid.UUID) (CycleStartedEvent, error) {
	var started CycleStartedEvent
	err := s.mutate(ctx, "start_cycle", code, func(b *bar.Bar) (change, error) {
		c, err := b.StartNextCycle(sessionID, uuid.New(), s.clock(), s.picker)
		if err != nil {
			return change{}, err
		}
		ing, _ := b.Ingredient(c.IngredientID)
		started = CycleStartedEvent{
			SessionID:  sessionID,
			CycleID:    c.ID,
			StartedAt:  c.StartedAt,
			Ingredient: newIngredientView(ing, false),
		}
		return change{event: EventCycleStarted, record: started}, nil
	})
	if err != nil {
		return CycleStartedEvent{}, err
	}
	s.metrics.CycleStarted()
	return started, nil
}

func (s *service) CastVote(ctx context.Context, code string, cycleID, voterID, targetID uuid.UUID) (bar.Vote, error) {
	var vote bar.Vote
	err := s.mutate(ctx, "cast_vote", code, func(b *bar.Bar) (change, error) {
		v, err := b.CastVote(cycleID, uuid.New(), voterID, targetID, s.clock())
		if err != nil {
			return change{}, err
		}
		vote = v
		count := 0
		if c, ok := b.ActiveCycle(); ok && c.ID == cycleID {
			count = len(c.Votes)
		}
		return change{
			event:  EventVoteCast,
			record: VoteCastEvent{CycleID: cycleID, VoteID: v.ID, VoterID: voterID, TargetID: targetID},
			public: VoteReceivedEvent{CycleID: cycleID, VoterID: voterID, VoteCount: count},
		}, nil
	})
	if err != nil {
		return bar.Vote{}, err
	}
	s.metrics.VoteCast()
	return vote, nil
}

func (s *service) Reveal(ctx context.Context, code string, cycleID uuid.UUID) (bar.RevealResult, error) {
	var result bar.RevealResult
	err := s.mutate(ctx, "reveal", code, func(b *bar.Bar) (change, error) {
		res, err := b.Reveal(cycleID, s.clock())
		if err != nil {
			return change{}, err
		}
		result = res
		return change{event: EventCycleRevealed, record: res}, nil
	})
	if err != nil {
		return bar.RevealResult{}, err
	}
	s.metrics.Revealed()
	return result, nil
}

func (s *service) EndSession(ctx context.Context, code string, sessionID uuid.UUID) (bar.Session, error) {
	var session bar.Session
	err := s.mutate(ctx, "end_session", code, func(b *bar.Bar) (change, error) {
		ended, err := b.EndSession(sessionID, s.clock())
		if err != nil {
			return change{}, err
		}
		session = ended
		return change{
			event:  EventSessionEnded,
			record: SessionEndedEvent{SessionID: ended.ID, EndedAt: *ended.EndedAt},
		}, nil
	})
	return session, err
}

// Leaderboard ranks the members of a bar.
func (s *service) Leaderboard(ctx context.Context, code string) (leaderboard.Leaderboard, error) {
	b, _, err := s.load(ctx, code)
	if err != nil {
		return leaderboard.Leaderboard{}, err
	}
	return leaderboard.Build(b.Members(), b.Sessions()), nil
}

func (s *service) History(ctx context.Context, rawCode string) ([]storage.Event, error) {
	code, err := bar.NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, code)
}
