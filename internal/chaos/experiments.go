// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/game"
)

// Target is the system the experiments run against: a game service whose
// repository is wrapped by Faults.
type Target struct {
	Service game.Service
	Faults  *FaultyRepository
}

// RegisterExperiments registers all predefined experiments with the engine.
func (e *Engine) RegisterExperiments(t Target, duration time.Duration) {
	e.RegisterExperiment(ConflictStormExperiment(t, 10, duration))
	e.RegisterExperiment(StorageLatencyExperiment(t, 25*time.Millisecond, 6, duration))
	e.RegisterExperiment(RevealRaceExperiment(t, 10, duration))
}

// round is a bar with every member holding one submission and an open
// cycle.
type round struct {
	code    string
	members []bar.Member
	cycleID uuid.UUID
}

func openRound(ctx context.Context, svc game.Service, players int) (*round, error) {
	view, err := svc.CreateBar(ctx, game.CreateBarParams{Theme: "Chaos night"})
	if err != nil {
		return nil, err
	}
	r := &round{code: view.Code}
	for i := range players {
		m, err := svc.JoinBar(ctx, r.code, fmt.Sprintf("hipster %d", i+1))
		if err != nil {
			return nil, err
		}
		if _, err := svc.Submit(ctx, r.code, game.SubmitParams{
			MemberID: m.ID,
			VideoRef: fmt.Sprintf("https://video.example/chaos/%d", i+1),
		}); err != nil {
			return nil, err
		}
		r.members = append(r.members, m)
	}
	session, err := svc.StartSession(ctx, r.code)
	if err != nil {
		return nil, err
	}
	started, err := svc.StartNextCycle(ctx, r.code, session.ID)
	if err != nil {
		return nil, err
	}
	r.cycleID = started.CycleID
	return r, nil
}

func findCycle(view *game.BarView, cycleID uuid.UUID) (game.CycleView, bool) {
	for _, s := range view.Sessions {
		for _, c := range s.Cycles {
			if c.ID == cycleID {
				return c, true
			}
		}
	}
	return game.CycleView{}, false
}

// ConflictStormExperiment makes every second save fail with a version
// conflict while members join concurrently.
func ConflictStormExperiment(t Target, joiners int, duration time.Duration) Experiment {
	var (
		code   string
		joined atomic.Int64
	)
	return Experiment{
		Name:       "storage-conflict-storm",
		Hypothesis: "No accepted join is lost when saves fail with spurious version conflicts",
		Setup: func(ctx context.Context) error {
			view, err := t.Service.CreateBar(ctx, game.CreateBarParams{Theme: "Conflict storm"})
			if err != nil {
				return err
			}
			code = view.Code
			return nil
		},
		SteadyState: []Metric{
			{
				Name: "missing_members",
				Query: func(ctx context.Context) (float64, error) {
					view, err := t.Service.GetBar(ctx, code)
					if err != nil {
						return 0, err
					}
					return float64(joined.Load()) - float64(len(view.Members)), nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name: "injected_conflicts",
				Query: func(context.Context) (float64, error) {
					return float64(t.Faults.InjectedConflicts()), nil
				},
				Threshold: Threshold{Operator: ">=", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "conflict",
				Target: "storage",
				Execute: func(context.Context) error {
					t.Faults.SetConflictEvery(2)
					return nil
				},
			},
			{
				Type:   "concurrent-requests",
				Target: "game-service",
				Execute: func(ctx context.Context) error {
					var wg sync.WaitGroup
					errs := make(chan error, joiners)
					for i := range joiners {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if _, err := t.Service.JoinBar(ctx, code, fmt.Sprintf("storm %d", i)); err != nil {
								errs <- err
								return
							}
							joined.Add(1)
						}()
					}
					wg.Wait()
					close(errs)
					var all []error
					for err := range errs {
						all = append(all, err)
					}
					return errors.Join(all...)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "conflict",
				Target: "storage",
				Execute: func(context.Context) error {
					t.Faults.SetConflictEvery(0)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "missing_members",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "every accepted join must be stored",
			},
			{
				Metric:    "injected_conflicts",
				Condition: func(v float64) bool { return v > 0 },
				Message:   "conflicts must actually have been injected",
			},
		},
		Duration: duration,
	}
}

// StorageLatencyExperiment slows storage down while every member votes
// twice at the same time.
func StorageLatencyExperiment(t Target, latency time.Duration, players int, duration time.Duration) Experiment {
	var (
		r        *round
		accepted atomic.Int64
	)
	return Experiment{
		Name:       "storage-latency-vote-burst",
		Hypothesis: "Slow storage never lets a member vote twice or loses an accepted vote",
		Setup: func(ctx context.Context) error {
			var err error
			r, err = openRound(ctx, t.Service, players)
			return err
		},
		SteadyState: []Metric{
			{
				Name: "vote_mismatch",
				Query: func(ctx context.Context) (float64, error) {
					view, err := t.Service.GetBar(ctx, r.code)
					if err != nil {
						return 0, err
					}
					c, ok := findCycle(view, r.cycleID)
					if !ok {
						return 0, errors.New("cycle disappeared")
					}
					return float64(len(c.Voters)) - float64(accepted.Load()), nil
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "latency",
				Target: "storage",
				Execute: func(context.Context) error {
					t.Faults.SetLatency(latency)
					return nil
				},
			},
			{
				Type:   "concurrent-requests",
				Target: "game-service",
				Execute: func(ctx context.Context) error {
					var wg sync.WaitGroup
					for i, voter := range r.members {
						target := r.members[(i+1)%len(r.members)]
						for range 2 {
							wg.Add(1)
							go func() {
								defer wg.Done()
								// The second attempt of each voter must be rejected.
								if _, err := t.Service.CastVote(ctx, r.code, r.cycleID, voter.ID, target.ID); err == nil {
									accepted.Add(1)
								}
							}()
						}
					}
					wg.Wait()
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "latency",
				Target: "storage",
				Execute: func(context.Context) error {
					t.Faults.SetLatency(0)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "vote_mismatch",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "stored voters must match accepted votes",
			},
		},
		Duration: duration,
	}
}

// RevealRaceExperiment reveals the same cycle from many clients at once.
func RevealRaceExperiment(t Target, concurrency int, duration time.Duration) Experiment {
	var (
		r        *round
		accepted atomic.Int64
	)
	return Experiment{
		Name:       "concurrent-reveal-race",
		Hypothesis: "A cycle is revealed exactly once however many clients ask at the same time",
		Setup: func(ctx context.Context) error {
			var err error
			if r, err = openRound(ctx, t.Service, 3); err != nil {
				return err
			}
			_, err = t.Service.CastVote(ctx, r.code, r.cycleID, r.members[0].ID, r.members[1].ID)
			return err
		},
		SteadyState: []Metric{
			{
				Name: "reveals_accepted",
				Query: func(context.Context) (float64, error) {
					return float64(accepted.Load()), nil
				},
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "game-service",
				Execute: func(ctx context.Context) error {
					var wg sync.WaitGroup
					for range concurrency {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if _, err := t.Service.Reveal(ctx, r.code, r.cycleID); err == nil {
								accepted.Add(1)
							}
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "reveals_accepted",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "exactly one reveal must succeed",
			},
		},
		Duration: duration,
	}
}
