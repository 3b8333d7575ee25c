// Package leaderboard ranks the members of a bar from the votes of its
// revealed cycles. It only reads; nothing here mutates a bar.
package leaderboard

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"hipsterbar/internal/bar"
)

// Trend describes how a member's cumulative rank moved with the latest reveal.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Standing is one member's line in a ranking.
type Standing struct {
	MemberID     uuid.UUID `json:"member_id"`
	DisplayName  string    `json:"display_name"`
	Score        int       `json:"score"`
	Rank         int       `json:"rank"`
	PreviousRank *int      `json:"previous_rank"`
	Trend        Trend     `json:"trend"`
}

// SessionBoard ranks members by the points earned in one session.
type SessionBoard struct {
	SessionID uuid.UUID  `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Standings []Standing `json:"standings"`
}

// Leaderboard holds every session board plus the cumulative ranking.
type Leaderboard struct {
	Sessions []SessionBoard `json:"sessions"`
	Overall  []Standing     `json:"overall"`
}

// revealed is a revealed cycle in the order it happened.
type revealed struct {
	revealedAt time.Time
	startedAt  time.Time
	votes      []bar.Vote
}

// Build computes the per-session and cumulative rankings. Every roster
// member appears in every ranking, with zero points if need be.
func Build(members []bar.Member, sessions []bar.Session) Leaderboard {
	roster := make(map[uuid.UUID]bar.Member, len(members))
	for _, m := range members {
		roster[m.ID] = m
	}

	ordered := slices.Clone(sessions)
	slices.SortStableFunc(ordered, func(a, b bar.Session) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	lb := Leaderboard{Sessions: make([]SessionBoard, 0, len(ordered))}
	var all []revealed
	for _, s := range ordered {
		cycles := revealedCycles(s)
		all = append(all, cycles...)
		lb.Sessions = append(lb.Sessions, SessionBoard{
			SessionID: s.ID,
			StartedAt: s.StartedAt,
			EndedAt:   s.EndedAt,
			Standings: rank(members, score(roster, cycles)),
		})
	}
	sortChronologically(all)

	lb.Overall = rank(members, score(roster, all))
	if len(all) < 2 {
		return lb
	}
	previous := rank(members, score(roster, all[:len(all)-1]))
	prevRank := make(map[uuid.UUID]int, len(previous))
	for _, st := range previous {
		prevRank[st.MemberID] = st.Rank
	}
	for i := range lb.Overall {
		st := &lb.Overall[i]
		p, ok := prevRank[st.MemberID]
		if !ok {
			continue
		}
		st.PreviousRank = &p
		switch {
		case st.Rank < p:
			st.Trend = TrendUp
		case st.Rank > p:
			st.Trend = TrendDown
		}
	}
	return lb
}

func revealedCycles(s bar.Session) []revealed {
	var out []revealed
	for _, c := range s.Cycles {
		if c.RevealedAt == nil {
			continue
		}
		out = append(out, revealed{revealedAt: *c.RevealedAt, startedAt: c.StartedAt, votes: c.Votes})
	}
	sortChronologically(out)
	return out
}

func sortChronologically(cycles []revealed) {
	slices.SortStableFunc(cycles, func(a, b revealed) int {
		if c := a.revealedAt.Compare(b.revealedAt); c != 0 {
			return c
		}
		return a.startedAt.Compare(b.startedAt)
	})
}

// score counts correct votes per voter. Votes from the nil identity or
// involving members no longer on the roster never count.
func score(roster map[uuid.UUID]bar.Member, cycles []revealed) map[uuid.UUID]int {
	points := make(map[uuid.UUID]int, len(roster))
	for _, c := range cycles {
		for _, v := range c.votes {
			if v.VoterID == uuid.Nil || v.Correct == nil || !*v.Correct {
				continue
			}
			if _, ok := roster[v.VoterID]; !ok {
				continue
			}
			if _, ok := roster[v.TargetID]; !ok {
				continue
			}
			points[v.VoterID]++
		}
	}
	return points
}

// rank orders members by score, then name, and assigns dense ranks.
func rank(members []bar.Member, points map[uuid.UUID]int) []Standing {
	out := make([]Standing, 0, len(members))
	for _, m := range members {
		out = append(out, Standing{
			MemberID:    m.ID,
			DisplayName: m.DisplayName,
			Score:       points[m.ID],
			Trend:       TrendStable,
		})
	}
	slices.SortStableFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		return strings.Compare(a.MemberID.String(), b.MemberID.String())
	})
	for i := range out {
		switch {
		case i == 0:
			out[i].Rank = 1
		case out[i].Score < out[i-1].Score:
			out[i].Rank = out[i-1].Rank + 1
		default:
			out[i].Rank = out[i-1].Rank
		}
	}
	return out
}
