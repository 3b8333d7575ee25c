package leaderboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"hipsterbar/internal/bar"
)

var t0 = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

func member(name string) bar.Member {
	return bar.Member{ID: uuid.New(), DisplayName: name, Quota: 1}
}

func vote(voter, target bar.Member, correct bool) bar.Vote {
	return bar.Vote{ID: uuid.New(), VoterID: voter.ID, TargetID: target.ID, Correct: &correct}
}

func cycle(started, revealed int, votes ...bar.Vote) bar.Cycle {
	r := at(revealed)
	return bar.Cycle{ID: uuid.New(), StartedAt: at(started), RevealedAt: &r, Votes: votes}
}

func session(started int, cycles ...bar.Cycle) bar.Session {
	return bar.Session{ID: uuid.New(), StartedAt: at(started), Cycles: cycles}
}

func standingOf(t *testing.T, standings []Standing, id uuid.UUID) Standing {
	t.Helper()
	for _, s := range standings {
		if s.MemberID == id {
			return s
		}
	}
	t.Fatalf("member %s missing from standings", id)
	return Standing{}
}

func TestBuildEmpty(t *testing.T) {
	a, b := member("Alice"), member("bob")
	lb := Build([]bar.Member{b, a}, nil)

	assert.Empty(t, lb.Sessions)
	require.Len(t, lb.Overall, 2)
	assert.Equal(t, "Alice", lb.Overall[0].DisplayName, "ties sort by name ignoring case")
	for _, st := range lb.Overall {
		assert.Equal(t, 1, st.Rank)
		assert.Equal(t, 0, st.Score)
		assert.Equal(t, TrendStable, st.Trend)
		assert.Nil(t, st.PreviousRank)
	}
}

func TestBuildTwoSessions(t *testing.T) {
	x, y, z := member("Xena"), member("Yuri"), member("Zoe")
	roster := []bar.Member{x, y, z}

	s1 := session(0,
		cycle(1, 2, vote(x, z, true), vote(y, z, true)),
		cycle(3, 4, vote(y, z, true), vote(x, y, false)),
	)
	s2 := session(10,
		cycle(11, 12, vote(x, z, true), vote(y, x, false)),
		cycle(13, 14, vote(x, z, true)),
	)

	afterFirst := Build(roster, []bar.Session{s1})
	assert.Equal(t, 2, standingOf(t, afterFirst.Overall, x.ID).Rank)
	assert.Equal(t, 1, standingOf(t, afterFirst.Overall, y.ID).Rank)

	lb := Build(roster, []bar.Session{s2, s1})
	require.Len(t, lb.Sessions, 2)
	assert.Equal(t, s1.ID, lb.Sessions[0].SessionID, "sessions are ordered by start")

	first := lb.Sessions[0].Standings
	assert.Equal(t, 2, standingOf(t, first, y.ID).Score)
	assert.Equal(t, 1, standingOf(t, first, x.ID).Score)
	second := lb.Sessions[1].Standings
	assert.Equal(t, 2, standingOf(t, second, x.ID).Score)
	assert.Equal(t, 0, standingOf(t, second, y.ID).Score)
	for _, sb := range lb.Sessions {
		for _, st := range sb.Standings {
			assert.Equal(t, TrendStable, st.Trend)
			assert.Nil(t, st.PreviousRank)
		}
	}

	xs := standingOf(t, lb.Overall, x.ID)
	ys := standingOf(t, lb.Overall, y.ID)
	zs := standingOf(t, lb.Overall, z.ID)
	assert.Equal(t, 3, xs.Score)
	assert.Equal(t, 1, xs.Rank)
	assert.Equal(t, 2, ys.Score)
	assert.Equal(t, 2, ys.Rank)
	assert.Equal(t, 0, zs.Score)
	assert.Equal(t, 3, zs.Rank)

	// Just before the final reveal X and Y were tied on 2 points.
	require.NotNil(t, xs.PreviousRank)
	assert.Equal(t, 1, *xs.PreviousRank)
	assert.Equal(t, TrendStable, xs.Trend)
	require.NotNil(t, ys.PreviousRank)
	assert.Equal(t, 1, *ys.PreviousRank)
	assert.Equal(t, TrendDown, ys.Trend)
}

func TestTrendUp(t *testing.T) {
	x, y, z := member("Xena"), member("Yuri"), member("Zoe")
	roster := []bar.Member{x, y, z}

	lb := Build(roster, []bar.Session{session(0,
		cycle(1, 2, vote(y, z, true), vote(x, z, false)),
		cycle(3, 4, vote(x, z, true)),
	)})

	xs := standingOf(t, lb.Overall, x.ID)
	require.NotNil(t, xs.PreviousRank)
	assert.Equal(t, 2, *xs.PreviousRank)
	assert.Equal(t, 1, xs.Rank)
	assert.Equal(t, TrendUp, xs.Trend)

	ys := standingOf(t, lb.Overall, y.ID)
	assert.Equal(t, 1, ys.Rank)
	assert.Equal(t, TrendStable, ys.Trend)
}

func TestSingleRevealHasNoPreviousRank(t *testing.T) {
	x, z := member("Xena"), member("Zoe")
	lb := Build([]bar.Member{x, z}, []bar.Session{session(0, cycle(1, 2, vote(x, z, true)))})
	for _, st := range lb.Overall {
		assert.Nil(t, st.PreviousRank)
		assert.Equal(t, TrendStable, st.Trend)
	}
}

func TestChronologicalOrderUsesRevealTime(t *testing.T) {
	x, y, z := member("Xena"), member("Yuri"), member("Zoe")
	roster := []bar.Member{x, y, z}

	// Stored out of order: the cycle revealed last is listed first.
	lb := Build(roster, []bar.Session{session(0,
		cycle(5, 9, vote(x, z, true)),
		cycle(1, 2, vote(y, z, true)),
	)})
	xs := standingOf(t, lb.Overall, x.ID)
	require.NotNil(t, xs.PreviousRank)
	assert.Equal(t, 2, *xs.PreviousRank)
	assert.Equal(t, TrendUp, xs.Trend)
}

func TestUnrevealedAndForeignVotesDoNotScore(t *testing.T) {
	x, z := member("Xena"), member("Zoe")
	ghost := member("Ghost")
	open := bar.Cycle{ID: uuid.New(), StartedAt: at(5), Votes: []bar.Vote{vote(x, z, true)}}
	nilVoter := bar.Vote{ID: uuid.New(), VoterID: uuid.Nil, TargetID: z.ID, Correct: boolPtr(true)}
	undecided := bar.Vote{ID: uuid.New(), VoterID: x.ID, TargetID: z.ID}

	lb := Build([]bar.Member{x, z}, []bar.Session{session(0,
		cycle(1, 2, vote(x, ghost, true), nilVoter, vote(ghost, z, true)),
		cycle(3, 4, undecided),
		open,
	)})
	for _, st := range lb.Overall {
		assert.Equal(t, 0, st.Score, st.DisplayName)
	}
	assert.Len(t, lb.Overall, 2)
}

func boolPtr(b bool) *bool { return &b }

func TestDenseRanking(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "members")
		members := make([]bar.Member, n)
		points := make(map[uuid.UUID]int, n)
		for i := range members {
			members[i] = bar.Member{ID: uuid.New(), DisplayName: fmt.Sprintf("m%02d", i)}
			points[members[i].ID] = rapid.IntRange(0, 4).Draw(t, fmt.Sprintf("score%d", i))
		}

		out := rank(members, points)
		if len(out) != n {
			t.Fatalf("expected %d standings, got %d", n, len(out))
		}
		if out[0].Rank != 1 {
			t.Fatalf("first rank is %d", out[0].Rank)
		}
		for i := 1; i < len(out); i++ {
			prev, cur := out[i-1], out[i]
			switch {
			case cur.Score > prev.Score:
				t.Fatalf("scores not descending at %d", i)
			case cur.Score == prev.Score && cur.Rank != prev.Rank:
				t.Fatalf("tied scores got ranks %d and %d", prev.Rank, cur.Rank)
			case cur.Score < prev.Score && cur.Rank != prev.Rank+1:
				t.Fatalf("rank gap: %d after %d", cur.Rank, prev.Rank)
			}
		}
	})
}

func TestBuildFromAggregate(t *testing.T) {
	b, err := bar.New(uuid.New(), "BCDF12", "Clips", 2, bar.AlwaysOpen, t0)
	require.NoError(t, err)
	a, err := b.Join(uuid.New(), "Alice")
	require.NoError(t, err)
	bm, err := b.Join(uuid.New(), "Bobby")
	require.NoError(t, err)
	c, err := b.Join(uuid.New(), "Carol")
	require.NoError(t, err)
	_, err = b.Submit(bar.SubmitParams{SubmissionID: uuid.New(), MemberID: a.ID, VideoRef: "v1", SubmittedAt: t0})
	require.NoError(t, err)

	s, err := b.StartSession(uuid.New(), at(1))
	require.NoError(t, err)
	cyc, err := b.StartNextCycle(s.ID, uuid.New(), at(2), bar.PickerFunc(func(c []bar.Ingredient) (bar.Ingredient, bool) {
		return c[0], true
	}))
	require.NoError(t, err)
	_, err = b.CastVote(cyc.ID, uuid.New(), bm.ID, a.ID, at(3))
	require.NoError(t, err)
	_, err = b.CastVote(cyc.ID, uuid.New(), c.ID, bm.ID, at(3))
	require.NoError(t, err)

	before := Build(b.Members(), b.Sessions())
	for _, st := range before.Overall {
		assert.Equal(t, 0, st.Score, "votes count only after reveal")
	}

	_, err = b.Reveal(cyc.ID, at(4))
	require.NoError(t, err)
	lb := Build(b.Members(), b.Sessions())
	require.Len(t, lb.Overall, 3)
	assert.Equal(t, bm.ID, lb.Overall[0].MemberID)
	assert.Equal(t, 1, lb.Overall[0].Score)
	assert.Equal(t, 2, lb.Overall[1].Rank)
	assert.Equal(t, 2, lb.Overall[2].Rank)
}
