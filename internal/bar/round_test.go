package bar

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstPicker() CandidatePicker {
	return PickerFunc(func(c []Ingredient) (Ingredient, bool) {
		if len(c) == 0 {
			return Ingredient{}, false
		}
		return c[0], true
	})
}

func pickRef(ref string) CandidatePicker {
	return PickerFunc(func(c []Ingredient) (Ingredient, bool) {
		for _, ing := range c {
			if ing.VideoRef == ref {
				return ing, true
			}
		}
		return Ingredient{}, false
	})
}

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

func TestLockOnFirstBrewScenario(t *testing.T) {
	b := newTestBar(t, 2, LockOnFirstBrew)
	a := join(t, b, "Alice")
	bob := join(t, b, "Bobby")

	submit(t, b, a.ID, "v1")
	submit(t, b, bob.ID, "v1")
	submit(t, b, bob.ID, "v2")

	assert.Len(t, b.Ingredients(), 2)
	assert.Len(t, b.SubmissionsBy(a.ID), 1)
	assert.Len(t, b.SubmissionsBy(bob.ID), 2)

	session, err := b.StartSession(uuid.New(), at(1))
	require.NoError(t, err)
	assert.True(t, b.SubmissionsLocked())

	_, err = b.Submit(SubmitParams{SubmissionID: uuid.New(), MemberID: a.ID, VideoRef: "v3", SubmittedAt: at(2)})
	requireViolation(t, err, ErrLocked)

	_, err = b.EndSession(session.ID, at(3))
	require.NoError(t, err)
	assert.False(t, b.SubmissionsLocked())
	submit(t, b, a.ID, "v3")
}

func TestAlwaysOpenNeverLocks(t *testing.T) {
	b := newTestBar(t, 3, AlwaysOpen)
	a := join(t, b, "Alice")
	submit(t, b, a.ID, "v1")

	_, err := b.StartSession(uuid.New(), at(1))
	require.NoError(t, err)
	assert.False(t, b.SubmissionsLocked())
	submit(t, b, a.ID, "v2")
}

func TestStartSessionGuards(t *testing.T) {
	b := newTestBar(t, 3, AlwaysOpen)
	a := join(t, b, "Alice")

	_, err := b.StartSession(uuid.New(), at(1))
	requireViolation(t, err, ErrNoIngredients)

	submit(t, b, a.ID, "v1")
	_, err = b.StartSession(uuid.Nil, at(1))
	requireViolation(t, err, ErrInvalidSession)

	first, err := b.StartSession(uuid.New(), at(1))
	require.NoError(t, err)
	assert.True(t, first.Active())
	assert.Equal(t, b.ID(), first.BarID)

	_, err = b.StartSession(uuid.New(), at(2))
	requireViolation(t, err, ErrSessionActive)

	_, err = b.EndSession(first.ID, at(2))
	require.NoError(t, err)
	_, err = b.StartSession(first.ID, at(3))
	requireViolation(t, err, ErrDuplicateID)

	second, err := b.StartSession(uuid.New(), at(3))
	require.NoError(t, err)
	_, err = b.StartNextCycle(second.ID, uuid.New(), at(4), firstPicker())
	require.NoError(t, err)
	assert.True(t, b.IsClosed())
	cyc, ok := b.ActiveCycle()
	require.True(t, ok)
	_, err = b.Reveal(cyc.ID, at(5))
	require.NoError(t, err)
	_, err = b.EndSession(second.ID, at(6))
	require.NoError(t, err)

	_, err = b.StartSession(uuid.New(), at(7))
	requireViolation(t, err, ErrBarClosed)
}

func TestStartNextCycle(t *testing.T) {
	b := newTestBar(t, 3, AlwaysOpen)
	a := join(t, b, "Alice")
	submit(t, b, a.ID, "v1")
	submit(t, b, a.ID, "v2")

	_, err := b.StartNextCycle(uuid.New(), uuid.New(), at(1), firstPicker())
	requireViolation(t, err, ErrSessionNotFound)

	session, err := b.StartSession(uuid.New(), at(1))
	require.NoError(t, err)

	cycle, err := b.StartNextCycle(session.ID, uuid.New(), at(2), pickRef("v2"))
	require.NoError(t, err)
	assert.True(t, cycle.Open())
	assert.Equal(t, session.ID, cycle.SessionID)

	chosen, ok := b.Ingredient(cycle.IngredientID)
	require.True(t, ok)
	assert.Equal(t, "v2", chosen.VideoRef)
	assert.True(t, chosen.Consumed)

	_, err = b.StartNextCycle(session.ID, uuid.New(), at(3), firstPicker())
	requireViolation(t, err, ErrCycleActive)

	_, err = b.Reveal(cycle.ID, at(3))
	require.NoError(t, err)

	_, err = b.StartNextCycle(session.ID, cycle.ID, at(4), firstPicker())
	requireViolation(t, err, ErrDuplicateID)

	_, err = b.StartNextCycle(session.ID, uuid.New(), at(4), pickRef("v2"))
	requireViolation(t, err, ErrPickerContract)

	stale := PickerFunc(func([]Ingredient) (Ingredient, bool) { return chosen, true })
	_, err = b.StartNextCycle(session.ID, uuid.New(), at(4), stale)
	requireViolation(t, err, ErrPickerContract)

	stranger := PickerFunc(func([]Ingredient) (Ingredient, bool) { return Ingredient{ID: uuid.New()}, true })
	_, err = b.StartNextCycle(session.ID, uuid.New(), at(4), stranger)
	requireViolation(t, err, ErrPickerContract)

	_, err = b.StartNextCycle(session.ID, uuid.New(), at(4), nil)
	requireViolation(t, err, ErrPickerContract)

	next, err := b.StartNextCycle(session.ID, uuid.New(), at(5), firstPicker())
	require.NoError(t, err)
	_, err = b.Reveal(next.ID, at(6))
	require.NoError(t, err)

	_, err = b.StartNextCycle(session.ID, uuid.New(), at(7), firstPicker())
	requireViolation(t, err, ErrNoCandidates)

	s, _ := b.Session(session.ID)
	assert.Len(t, s.Cycles, 2)
}

func TestStartNextCycleInEndedSession(t *testing.T) {
	b := newTestBar(t, 3, AlwaysOpen)
	a := join(t, b, "Alice")
	submit(t, b, a.ID, "v1")
	session, err := b.StartSession(uuid.New(), at(1))
	require.NoError(t, err)
	_, err = b.EndSession(session.ID, at(2))
	require.NoError(t, err)

	_, err = b.StartNextCycle(session.ID, uuid.New(), at(3), firstPicker())
	requireViolation(t, err, ErrSessionAlreadyEnded)
	assert.False(t, b.Ingredients()[0].Consumed)
}

// threeMemberRound plays the reveal scenario: A submitted the video, B
// guesses A, C guesses B.
func threeMemberRound(t *testing.T) (*Bar, Cycle, Member, Member, Member) {
	t.Helper()
	b := newTestBar(t, 3, AlwaysOpen)
	a := join(t, b, "Alice")
	bm := join(t, b, "Bobby")
	c := join(t, b, "Carol")
	submit(t, b, a.ID, "v1")

	session, err := b.StartSession(uuid.New(), at(1))
	require.NoError(t, err)
	cycle, err := b.StartNextCycle(session.ID, uuid.New(), at(2), firstPicker())
	require.NoError(t, err)
	return b, cycle, a, bm, c
}

func TestCastVote(t *testing.T) {
	b, cycle, a, bm, c := threeMemberRound(t)

	_, err := b.CastVote(uuid.New(), uuid.New(), bm.ID, a.ID, at(3))
	requireViolation(t, err, ErrCycleNotFound)
	_, err = b.CastVote(cycle.ID, uuid.New(), uuid.New(), a.ID, at(3))
	requireViolation(t, err, ErrVoterUnknown)
	_, err = b.CastVote(cycle.ID, uuid.New(), bm.ID, uuid.New(), at(3))
	requireViolation(t, err, ErrTargetUnknown)
	_, err = b.CastVote(cycle.ID, uuid.New(), bm.ID, bm.ID, at(3))
	requireViolation(t, err, ErrSelfVote)

	v, err := b.CastVote(cycle.ID, uuid.New(), bm.ID, a.ID, at(3))
	require.NoError(t, err)
	assert.Nil(t, v.Correct)
	assert.Equal(t, cycle.ID, v.CycleID)

	_, err = b.CastVote(cycle.ID, uuid.New(), bm.ID, c.ID, at(4))
	requireViolation(t, err, ErrDuplicateVote)

	_, err = b.CastVote(cycle.ID, v.ID, c.ID, a.ID, at(4))
	requireViolation(t, err, ErrDuplicateID)

	_, err = b.Reveal(cycle.ID, at(5))
	require.NoError(t, err)
	_, err = b.CastVote(cycle.ID, uuid.New(), c.ID, a.ID, at(6))
	requireViolation(t, err, ErrCycleRevealed)
}

func TestRevealScenario(t *testing.T) {
	b, cycle, a, bm, c := threeMemberRound(t)

	_, err := b.CastVote(cycle.ID, uuid.New(), bm.ID, a.ID, at(3))
	require.NoError(t, err)
	_, err = b.CastVote(cycle.ID, uuid.New(), c.ID, bm.ID, at(3))
	require.NoError(t, err)

	result, err := b.Reveal(cycle.ID, at(4))
	require.NoError(t, err)
	assert.Equal(t, cycle.ID, result.CycleID)
	assert.Equal(t, map[uuid.UUID]int{a.ID: 1, bm.ID: 1}, result.Tally)
	assert.Equal(t, []uuid.UUID{a.ID}, result.Submitters)
	assert.Equal(t, []uuid.UUID{bm.ID}, result.CorrectGuessers)

	total := 0
	for _, n := range result.Tally {
		total += n
	}
	assert.Equal(t, 2, total)

	s, _ := b.Session(cycle.SessionID)
	revealed := s.Cycles[0]
	require.NotNil(t, revealed.RevealedAt)
	assert.Equal(t, at(4), *revealed.RevealedAt)
	for _, v := range revealed.Votes {
		require.NotNil(t, v.Correct)
		assert.Equal(t, v.VoterID == bm.ID, *v.Correct)
	}

	again, ok := b.RevealResultFor(cycle.ID)
	require.True(t, ok)
	assert.Equal(t, result.Tally, again.Tally)
	assert.Equal(t, result.CorrectGuessers, again.CorrectGuessers)
}

func TestRevealTwiceFails(t *testing.T) {
	b, cycle, a, bm, _ := threeMemberRound(t)
	_, err := b.CastVote(cycle.ID, uuid.New(), bm.ID, a.ID, at(3))
	require.NoError(t, err)

	_, err = b.Reveal(cycle.ID, at(4))
	require.NoError(t, err)
	before := b.Sessions()

	_, err = b.Reveal(cycle.ID, at(9))
	requireViolation(t, err, ErrCycleRevealed)
	assert.Equal(t, before, b.Sessions(), "second reveal must not touch state")

	_, err = b.Reveal(uuid.New(), at(9))
	requireViolation(t, err, ErrCycleNotFound)
}

func TestRevealWithoutVotes(t *testing.T) {
	b, cycle, a, _, _ := threeMemberRound(t)
	result, err := b.Reveal(cycle.ID, at(3))
	require.NoError(t, err)
	assert.Empty(t, result.Tally)
	assert.Empty(t, result.CorrectGuessers)
	assert.Equal(t, []uuid.UUID{a.ID}, result.Submitters)
}

func TestEndSession(t *testing.T) {
	b, cycle, _, _, _ := threeMemberRound(t)

	_, err := b.EndSession(uuid.New(), at(3))
	requireViolation(t, err, ErrSessionNotFound)

	_, err = b.EndSession(cycle.SessionID, at(3))
	requireViolation(t, err, ErrCycleStillActive)
	_, ok := b.ActiveSession()
	assert.True(t, ok)

	_, err = b.Reveal(cycle.ID, at(4))
	require.NoError(t, err)
	ended, err := b.EndSession(cycle.SessionID, at(5))
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, at(5), *ended.EndedAt)

	_, err = b.EndSession(cycle.SessionID, at(6))
	requireViolation(t, err, ErrSessionAlreadyEnded)
	_, ok = b.ActiveSession()
	assert.False(t, ok)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	b, cycle, a, bm, _ := threeMemberRound(t)
	_, err := b.CastVote(cycle.ID, uuid.New(), bm.ID, a.ID, at(3))
	require.NoError(t, err)

	restored, err := Restore(b.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, b.Snapshot(), restored.Snapshot())

	_, err = restored.Reveal(cycle.ID, at(4))
	require.NoError(t, err)
	_, ok := b.ActiveCycle()
	assert.True(t, ok, "restored copy must not share state with the original")
}

func TestRestoreRejectsBrokenState(t *testing.T) {
	b, _, _, _, _ := threeMemberRound(t)

	st := b.Snapshot()
	st.Members = append(st.Members, Member{ID: uuid.New(), DisplayName: "ALICE", Quota: 1})
	_, err := Restore(st)
	requireViolation(t, err, ErrInvalidBar)

	st = b.Snapshot()
	st.Sessions = append(st.Sessions, Session{ID: uuid.New(), StartedAt: at(9)})
	_, err = Restore(st)
	requireViolation(t, err, ErrInvalidBar)

	st = b.Snapshot()
	st.Code = "AEIOU1"
	_, err = Restore(st)
	requireViolation(t, err, ErrInvalidCode)
}
