package bar

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// StartSession opens a new brew session. Under LockOnFirstBrew it also
// locks submissions until the session ends.
func (b *Bar) StartSession(sessionID uuid.UUID, now time.Time) (Session, error) {
	if sessionID == uuid.Nil {
		return Session{}, violation(ErrInvalidSession, "session id is required")
	}
	if len(b.ingredients) == 0 {
		return Session{}, violation(ErrNoIngredients, "submit at least one video before brewing")
	}
	if b.IsClosed() {
		return Session{}, violation(ErrBarClosed, "every video has already been played")
	}
	if _, ok := b.ActiveSession(); ok {
		return Session{}, violation(ErrSessionActive, "a session is already brewing")
	}
	if b.sessionIndex(sessionID) >= 0 {
		return Session{}, violation(ErrDuplicateID, "session already exists")
	}

	s := Session{
		ID:        sessionID,
		BarID:     b.id,
		StartedAt: now,
	}
	b.sessions = append(b.sessions, s)
	if b.policy == LockOnFirstBrew {
		b.locked = true
	}
	return cloneSession(s), nil
}

// StartNextCycle asks picker for an unconsumed ingredient and opens a cycle
// on it. The chosen ingredient is consumed for good.
func (b *Bar) StartNextCycle(sessionID, cycleID uuid.UUID, now time.Time, picker CandidatePicker) (Cycle, error) {
	sidx := b.sessionIndex(sessionID)
	if sidx < 0 {
		return Cycle{}, violation(ErrSessionNotFound, "session not found")
	}
	session := &b.sessions[sidx]
	if !session.Active() {
		return Cycle{}, violation(ErrSessionAlreadyEnded, "session has ended")
	}
	if cycleID == uuid.Nil {
		return Cycle{}, violation(ErrInvalidSession, "cycle id is required")
	}
	if latest, ok := session.LatestCycle(); ok && latest.Open() {
		return Cycle{}, violation(ErrCycleActive, "the current cycle has not been revealed yet")
	}
	if _, _, ok := b.findCycle(cycleID); ok {
		return Cycle{}, violation(ErrDuplicateID, "cycle already exists")
	}
	candidates := b.UnconsumedIngredients()
	if len(candidates) == 0 {
		return Cycle{}, violation(ErrNoCandidates, "no unplayed videos left")
	}
	if picker == nil {
		return Cycle{}, violation(ErrPickerContract, "no video could be selected")
	}
	chosen, ok := picker.PickNext(candidates)
	if !ok {
		return Cycle{}, violation(ErrPickerContract, "no video could be selected")
	}
	iidx := b.ingredientIndex(chosen.ID)
	if iidx < 0 || b.ingredients[iidx].Consumed {
		return Cycle{}, violation(ErrPickerContract, "selected video is not available")
	}

	b.ingredients[iidx].Consumed = true
	c := Cycle{
		ID:           cycleID,
		SessionID:    session.ID,
		IngredientID: chosen.ID,
		StartedAt:    now,
	}
	session.Cycles = append(session.Cycles, c)
	return cloneCycle(c), nil
}

// CastVote records voter's guess that target submitted the cycle's video.
func (b *Bar) CastVote(cycleID, voteID, voterID, targetID uuid.UUID, now time.Time) (Vote, error) {
	sidx, cidx, ok := b.findCycle(cycleID)
	if !ok {
		return Vote{}, violation(ErrCycleNotFound, "cycle not found")
	}
	if b.memberIndex(voterID) < 0 {
		return Vote{}, violation(ErrVoterUnknown, "voter is not a member of this bar")
	}
	if b.memberIndex(targetID) < 0 {
		return Vote{}, violation(ErrTargetUnknown, "target is not a member of this bar")
	}
	cycle := &b.sessions[sidx].Cycles[cidx]
	if !cycle.Open() {
		return Vote{}, violation(ErrCycleRevealed, "voting is closed for this cycle")
	}
	if voterID == targetID {
		return Vote{}, violation(ErrSelfVote, "you cannot vote for yourself")
	}
	if voteID == uuid.Nil {
		return Vote{}, violation(ErrInvalidVote, "vote id is required")
	}
	for _, v := range cycle.Votes {
		if v.VoterID == voterID {
			return Vote{}, violation(ErrDuplicateVote, "you already voted in this cycle")
		}
		if v.ID == voteID {
			return Vote{}, violation(ErrDuplicateID, "vote already recorded")
		}
	}

	v := Vote{
		ID:       voteID,
		CycleID:  cycle.ID,
		VoterID:  voterID,
		TargetID: targetID,
		CastAt:   now,
	}
	cycle.Votes = append(cycle.Votes, v)
	return v, nil
}

// Reveal closes voting on a cycle, fixes every vote's correctness and
// returns the tally. A revealed cycle can never be revealed again.
func (b *Bar) Reveal(cycleID uuid.UUID, now time.Time) (RevealResult, error) {
	sidx, cidx, ok := b.findCycle(cycleID)
	if !ok {
		return RevealResult{}, violation(ErrCycleNotFound, "cycle not found")
	}
	cycle := &b.sessions[sidx].Cycles[cidx]
	if !cycle.Open() {
		return RevealResult{}, violation(ErrCycleRevealed, "cycle has already been revealed")
	}

	var submitters []uuid.UUID
	if iidx := b.ingredientIndex(cycle.IngredientID); iidx >= 0 {
		submitters = append(submitters, b.ingredients[iidx].Submitters...)
	}
	result := RevealResult{
		CycleID:         cycle.ID,
		IngredientID:    cycle.IngredientID,
		Tally:           make(map[uuid.UUID]int),
		Submitters:      submitters,
		CorrectGuessers: []uuid.UUID{},
	}
	for i := range cycle.Votes {
		v := &cycle.Votes[i]
		correct := slices.Contains(submitters, v.TargetID)
		v.Correct = &correct
		result.Tally[v.TargetID]++
		if correct {
			result.CorrectGuessers = append(result.CorrectGuessers, v.VoterID)
		}
	}
	revealedAt := now
	cycle.RevealedAt = &revealedAt
	return result, nil
}

// EndSession finishes a session whose cycles have all been revealed.
func (b *Bar) EndSession(sessionID uuid.UUID, now time.Time) (Session, error) {
	sidx := b.sessionIndex(sessionID)
	if sidx < 0 {
		return Session{}, violation(ErrSessionNotFound, "session not found")
	}
	session := &b.sessions[sidx]
	if !session.Active() {
		return Session{}, violation(ErrSessionAlreadyEnded, "session has already ended")
	}
	if latest, ok := session.LatestCycle(); ok && latest.Open() {
		return Session{}, violation(ErrCycleStillActive, "reveal the current cycle before ending the session")
	}

	endedAt := now
	session.EndedAt = &endedAt
	if b.policy == LockOnFirstBrew {
		b.locked = false
	}
	return cloneSession(*session), nil
}

// RevealResultFor rebuilds the reveal disclosure of an already revealed
// cycle without changing anything.
func (b *Bar) RevealResultFor(cycleID uuid.UUID) (RevealResult, bool) {
	sidx, cidx, ok := b.findCycle(cycleID)
	if !ok {
		return RevealResult{}, false
	}
	cycle := b.sessions[sidx].Cycles[cidx]
	if cycle.Open() {
		return RevealResult{}, false
	}
	result := RevealResult{
		CycleID:         cycle.ID,
		IngredientID:    cycle.IngredientID,
		Tally:           make(map[uuid.UUID]int),
		CorrectGuessers: []uuid.UUID{},
	}
	if ing, ok := b.Ingredient(cycle.IngredientID); ok {
		result.Submitters = ing.Submitters
	}
	for _, v := range cycle.Votes {
		result.Tally[v.TargetID]++
		if v.Correct != nil && *v.Correct {
			result.CorrectGuessers = append(result.CorrectGuessers, v.VoterID)
		}
	}
	return result, true
}

func (b *Bar) sessionIndex(id uuid.UUID) int {
	if id == uuid.Nil {
		return -1
	}
	for i, s := range b.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (b *Bar) findCycle(id uuid.UUID) (int, int, bool) {
	if id == uuid.Nil {
		return 0, 0, false
	}
	for si, s := range b.sessions {
		for ci, c := range s.Cycles {
			if c.ID == id {
				return si, ci, true
			}
		}
	}
	return 0, 0, false
}
