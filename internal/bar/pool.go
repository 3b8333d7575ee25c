package bar

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubmitParams describes one video submission.
type SubmitParams struct {
	SubmissionID uuid.UUID
	MemberID     uuid.UUID
	VideoRef     string
	SubmittedAt  time.Time
	Title        string
	Thumbnail    string
}

// Submit adds a video to the pool on behalf of a member. A video that is
// already in the pool gains the member as an extra submitter instead of a
// second entry; either way the member's quota is charged one ledger row.
func (b *Bar) Submit(p SubmitParams) (Submission, error) {
	if p.SubmissionID == uuid.Nil {
		return Submission{}, violation(ErrInvalidVideo, "submission id is required")
	}
	if b.locked {
		return Submission{}, violation(ErrLocked, "submissions are locked while a session is brewing")
	}
	member, ok := b.Member(p.MemberID)
	if !ok {
		return Submission{}, violation(ErrUnknownMember, "member not found")
	}
	ref := strings.TrimSpace(p.VideoRef)
	if ref == "" {
		return Submission{}, violation(ErrInvalidVideo, "video reference is required")
	}
	if len(b.SubmissionsBy(member.ID)) >= member.Quota {
		return Submission{}, violation(ErrQuotaExceeded, "submission quota of %d reached", member.Quota)
	}
	for _, s := range b.submissions {
		if s.ID == p.SubmissionID {
			return Submission{}, violation(ErrDuplicateID, "submission already recorded")
		}
	}

	idx := b.ingredientByRef(ref)
	if idx < 0 {
		b.ingredients = append(b.ingredients, Ingredient{
			ID:        uuid.New(),
			VideoRef:  ref,
			CreatedAt: p.SubmittedAt,
		})
		idx = len(b.ingredients) - 1
	}
	ing := &b.ingredients[idx]
	mergeMetadata(ing, p.Title, p.Thumbnail)
	if !ing.SubmittedBy(member.ID) {
		ing.Submitters = append(ing.Submitters, member.ID)
	}

	sub := Submission{
		ID:           p.SubmissionID,
		IngredientID: ing.ID,
		MemberID:     member.ID,
		SubmittedAt:  p.SubmittedAt,
	}
	b.submissions = append(b.submissions, sub)
	return sub, nil
}

// RefreshMetadata applies title/thumbnail to an ingredient under the same
// merge rules as Submit.
func (b *Bar) RefreshMetadata(ingredientID uuid.UUID, title, thumbnail string) (Ingredient, bool) {
	idx := b.ingredientIndex(ingredientID)
	if idx < 0 {
		return Ingredient{}, false
	}
	mergeMetadata(&b.ingredients[idx], title, thumbnail)
	return cloneIngredient(b.ingredients[idx]), true
}

// mergeMetadata never erases stored values; a thumbnail that is not an
// absolute http(s) URL is dropped.
func mergeMetadata(ing *Ingredient, title, thumbnail string) {
	if t := strings.TrimSpace(title); t != "" {
		ing.Title = t
	}
	if th := strings.TrimSpace(thumbnail); th != "" && isHTTPURL(th) {
		ing.Thumbnail = th
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// RemoveSubmission withdraws one of the member's own submissions. The
// ingredient is dropped from the pool once nobody claims it.
func (b *Bar) RemoveSubmission(memberID, submissionID uuid.UUID) error {
	if b.memberIndex(memberID) < 0 {
		return violation(ErrUnknownMember, "member not found")
	}
	sidx := -1
	for i, s := range b.submissions {
		if s.ID == submissionID {
			sidx = i
			break
		}
	}
	if sidx < 0 {
		return violation(ErrSubmissionGone, "submission not found")
	}
	sub := b.submissions[sidx]
	if sub.MemberID != memberID {
		return violation(ErrNotOwner, "only the submitter can remove a submission")
	}
	iidx := b.ingredientIndex(sub.IngredientID)
	if iidx >= 0 && b.ingredients[iidx].Consumed {
		return violation(ErrConsumed, "this video has already been played")
	}

	b.submissions = slices.Delete(b.submissions, sidx, sidx+1)
	if iidx < 0 {
		return nil
	}
	// The member may still hold another ledger row for the same video.
	for _, s := range b.submissions {
		if s.MemberID == memberID && s.IngredientID == sub.IngredientID {
			return nil
		}
	}
	ing := &b.ingredients[iidx]
	ing.Submitters = slices.DeleteFunc(ing.Submitters, func(id uuid.UUID) bool { return id == memberID })
	if len(ing.Submitters) == 0 {
		b.ingredients = slices.Delete(b.ingredients, iidx, iidx+1)
	}
	return nil
}

func (b *Bar) ingredientIndex(id uuid.UUID) int {
	for i, ing := range b.ingredients {
		if ing.ID == id {
			return i
		}
	}
	return -1
}

func (b *Bar) ingredientByRef(ref string) int {
	for i, ing := range b.ingredients {
		if ing.VideoRef == ref {
			return i
		}
	}
	return -1
}
