package enrich

import (
	"fmt"

	"github.com/chorus-fm/chorus/models"
	"github.com/chorus-fm/chorus/pkg/partialdate"
)

// upsertMembership folds one fetched membership edge into the stored
// stints for (member, group). MusicBrainz reports stint dates at whatever
// precision its editors know, and precision improves over time, so the
// same stint may arrive as "1996", later as "1996-03". The rule:
//
//  1. An exact raw-date match only updates the ended flag.
//  2. A compatible stint (each raw date prefix-matches in one direction)
//     is refined in place when the candidate is strictly more precise.
//  3. Otherwise a new stint row is inserted.
func (w *Worker) upsertMembership(memberID, groupID, beginRaw, endRaw string, ended bool) error {
	if !partialdate.Valid(beginRaw) || !partialdate.Valid(endRaw) {
		return fmt.Errorf("invalid stint dates %q..%q for member %s", beginRaw, endRaw, memberID)
	}

	stints, err := w.db.ListMembershipStints(memberID, groupID)
	if err != nil {
		return err
	}

	for _, stint := range stints {
		if stint.BeginDateRaw == beginRaw && stint.EndDateRaw == endRaw {
			if stint.Ended != ended {
				stint.Ended = ended
				return w.db.UpdateMembership(stint)
			}
			return nil
		}
	}

	for _, stint := range stints {
		if !partialdate.Compatible(beginRaw, stint.BeginDateRaw) || !partialdate.Compatible(endRaw, stint.EndDateRaw) {
			continue
		}

		refinesBegin := partialdate.Refines(beginRaw, stint.BeginDateRaw)
		refinesEnd := partialdate.Refines(endRaw, stint.EndDateRaw)
		if !refinesBegin && !refinesEnd && stint.Ended == ended {
			// Compatible but less precise than what we have; nothing to apply.
			return nil
		}

		if refinesBegin {
			norm, err := partialdate.Normalize(beginRaw)
			if err != nil {
				return err
			}
			stint.BeginDateRaw = beginRaw
			stint.BeginDate = &norm
		}
		if refinesEnd {
			norm, err := partialdate.Normalize(endRaw)
			if err != nil {
				return err
			}
			stint.EndDateRaw = endRaw
			stint.EndDate = &norm
		}
		stint.Ended = ended
		return w.db.UpdateMembership(stint)
	}

	stint := &models.ArtistGroupMembership{
		MemberID:     memberID,
		GroupID:      groupID,
		BeginDateRaw: beginRaw,
		EndDateRaw:   endRaw,
		Ended:        ended,
	}
	if beginRaw != "" {
		norm, err := partialdate.Normalize(beginRaw)
		if err != nil {
			return err
		}
		stint.BeginDate = &norm
	}
	if endRaw != "" {
		norm, err := partialdate.Normalize(endRaw)
		if err != nil {
			return err
		}
		stint.EndDate = &norm
	}
	return w.db.InsertMembership(stint)
}
