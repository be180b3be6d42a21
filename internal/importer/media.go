package importer

import (
	"context"
	"strconv"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/mappers"
	"lms-migrate/internal/state"
	"lms-migrate/internal/store"
)

const roleThumbnail = "thumbnail"

// prefetch downloads every unmapped attachment of the payload in one
// parallel batch.
func (im *Importer) prefetch(ctx context.Context, courses []domain.Course) {
	im.fetched = nil
	im.mediaDone = map[int64]bool{}
	if im.media == nil {
		return
	}
	seen := map[int64]bool{}
	var refs []domain.MediaRef
	for _, c := range courses {
		for _, m := range c.Media {
			if seen[m.OldID] {
				continue
			}
			seen[m.OldID] = true
			if id, ok := im.ids.Lookup(domain.KindMedia, m.OldID); ok {
				stale, err := im.stale(ctx, id)
				if err != nil {
					im.stats.Issue(domain.KindMedia, m.OldID, err)
					continue
				}
				if !stale {
					continue
				}
			}
			refs = append(refs, m)
		}
	}
	if im.opts.DryRun {
		for _, m := range refs {
			im.stats.Add(state.Result{Kind: domain.KindMedia, OldID: m.OldID, Outcome: state.OutcomeWouldCreate})
		}
		return
	}
	if len(refs) > 0 {
		im.fetched = im.media.Prefetch(ctx, refs)
	}
}

// attachMedia creates the attachments of a course from the prefetched files.
// A failed download is counted and skipped; the next run retries it. Under
// recheck, mapped attachments follow a recreated course.
func (im *Importer) attachMedia(ctx context.Context, courseID int64, c *domain.Course) {
	if im.media == nil {
		return
	}
	for _, m := range c.Media {
		if im.mediaDone[m.OldID] {
			continue
		}
		im.mediaDone[m.OldID] = true
		f, fetched := im.fetched[m.OldID]
		switch {
		case !fetched:
			id, mapped := im.ids.Lookup(domain.KindMedia, m.OldID)
			if !mapped {
				continue
			}
			if !im.opts.Recheck {
				im.stats.Add(state.Result{Kind: domain.KindMedia, OldID: m.OldID, NewID: id, Outcome: state.OutcomeSkipped})
				continue
			}
		case f.Err != nil:
			im.stats.MediaFailed++
			im.stats.Add(state.Result{Kind: domain.KindMedia, OldID: m.OldID, Outcome: state.OutcomeErrored, Err: f.Err})
			continue
		}
		attID, outcome, err := im.ensure(ctx, domain.KindMedia, m.OldID, func() store.Fields {
			return mappers.MediaToTarget(m, courseID, f.Path)
		})
		if err != nil {
			im.stats.MediaFailed++
			im.stats.Add(state.Result{Kind: domain.KindMedia, OldID: m.OldID, Outcome: state.OutcomeErrored, Err: err})
			continue
		}
		im.stats.Add(state.Result{Kind: domain.KindMedia, OldID: m.OldID, NewID: attID, Outcome: outcome})
		switch outcome {
		case state.OutcomeCreated:
			im.stats.MediaAttached++
		case state.OutcomeUpdated:
		default:
			continue
		}
		if m.Role == roleThumbnail {
			if _, err := im.compareAndSet(ctx, courseID, store.MetaTargetThumbnail, strconv.FormatInt(attID, 10), attID); err != nil {
				im.stats.Issue(domain.KindCourse, c.OldID, errors.Wrap(err, "set thumbnail"))
			}
		}
	}
}
