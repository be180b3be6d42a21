// Package importer replays an exported snapshot into the target LMS. Every
// entity is looked up in the ID map before anything is created, so repeated
// runs converge on the same target objects.
package importer

import (
	"context"
	"strconv"
	"strings"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/export"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/mappers"
	"lms-migrate/internal/media"
	"lms-migrate/internal/state"
	"lms-migrate/internal/store"
)

// Media downloads attachments ahead of the sequential import.
type Media interface {
	Prefetch(ctx context.Context, refs []domain.MediaRef) map[int64]media.Fetched
}

type Options struct {
	DryRun bool
	// Recheck verifies that mapped objects still exist in the target and
	// recreates the ones that were deleted or trashed.
	Recheck bool
}

// Importer owns the ID map for the duration of a run. It is not safe for
// concurrent use.
type Importer struct {
	target store.Content
	ids    *state.IDMap
	enroll *state.Enrollments
	media  Media
	opts   Options
	log    *logger.Logger

	stats     *state.RunStats
	terms     map[int64]int64
	fetched   map[int64]media.Fetched
	mediaDone map[int64]bool
}

// New returns an importer writing to target. m may be nil, in which case
// course media are not imported.
func New(target store.Content, ids *state.IDMap, enroll *state.Enrollments, m Media, opts Options, logg *logger.Logger) *Importer {
	if logg == nil {
		logg = logger.NewNop()
	}
	return &Importer{
		target: target,
		ids:    ids,
		enroll: enroll,
		media:  m,
		opts:   opts,
		log:    logg.With("component", "importer"),
	}
}

// Run imports p and folds every entity result into stats. Only a malformed
// payload or a cancelled context stop the run; entity failures are counted
// and the run continues.
func (im *Importer) Run(ctx context.Context, p *domain.Payload, stats *state.RunStats) error {
	if p == nil {
		return errors.Mark(errors.New("nil payload"), errors.ErrParse)
	}
	if err := export.Validate(p); err != nil {
		return err
	}

	im.stats = stats
	im.terms = map[int64]int64{}
	stats.DryRun = im.opts.DryRun
	stats.Recheck = im.opts.Recheck
	stats.Counts = p.Analysis.Counts

	im.log.Info("import started",
		"courses", len(p.Courses), "orphans", p.Stats.Orphans, "dry_run", im.opts.DryRun, "recheck", im.opts.Recheck)

	if !im.opts.DryRun {
		im.ensureTerms(ctx, p.Taxonomies.Categories)
		im.ensureTerms(ctx, p.Taxonomies.Tags)
	}
	im.prefetch(ctx, p.Courses)

	for i := range p.Courses {
		if err := ctx.Err(); err != nil {
			return err
		}
		im.course(ctx, &p.Courses[i])
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	im.orphans(ctx, &p.Orphans)

	im.log.Info("import finished", "errored", stats.Errored(), "issues", len(stats.Issues))
	return nil
}

// ClearIDMap forgets every mapping. The next run recreates everything.
func (im *Importer) ClearIDMap(ctx context.Context) error {
	im.log.Warn("clearing id map")
	return im.ids.Clear(ctx)
}

func (im *Importer) course(ctx context.Context, c *domain.Course) {
	newID, outcome, err := im.ensure(ctx, domain.KindCourse, c.OldID, func() store.Fields {
		return mappers.CourseToTarget(*c)
	})
	if err != nil {
		im.stats.Add(state.Result{Kind: domain.KindCourse, OldID: c.OldID, Outcome: state.OutcomeErrored, Err: err})
		im.log.Error("course failed, children skipped", "old_id", c.OldID, "error", err)
		return
	}

	if !im.opts.DryRun {
		if changed := im.syncCommerce(ctx, newID, c); changed && outcome == state.OutcomeSkipped {
			outcome = state.OutcomeUpdated
		}
		if outcome == state.OutcomeCreated {
			im.attachTerms(ctx, newID, c)
		}
		im.attachMedia(ctx, newID, c)
		im.stashEnrollments(ctx, c)
	}
	im.stats.Add(state.Result{Kind: domain.KindCourse, OldID: c.OldID, NewID: newID, Outcome: outcome})
	im.log.Info("course imported", "old_id", c.OldID, "new_id", newID, "outcome", outcome)

	position := 0
	for i := range c.Units {
		position++
		u := &c.Units[i]
		unitID, ok := im.entity(ctx, domain.KindUnit, u.OldID, false, func() store.Fields {
			return mappers.UnitToTarget(*u, newID, position)
		})
		if !ok {
			continue
		}
		im.assignments(ctx, u.Assignments, unitID, newID, false)
	}
	for i := range c.Quizzes {
		position++
		q := &c.Quizzes[i]
		im.quiz(ctx, q, newID, position, false)
	}
	for i := range c.Certificates {
		cert := &c.Certificates[i]
		im.entity(ctx, domain.KindCertificate, cert.OldID, false, func() store.Fields {
			return mappers.CertificateToTarget(*cert, newID)
		})
	}
}

func (im *Importer) quiz(ctx context.Context, q *domain.Quiz, courseID int64, position int, orphan bool) {
	quizID, ok := im.entity(ctx, domain.KindQuiz, q.OldID, orphan, func() store.Fields {
		return mappers.QuizToTarget(*q, courseID, position)
	})
	if !ok {
		return
	}
	for i := range q.Questions {
		qs := &q.Questions[i]
		pos := i + 1
		im.entity(ctx, domain.KindQuestion, qs.OldID, orphan, func() store.Fields {
			return mappers.QuestionToTarget(*qs, quizID, pos)
		})
	}
}

func (im *Importer) assignments(ctx context.Context, as []domain.Assignment, lessonID, courseID int64, orphan bool) {
	for i := range as {
		a := &as[i]
		im.entity(ctx, domain.KindAssignment, a.OldID, orphan, func() store.Fields {
			return mappers.AssignmentToTarget(*a, lessonID, courseID)
		})
	}
}

// orphans imports the reported orphans after every course, attached to
// whichever parent the ID map resolves.
func (im *Importer) orphans(ctx context.Context, o *domain.Orphans) {
	for i := range o.Units {
		u := &o.Units[i]
		courseID := im.resolved(domain.KindCourse, u.ParentOldID)
		unitID, ok := im.entity(ctx, domain.KindUnit, u.OldID, true, func() store.Fields {
			return mappers.UnitToTarget(*u, courseID, 0)
		})
		if ok {
			im.assignments(ctx, u.Assignments, unitID, courseID, true)
		}
	}
	for i := range o.Quizzes {
		q := &o.Quizzes[i]
		im.quiz(ctx, q, im.resolved(domain.KindCourse, q.ParentOldID), 0, true)
	}
	for i := range o.Assignments {
		a := &o.Assignments[i]
		lessonID := im.resolved(domain.KindUnit, a.ParentOldID)
		im.entity(ctx, domain.KindAssignment, a.OldID, true, func() store.Fields {
			return mappers.AssignmentToTarget(*a, lessonID, 0)
		})
	}
	for i := range o.Certificates {
		c := &o.Certificates[i]
		courseID := im.resolved(domain.KindCourse, c.ParentOldID)
		im.entity(ctx, domain.KindCertificate, c.OldID, true, func() store.Fields {
			return mappers.CertificateToTarget(*c, courseID)
		})
	}
}

// entity ensures one child entity and records its result. ok is false when
// it failed; its own children are then skipped.
func (im *Importer) entity(ctx context.Context, kind domain.Kind, oldID int64, orphan bool, fields func() store.Fields) (int64, bool) {
	newID, outcome, err := im.ensure(ctx, kind, oldID, fields)
	if err != nil {
		im.stats.Add(state.Result{Kind: kind, OldID: oldID, Outcome: state.OutcomeErrored, Orphan: orphan, Err: err})
		im.log.Error("entity failed", "kind", kind, "old_id", oldID, "error", err)
		return 0, false
	}
	im.stats.Add(state.Result{Kind: kind, OldID: oldID, NewID: newID, Outcome: outcome, Orphan: orphan})
	im.log.Debug("entity imported", "kind", kind, "old_id", oldID, "new_id", newID, "outcome", outcome)
	return newID, true
}

// ensure returns the target ID of (kind, oldID), creating the object only
// when the ID map has no entry. In dry-run mode unmapped entities resolve
// to 0 and nothing is written.
func (im *Importer) ensure(ctx context.Context, kind domain.Kind, oldID int64, fields func() store.Fields) (int64, state.Outcome, error) {
	if id, ok := im.ids.Lookup(kind, oldID); ok {
		if !im.opts.Recheck {
			return id, state.OutcomeSkipped, nil
		}
		obj, err := im.live(ctx, id)
		if err != nil {
			return 0, state.OutcomeErrored, err
		}
		if obj != nil {
			return im.reparent(ctx, kind, obj, fields())
		}
		im.log.Warn("mapped object is gone, recreating", "kind", kind, "old_id", oldID, "new_id", id)
		if !im.opts.DryRun {
			if err := im.ids.Drop(ctx, kind, oldID); err != nil {
				return 0, state.OutcomeErrored, errors.Mark(err, errors.ErrWrite)
			}
		}
	}
	if im.opts.DryRun {
		return 0, state.OutcomeWouldCreate, nil
	}

	newID, err := im.target.Create(ctx, mappers.TargetType(kind), fields())
	if err != nil {
		return 0, state.OutcomeErrored, errors.Mark(errors.Wrapf(err, "create %s %d", kind, oldID), errors.ErrWrite)
	}
	if err := im.ids.Put(ctx, kind, oldID, newID); err != nil {
		err = errors.Wrapf(err, "map %s %d -> %d", kind, oldID, newID)
		// an unmapped object would be created again by the next run
		if derr := im.target.Delete(ctx, newID); derr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(derr, "roll back %s %d", kind, newID))
		}
		return 0, state.OutcomeErrored, errors.Mark(err, errors.ErrWrite)
	}
	return newID, state.OutcomeCreated, nil
}

// live returns the mapped target object, or nil when it was deleted or
// trashed.
func (im *Importer) live(ctx context.Context, id int64) (*store.Object, error) {
	obj, err := im.target.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "recheck %d", id)
	}
	if obj == nil || obj.Status == domain.StatusTrash {
		return nil, nil
	}
	return obj, nil
}

// stale reports whether a mapped object no longer exists in the target.
// Without recheck the map is trusted.
func (im *Importer) stale(ctx context.Context, id int64) (bool, error) {
	if !im.opts.Recheck {
		return false, nil
	}
	obj, err := im.live(ctx, id)
	return obj == nil && err == nil, err
}

// reparentKeys are the meta slots that point at a parent object.
var reparentKeys = []string{store.MetaTargetCourseID, store.MetaTargetLessonID}

// reparent moves a mapped object under the parent resolved in this run. A
// recreated course leaves its mapped children pointing at the trashed one
// otherwise. Only the parent linkage is compared; content is left alone.
func (im *Importer) reparent(ctx context.Context, kind domain.Kind, obj *store.Object, want store.Fields) (int64, state.Outcome, error) {
	if im.opts.DryRun {
		return obj.ID, state.OutcomeSkipped, nil
	}
	changed := false
	if obj.ParentID != want.ParentID {
		if err := im.target.SetParent(ctx, obj.ID, want.ParentID); err != nil {
			return 0, state.OutcomeErrored, errors.Mark(errors.Wrapf(err, "reparent %s %d", kind, obj.ID), errors.ErrWrite)
		}
		changed = true
	}
	for _, key := range reparentKeys {
		v, ok := want.Meta[key]
		if !ok {
			continue
		}
		wrote, err := im.compareAndSet(ctx, obj.ID, key, norm(v), v)
		if err != nil {
			return 0, state.OutcomeErrored, err
		}
		changed = changed || wrote
	}
	if !changed {
		return obj.ID, state.OutcomeSkipped, nil
	}
	im.log.Info("reparented", "kind", kind, "new_id", obj.ID, "from", obj.ParentID, "to", want.ParentID)
	return obj.ID, state.OutcomeUpdated, nil
}

func (im *Importer) resolved(kind domain.Kind, oldID int64) int64 {
	if oldID == 0 {
		return 0
	}
	id, _ := im.ids.Lookup(kind, oldID)
	return id
}

// syncCommerce re-derives the product link and the call-to-action meta of
// a course from the snapshot: a differing value is written, a value the
// snapshot no longer carries is removed. It reports whether anything changed.
func (im *Importer) syncCommerce(ctx context.Context, courseID int64, c *domain.Course) bool {
	cs := &im.stats.Commerce
	changed := false

	if c.Commerce.AccessType == domain.AccessPaid && c.AccessTypeFinal == domain.AccessClosed {
		cs.Downgraded++
	}

	var want string
	var value any
	if c.Commerce.ProductID == nil {
		cs.NoProduct++
	} else {
		want, value = strconv.FormatInt(*c.Commerce.ProductID, 10), *c.Commerce.ProductID
	}
	wrote, err := im.compareAndSet(ctx, courseID, store.MetaTargetProductID, want, value)
	switch {
	case err != nil:
		im.stats.Issue(domain.KindCourse, c.OldID, err)
	case wrote:
		cs.Linked++
		changed = true
	case value != nil:
		cs.Unchanged++
	}

	var url, label string
	if c.Button != nil {
		url, label = c.Button.URL, c.Button.Label
	}
	wroteURL, err := im.compareAndSet(ctx, courseID, store.MetaButtonURL, url, optional(url))
	if err != nil {
		im.stats.Issue(domain.KindCourse, c.OldID, err)
		return changed
	}
	wroteLabel, err := im.compareAndSet(ctx, courseID, store.MetaButtonLabel, label, optional(label))
	if err != nil {
		im.stats.Issue(domain.KindCourse, c.OldID, err)
		return changed
	}
	if wroteURL || wroteLabel {
		cs.ButtonSynced++
		changed = true
	}
	return changed
}

// compareAndSet writes value under key unless the stored value already
// renders as want. A nil value removes the key.
func (im *Importer) compareAndSet(ctx context.Context, id int64, key, want string, value any) (bool, error) {
	cur, err := im.target.GetMeta(ctx, id, key)
	if err != nil {
		return false, errors.Wrapf(err, "read %s of %d", key, id)
	}
	if norm(cur) == strings.TrimSpace(want) {
		return false, nil
	}
	if value == nil {
		if err := im.target.DeleteMeta(ctx, id, key); err != nil {
			return false, errors.Mark(errors.Wrapf(err, "remove %s of %d", key, id), errors.ErrWrite)
		}
		return true, nil
	}
	if err := im.target.SetMeta(ctx, id, key, value); err != nil {
		return false, errors.Mark(errors.Wrapf(err, "write %s of %d", key, id), errors.ErrWrite)
	}
	return true, nil
}

func optional(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func (im *Importer) stashEnrollments(ctx context.Context, c *domain.Course) {
	if len(c.Enrollments) == 0 || string(c.Enrollments) == "null" || im.enroll == nil {
		return
	}
	if err := im.enroll.Stash(ctx, c.OldID, c.Enrollments); err != nil {
		im.stats.Issue(domain.KindCourse, c.OldID, errors.Mark(err, errors.ErrWrite))
		return
	}
	im.stats.Enrollments++
}

func norm(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
