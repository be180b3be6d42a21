// Package extract assembles the export payload from the source LMS: the
// curriculum graph, orphan classification, commerce reconciliation and
// per-course content.
package extract

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lms-migrate/internal/commerce"
	"lms-migrate/internal/curriculum"
	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/orphans"
	"lms-migrate/internal/relation"
	"lms-migrate/internal/store"
)

type Options struct {
	Mode  domain.ExportMode
	Scope domain.Scope
	// Source names the exported database in export_meta.
	Source string
	// StrictReverseMatch is passed to the commerce reconciler.
	StrictReverseMatch bool
}

type Exporter struct {
	src     store.Content
	catalog store.Catalog
	opts    Options
	log     *logger.Logger
	now     func() time.Time
}

func New(src store.Content, catalog store.Catalog, opts Options, logg *logger.Logger) *Exporter {
	if logg == nil {
		logg = logger.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeStrict
	}
	return &Exporter{src: src, catalog: catalog, opts: opts, log: logg, now: time.Now}
}

// export is the state of one Export call.
type export struct {
	*Exporter
	g       *curriculum.Graph
	rec     *commerce.Reconciler
	payload *domain.Payload
	terms   map[string]map[int64]domain.Term
}

// Export builds the payload. Only store failures abort; everything else is
// recorded in the analysis section.
func (e *Exporter) Export(ctx context.Context) (*domain.Payload, error) {
	runID := e.log.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	x := &export{
		Exporter: e,
		rec:      commerce.New(e.catalog, e.src, e.opts.StrictReverseMatch, e.log),
		terms:    map[string]map[int64]domain.Term{store.TaxonomyCategory: {}, store.TaxonomyTag: {}},
		payload: &domain.Payload{
			ExportMeta: domain.ExportMeta{
				Version:     domain.PayloadVersion,
				RunID:       runID,
				GeneratedAt: e.now().UTC(),
				Source:      e.opts.Source,
				Scope:       e.opts.Scope,
			},
			Courses: []domain.Course{},
			Mode:    e.opts.Mode,
			Analysis: domain.Analysis{
				Traces:    map[string][]domain.TraceEntry{},
				Discovery: map[string]domain.DiscoveryChannel{},
			},
		},
	}

	g, err := curriculum.BuildGraph(ctx, e.src, e.log)
	if err != nil {
		return nil, errors.Wrap(err, "build curriculum graph")
	}
	x.g = g
	cls := orphans.Classify(ctx, g, e.opts.Scope, e.opts.Mode, e.log)

	for _, cid := range g.CourseIDs() {
		if !e.opts.Scope.Contains(cid) {
			continue
		}
		c, err := x.course(ctx, cid)
		if err != nil {
			return nil, err
		}
		x.payload.Courses = append(x.payload.Courses, *c)
	}
	if !e.opts.Scope.All {
		for _, id := range e.opts.Scope.IDs {
			if !g.IsLive(id, domain.KindCourse) {
				x.missing(domain.OrphanEntry{Kind: domain.KindCourse, OldID: id, Reason: domain.ReasonIDNotFound})
			}
		}
	}

	if err := x.orphans(ctx, cls); err != nil {
		return nil, err
	}

	a := &x.payload.Analysis
	a.Counts = cls.Counts
	a.Reported = nonNil(cls.Reported)
	a.Suppressed = nonNil(cls.Suppressed)
	a.MissingRefs = append(nonNil(a.MissingRefs), g.MissingRefs...)
	a.Issues = append(append(a.Issues, g.Issues...), cls.Issues...)
	if a.Issues == nil {
		a.Issues = []domain.Issue{}
	}

	x.payload.Taxonomies = domain.Taxonomies{
		Categories: sortTerms(x.terms[store.TaxonomyCategory]),
		Tags:       sortTerms(x.terms[store.TaxonomyTag]),
	}
	x.stats()

	for _, is := range a.Issues {
		e.log.Warn("export issue", "kind", is.Kind, "old_id", is.OldID, "class", is.Class, "message", is.Message)
	}
	e.log.Info("export assembled",
		"courses", len(x.payload.Courses),
		"orphans", x.payload.Stats.Orphans,
		"missing_refs", len(a.MissingRefs),
		"mode", e.opts.Mode)
	return x.payload, nil
}

func (x *export) course(ctx context.Context, cid int64) (*domain.Course, error) {
	obj, err := x.g.Object(ctx, cid)
	if err != nil {
		return nil, err
	}
	meta, err := x.src.GetAllMeta(ctx, cid)
	if err != nil {
		return nil, errors.Wrapf(err, "course %d meta", cid)
	}

	c := &domain.Course{
		Base:         base(obj),
		Duration:     text(meta[store.MetaDuration]),
		DurationUnit: text(meta[store.MetaDurationUnit]),
	}

	out, err := x.rec.Reconcile(ctx, cid)
	if err != nil {
		return nil, err
	}
	c.Commerce = out.Info
	c.AccessType = out.Info.AccessType
	c.AccessTypeFinal = out.Info.AccessTypeFinal
	c.Button = out.Button
	for _, w := range out.Info.Warnings {
		x.log.Warn("commerce warning", "course", cid, "warning", w)
	}

	if c.CategoryTerms, err = x.courseTerms(ctx, cid, store.TaxonomyCategory); err != nil {
		return nil, err
	}
	if c.TagTerms, err = x.courseTerms(ctx, cid, store.TaxonomyTag); err != nil {
		return nil, err
	}

	edges := x.g.Courses[cid]
	key := strconv.FormatInt(cid, 10)
	c.Curriculum = nonNil(edges.Curriculum)
	x.payload.Analysis.Traces[key] = nonNil(edges.Trace)

	c.Units = []domain.Unit{}
	for _, uid := range edges.UnitIDs {
		u, err := x.unit(ctx, uid, nil)
		if err != nil {
			return nil, err
		}
		c.Units = append(c.Units, *u)
	}

	quizIDs, channel := x.g.Quizzes(cid)
	x.payload.Analysis.Discovery[key] = channel
	c.Quizzes = []domain.Quiz{}
	for _, qid := range quizIDs {
		q, err := x.quiz(ctx, qid)
		if err != nil {
			return nil, err
		}
		c.Quizzes = append(c.Quizzes, *q)
	}

	c.Certificates = []domain.Certificate{}
	for _, certID := range x.g.CourseCertificates[cid] {
		o, err := x.g.Object(ctx, certID)
		if err != nil {
			return nil, err
		}
		c.Certificates = append(c.Certificates, domain.Certificate{Base: base(o)})
	}

	if c.Media, err = x.media(ctx, cid, meta); err != nil {
		return nil, err
	}
	c.Enrollments = rawJSON(meta[store.MetaEnrollments])
	return c, nil
}

// unit loads a unit and its assignments. keep, when set, filters assignments.
func (x *export) unit(ctx context.Context, uid int64, keep func(int64) bool) (*domain.Unit, error) {
	o, err := x.g.Object(ctx, uid)
	if err != nil {
		return nil, err
	}
	u := &domain.Unit{Base: base(o), Assignments: []domain.Assignment{}}
	for _, aid := range x.g.UnitAssignments[uid] {
		if keep != nil && !keep(aid) {
			continue
		}
		a, err := x.g.Object(ctx, aid)
		if err != nil {
			return nil, err
		}
		asg := domain.Assignment{Base: base(a)}
		asg.ParentOldID = uid
		u.Assignments = append(u.Assignments, asg)
	}
	return u, nil
}

func (x *export) quiz(ctx context.Context, qid int64) (*domain.Quiz, error) {
	o, err := x.g.Object(ctx, qid)
	if err != nil {
		return nil, err
	}
	meta, err := x.src.GetAllMeta(ctx, qid)
	if err != nil {
		return nil, errors.Wrapf(err, "quiz %d meta", qid)
	}
	q := &domain.Quiz{Base: base(o), PassingGrade: text(meta[store.MetaPassingGrade]), Questions: []domain.Question{}}

	refs := relation.Normalize(meta[store.MetaQuizQuestions])
	if refs.Unparseable || refs.Err != nil {
		x.issue(domain.KindQuiz, qid, errors.Mark(
			errors.Newf("meta %s: no id in %q", store.MetaQuizQuestions, refs.Raw), errors.ErrNormalization))
	}
	for _, id := range refs.IDs {
		qo, err := x.g.Object(ctx, id)
		if err != nil {
			return nil, err
		}
		if qo == nil || !qo.Status.Live() || qo.Type != store.TypeQuestion {
			x.missing(domain.OrphanEntry{Kind: domain.KindQuestion, OldID: id, Reason: domain.ReasonIDNotFound, ParentOldID: qid})
			continue
		}
		qm, err := x.src.GetAllMeta(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "question %d meta", id)
		}
		question := domain.Question{
			Base:         base(qo),
			QuestionType: text(qm[store.MetaQuestionType]),
			Answers:      rawJSON(qm[store.MetaAnswers]),
		}
		question.ParentOldID = qid
		q.Questions = append(q.Questions, question)
	}
	return q, nil
}

func (x *export) media(ctx context.Context, cid int64, meta map[string]any) ([]domain.MediaRef, error) {
	out := []domain.MediaRef{}
	seen := map[int64]bool{}
	add := func(id int64, role string) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		o, err := x.g.Object(ctx, id)
		if err != nil {
			return err
		}
		if o == nil || o.Type != store.TypeAttachment || !o.Status.Live() && o.Status != domain.StatusInherit {
			x.missing(domain.OrphanEntry{Kind: domain.KindMedia, OldID: id, Reason: domain.ReasonIDNotFound, ParentOldID: cid})
			return nil
		}
		out = append(out, domain.MediaRef{OldID: id, URL: o.GUID, Title: o.Title, Role: role})
		return nil
	}
	for _, id := range relation.Normalize(meta[store.MetaThumbnailID]).IDs {
		if err := add(id, "thumbnail"); err != nil {
			return nil, err
		}
	}
	for _, id := range relation.Normalize(meta[store.MetaGallery]).IDs {
		if err := add(id, "gallery"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (x *export) courseTerms(ctx context.Context, cid int64, taxonomy string) ([]domain.Term, error) {
	terms, err := x.src.Terms(ctx, cid, taxonomy)
	if err != nil {
		return nil, errors.Wrapf(err, "course %d %s", cid, taxonomy)
	}
	for _, t := range terms {
		x.terms[taxonomy][t.ID] = t
	}
	out := nonNil(terms)
	sortTermSlice(out)
	return out, nil
}

// orphans fills the payload orphan section with the reported entities.
// Assignments whose unit is reported travel inside that unit.
func (x *export) orphans(ctx context.Context, cls *orphans.Result) error {
	o := &x.payload.Orphans
	o.Units, o.Quizzes, o.Assignments, o.Certificates =
		[]domain.Unit{}, []domain.Quiz{}, []domain.Assignment{}, []domain.Certificate{}

	reportedUnit := map[int64]bool{}
	for _, e := range cls.ReportedOf(domain.KindUnit) {
		reportedUnit[e.OldID] = true
	}
	for _, e := range cls.ReportedOf(domain.KindUnit) {
		u, err := x.unit(ctx, e.OldID, func(aid int64) bool { return cls.IsReported(domain.KindAssignment, aid) })
		if err != nil {
			return err
		}
		u.ParentOldID = e.ParentOldID
		o.Units = append(o.Units, *u)
	}
	for _, e := range cls.ReportedOf(domain.KindQuiz) {
		q, err := x.quiz(ctx, e.OldID)
		if err != nil {
			return err
		}
		q.ParentOldID = e.ParentOldID
		o.Quizzes = append(o.Quizzes, *q)
	}
	for _, e := range cls.ReportedOf(domain.KindAssignment) {
		if reportedUnit[e.ParentOldID] {
			continue
		}
		obj, err := x.g.Object(ctx, e.OldID)
		if err != nil {
			return err
		}
		a := domain.Assignment{Base: base(obj)}
		a.ParentOldID = e.ParentOldID
		o.Assignments = append(o.Assignments, a)
	}
	for _, e := range cls.ReportedOf(domain.KindCertificate) {
		obj, err := x.g.Object(ctx, e.OldID)
		if err != nil {
			return err
		}
		c := domain.Certificate{Base: base(obj)}
		c.ParentOldID = e.ParentOldID
		o.Certificates = append(o.Certificates, c)
	}
	return nil
}

func (x *export) stats() {
	s := &x.payload.Stats
	s.Courses = len(x.payload.Courses)
	for _, c := range x.payload.Courses {
		s.Units += len(c.Units)
		s.Quizzes += len(c.Quizzes)
		s.Certificates += len(c.Certificates)
		s.Media += len(c.Media)
		for _, u := range c.Units {
			s.Assignments += len(u.Assignments)
		}
		for _, q := range c.Quizzes {
			s.Questions += len(q.Questions)
		}
	}
	o := x.payload.Orphans
	s.Orphans = len(o.Units) + len(o.Quizzes) + len(o.Assignments) + len(o.Certificates)
	for _, u := range o.Units {
		s.Orphans += len(u.Assignments)
	}
}

func (x *export) missing(e domain.OrphanEntry) {
	x.payload.Analysis.MissingRefs = append(x.payload.Analysis.MissingRefs, e)
}

func (x *export) issue(kind domain.Kind, id int64, err error) {
	x.payload.Analysis.Issues = append(x.payload.Analysis.Issues,
		domain.Issue{Kind: kind, OldID: id, Class: errors.Class(err), Message: err.Error()})
}

func base(o *store.Object) domain.Base {
	return domain.Base{
		OldID:  o.ID,
		Title:  o.Title,
		Body:   o.Body,
		Status: o.Status,
		Slug:   o.Slug,
	}
}

// sortTerms orders terms by taxonomy depth, then slug.
func sortTerms(m map[int64]domain.Term) []domain.Term {
	out := make([]domain.Term, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sortTermSlice(out)
	return out
}

func sortTermSlice(ts []domain.Term) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Depth != ts[j].Depth {
			return ts[i].Depth < ts[j].Depth
		}
		return ts[i].Slug < ts[j].Slug
	})
}

// rawJSON carries a meta value into the payload verbatim: JSON text stays
// as is, anything else is encoded.
func rawJSON(v any) json.RawMessage {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if json.Valid([]byte(s)) && (s[0] == '[' || s[0] == '{') {
			return json.RawMessage(s)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
