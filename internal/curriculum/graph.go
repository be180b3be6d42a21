// Package curriculum builds the typed content graph of the source LMS:
// course curricula, the unit reverse index, quiz back-references, unit
// assignments and course certificates.
package curriculum

import (
	"context"
	"fmt"
	"sort"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/relation"
	"lms-migrate/internal/store"
)

// Edges is the result of walking one course curriculum.
type Edges struct {
	CourseID   int64
	Curriculum []domain.CurriculumItem
	UnitIDs    []int64
	QuizIDs    []int64
	Trace      []domain.TraceEntry
	// Missing are numeric entries that do not resolve to a live object.
	Missing []domain.OrphanEntry
}

// Graph is the content graph of every live course, built once per run.
type Graph struct {
	// Live holds every live source object of the graph kinds, ordered by ID.
	Live map[domain.Kind][]store.Object
	// Totals are the live counts per kind as the store reports them,
	// independent of Live.
	Totals map[domain.Kind]int

	Courses map[int64]*Edges

	// UnitOwners is the reverse index unit -> owning courses, in course ID
	// order. It is the only source of truth for unit linkage.
	UnitOwners map[int64][]int64

	// QuizCourses holds the course IDs each live quiz references through its
	// own metadata, dead ones included.
	QuizCourses map[int64][]int64
	// CourseBackRefs is the live-course side of QuizCourses: course -> quizzes.
	CourseBackRefs map[int64][]int64

	UnitAssignments  map[int64][]int64
	AssignmentOwners map[int64][]int64

	CourseCertificates map[int64][]int64
	CertificateOwners  map[int64][]int64

	MissingRefs []domain.OrphanEntry
	Issues      []domain.Issue

	objects map[int64]*store.Object
	src     store.Content
	log     *logger.Logger
}

var graphKinds = []domain.Kind{
	domain.KindCourse, domain.KindUnit, domain.KindQuiz, domain.KindAssignment, domain.KindCertificate,
}

// BuildGraph loads every live course, unit, quiz, assignment and certificate
// and links them. Recoverable problems end up in Issues and MissingRefs;
// only store errors are returned.
func BuildGraph(ctx context.Context, src store.Content, logg *logger.Logger) (*Graph, error) {
	if logg == nil {
		logg = logger.NewNop()
	}
	g := &Graph{
		Live:               map[domain.Kind][]store.Object{},
		Totals:             map[domain.Kind]int{},
		Courses:            map[int64]*Edges{},
		UnitOwners:         map[int64][]int64{},
		QuizCourses:        map[int64][]int64{},
		CourseBackRefs:     map[int64][]int64{},
		UnitAssignments:    map[int64][]int64{},
		AssignmentOwners:   map[int64][]int64{},
		CourseCertificates: map[int64][]int64{},
		CertificateOwners:  map[int64][]int64{},
		objects:            map[int64]*store.Object{},
		src:                src,
		log:                logg,
	}

	for _, k := range graphKinds {
		objs, err := src.Query(ctx, string(k), domain.LiveStatuses)
		if err != nil {
			return nil, errors.Wrapf(err, "query live %s", k)
		}
		g.Live[k] = objs
		if g.Totals[k], err = src.Count(ctx, string(k), domain.LiveStatuses); err != nil {
			return nil, errors.Wrapf(err, "count live %s", k)
		}
		for i := range objs {
			g.objects[objs[i].ID] = &objs[i]
		}
	}

	for _, c := range g.Live[domain.KindCourse] {
		e, err := g.build(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		g.Courses[c.ID] = e
		for _, u := range e.UnitIDs {
			g.UnitOwners[u] = append(g.UnitOwners[u], c.ID)
		}
		g.MissingRefs = append(g.MissingRefs, e.Missing...)

		certs, err := g.links(ctx, c.ID, domain.KindCourse, store.MetaCourseCertificate, domain.KindCertificate)
		if err != nil {
			return nil, err
		}
		g.CourseCertificates[c.ID] = certs
		for _, cert := range certs {
			g.CertificateOwners[cert] = append(g.CertificateOwners[cert], c.ID)
		}
	}

	for _, q := range g.Live[domain.KindQuiz] {
		raw, err := src.GetMeta(ctx, q.ID, store.MetaQuizCourses)
		if err != nil {
			return nil, errors.Wrapf(err, "quiz %d back-refs", q.ID)
		}
		res := relation.Normalize(raw)
		g.noteNormalization(domain.KindQuiz, q.ID, store.MetaQuizCourses, res)
		if len(res.IDs) == 0 {
			continue
		}
		g.QuizCourses[q.ID] = res.IDs
		for _, cid := range res.IDs {
			if _, ok := g.Courses[cid]; ok {
				g.CourseBackRefs[cid] = append(g.CourseBackRefs[cid], q.ID)
			}
		}
	}

	for _, u := range g.Live[domain.KindUnit] {
		as, err := g.links(ctx, u.ID, domain.KindUnit, store.MetaUnitAssignments, domain.KindAssignment)
		if err != nil {
			return nil, err
		}
		g.UnitAssignments[u.ID] = as
		for _, a := range as {
			g.AssignmentOwners[a] = append(g.AssignmentOwners[a], u.ID)
		}
	}

	return g, nil
}

// Build walks the curriculum of one course. Numeric entries are resolved
// against the live type of the referenced object; everything that is not a
// live unit or quiz goes to the trace and the walk continues.
func Build(ctx context.Context, src store.Content, courseID int64) (*Edges, error) {
	g := &Graph{objects: map[int64]*store.Object{}, src: src, log: logger.NewNop()}
	return g.build(ctx, courseID)
}

func (g *Graph) build(ctx context.Context, courseID int64) (*Edges, error) {
	e := &Edges{CourseID: courseID}

	raw, err := g.src.GetMeta(ctx, courseID, store.MetaCurriculum)
	if err != nil {
		return nil, errors.Wrapf(err, "course %d curriculum", courseID)
	}
	elems, _, perr := relation.Sequence(raw)
	if perr != nil {
		g.issue(domain.KindCourse, courseID, errors.Mark(
			errors.Wrapf(perr, "meta %s", store.MetaCurriculum), errors.ErrNormalization))
	}

	seen := map[int64]bool{}
	for _, el := range elems {
		if !el.Numeric {
			e.Trace = append(e.Trace, domain.TraceEntry{Raw: el.Text, Tag: domain.TraceTitle})
			continue
		}
		obj, err := g.object(ctx, el.ID)
		if err != nil {
			return nil, err
		}
		if obj == nil || !obj.Status.Live() {
			t := domain.TraceEntry{Raw: el.Text, Tag: domain.TraceNotFound, OldID: el.ID}
			m := domain.OrphanEntry{OldID: el.ID, Reason: domain.ReasonIDNotFound, ParentOldID: courseID}
			if obj != nil {
				t.ResolvedType = obj.Type
				m.Kind = domain.Kind(obj.Type)
			}
			e.Trace = append(e.Trace, t)
			e.Missing = append(e.Missing, m)
			continue
		}
		kind := domain.Kind(obj.Type)
		if kind != domain.KindUnit && kind != domain.KindQuiz {
			e.Trace = append(e.Trace, domain.TraceEntry{Raw: el.Text, Tag: domain.TraceOtherType, OldID: el.ID, ResolvedType: obj.Type})
			continue
		}
		if seen[el.ID] {
			e.Trace = append(e.Trace, domain.TraceEntry{Raw: el.Text, Tag: domain.TraceDuplicate, OldID: el.ID, ResolvedType: obj.Type})
			continue
		}
		seen[el.ID] = true
		e.Curriculum = append(e.Curriculum, domain.CurriculumItem{Type: kind, OldID: el.ID})
		if kind == domain.KindUnit {
			e.UnitIDs = append(e.UnitIDs, el.ID)
		} else {
			e.QuizIDs = append(e.QuizIDs, el.ID)
		}
	}
	return e, nil
}

// links normalizes an ID-set meta slot of owner and keeps the IDs that
// resolve to a live object of kind want. Dangling IDs are recorded as
// missing references.
func (g *Graph) links(ctx context.Context, owner int64, ownerKind domain.Kind, key string, want domain.Kind) ([]int64, error) {
	raw, err := g.src.GetMeta(ctx, owner, key)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %d meta %s", ownerKind, owner, key)
	}
	res := relation.Normalize(raw)
	g.noteNormalization(ownerKind, owner, key, res)

	var out []int64
	for _, id := range res.IDs {
		obj, err := g.object(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case obj == nil || !obj.Status.Live():
			g.MissingRefs = append(g.MissingRefs, domain.OrphanEntry{
				Kind: want, OldID: id, Reason: domain.ReasonIDNotFound, ParentOldID: owner,
			})
		case domain.Kind(obj.Type) != want:
			g.log.Warn("relationship points at unexpected type",
				"owner_kind", ownerKind, "owner", owner, "meta", key, "id", id, "type", obj.Type)
		default:
			out = append(out, id)
		}
	}
	return out, nil
}

func (g *Graph) object(ctx context.Context, id int64) (*store.Object, error) {
	if o, ok := g.objects[id]; ok {
		return o, nil
	}
	o, err := g.src.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup %d", id)
	}
	g.objects[id] = o
	return o, nil
}

// Object returns a cached source object, loading it on first use. It
// returns nil for unknown IDs.
func (g *Graph) Object(ctx context.Context, id int64) (*store.Object, error) {
	return g.object(ctx, id)
}

func (g *Graph) noteNormalization(kind domain.Kind, id int64, key string, res relation.Result) {
	switch {
	case res.Err != nil:
		g.issue(kind, id, errors.Mark(errors.Wrapf(res.Err, "meta %s", key), errors.ErrNormalization))
	case res.Unparseable:
		g.issue(kind, id, errors.Mark(errors.Newf("meta %s: no id in %q", key, res.Raw), errors.ErrNormalization))
	}
}

func (g *Graph) issue(kind domain.Kind, id int64, err error) {
	g.log.Warn("relationship normalization failed", "kind", kind, "old_id", id, "error", err)
	g.Issues = append(g.Issues, domain.Issue{Kind: kind, OldID: id, Class: errors.Class(err), Message: err.Error()})
}

// Quizzes returns the quizzes discovered for a course: curriculum quizzes in
// curriculum order, then quizzes that reference the course from their own
// metadata, in ID order. The channel counts describe where they came from.
func (g *Graph) Quizzes(courseID int64) ([]int64, domain.DiscoveryChannel) {
	var ch domain.DiscoveryChannel
	e := g.Courses[courseID]
	if e == nil {
		return nil, ch
	}
	inCurriculum := map[int64]bool{}
	out := append([]int64(nil), e.QuizIDs...)
	for _, q := range e.QuizIDs {
		inCurriculum[q] = true
	}
	back := append([]int64(nil), g.CourseBackRefs[courseID]...)
	sort.Slice(back, func(i, j int) bool { return back[i] < back[j] })
	seen := map[int64]bool{}
	for _, q := range back {
		if seen[q] {
			continue
		}
		seen[q] = true
		ch.BackRef++
		if inCurriculum[q] {
			ch.Both++
			continue
		}
		out = append(out, q)
	}
	ch.Curriculum = len(e.QuizIDs)
	ch.Union = len(out)
	return out, ch
}

// QuizOwners returns every course a quiz is attached to through either
// discovery channel, in ID order.
func (g *Graph) QuizOwners(quizID int64) []int64 {
	set := map[int64]bool{}
	for cid, e := range g.Courses {
		for _, q := range e.QuizIDs {
			if q == quizID {
				set[cid] = true
			}
		}
	}
	for _, cid := range g.QuizCourses[quizID] {
		if _, ok := g.Courses[cid]; ok {
			set[cid] = true
		}
	}
	return sortedKeys(set)
}

// IsLive reports whether id is a live object of kind.
func (g *Graph) IsLive(id int64, kind domain.Kind) bool {
	o, ok := g.objects[id]
	return ok && o != nil && o.Status.Live() && domain.Kind(o.Type) == kind
}

// CourseIDs lists the live course IDs in order.
func (g *Graph) CourseIDs() []int64 {
	out := make([]int64, 0, len(g.Live[domain.KindCourse]))
	for _, c := range g.Live[domain.KindCourse] {
		out = append(out, c.ID)
	}
	return out
}

func (e *Edges) String() string {
	return fmt.Sprintf("course %d: %d units, %d quizzes, %d traced", e.CourseID, len(e.UnitIDs), len(e.QuizIDs), len(e.Trace))
}

func sortedKeys(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
