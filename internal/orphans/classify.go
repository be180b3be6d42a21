// Package orphans decides which live units, quizzes, assignments and
// certificates are unreachable from the exported courses, and which of
// those belong in the export.
package orphans

import (
	"context"
	"fmt"
	"sort"

	"lms-migrate/internal/curriculum"
	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/logger"
)

// Result is the outcome of one classification.
type Result struct {
	Mode   domain.ExportMode
	Counts map[domain.Kind]domain.KindCount
	// Linked holds the reachable IDs per kind.
	Linked     map[domain.Kind]map[int64]bool
	Reported   []domain.OrphanEntry
	Suppressed []domain.OrphanEntry
	Issues     []domain.Issue
}

// IsReported reports whether id of kind is in the reported orphan set.
func (r *Result) IsReported(kind domain.Kind, id int64) bool {
	for _, e := range r.Reported {
		if e.Kind == kind && e.OldID == id {
			return true
		}
	}
	return false
}

// ReportedOf returns the reported entries of one kind.
func (r *Result) ReportedOf(kind domain.Kind) []domain.OrphanEntry {
	var out []domain.OrphanEntry
	for _, e := range r.Reported {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type verdict int

const (
	include verdict = iota
	suppress
)

type classifier struct {
	g     *curriculum.Graph
	scope domain.Scope
	mode  domain.ExportMode
	res   *Result
	// reportedUnits is filled before assignments are classified.
	reportedUnits map[int64]bool
	log           *logger.Logger
}

// Classify computes linkage for the courses in scope and classifies every
// unreachable entity under mode. In strict mode the classifier is bypassed:
// nothing is reported and the conservation check is not evaluated.
func Classify(ctx context.Context, g *curriculum.Graph, scope domain.Scope, mode domain.ExportMode, logg *logger.Logger) *Result {
	if logg == nil {
		logg = logger.NewNop()
	}
	c := &classifier{
		g:     g,
		scope: scope,
		mode:  mode,
		res: &Result{
			Mode:   mode,
			Counts: map[domain.Kind]domain.KindCount{},
			Linked: map[domain.Kind]map[int64]bool{},
		},
		reportedUnits: map[int64]bool{},
		log:           logg,
	}
	c.link()

	for _, k := range domain.OrphanKinds {
		live := g.Live[k]
		kc := domain.KindCount{Total: g.Totals[k], Linked: len(c.res.Linked[k])}
		if mode == domain.ModeStrict {
			c.res.Counts[k] = kc
			continue
		}
		for _, o := range live {
			if c.res.Linked[k][o.ID] {
				continue
			}
			entry, v := c.classify(k, o.ID, o.ParentID)
			if v == suppress {
				c.res.Suppressed = append(c.res.Suppressed, entry)
				kc.Suppressed++
				continue
			}
			c.res.Reported = append(c.res.Reported, entry)
			kc.Reported++
			if k == domain.KindUnit {
				c.reportedUnits[o.ID] = true
			}
		}
		kc.Checked = true
		kc.OK = kc.Linked+kc.Reported+kc.Suppressed == kc.Total
		if !kc.OK {
			err := errors.Mark(errors.Newf("%s: linked %d + reported %d + suppressed %d != total %d",
				k, kc.Linked, kc.Reported, kc.Suppressed, kc.Total), errors.ErrInvariant)
			c.log.Warn("orphan conservation check failed", "kind", k, "error", err)
			c.res.Issues = append(c.res.Issues, domain.Issue{Kind: k, Class: errors.Class(err), Message: err.Error()})
		}
		c.res.Counts[k] = kc
	}

	c.log.Info("orphan classification done",
		"mode", mode, "scope", scope.String(), "reported", len(c.res.Reported), "suppressed", len(c.res.Suppressed))
	return c.res
}

// link marks everything reachable from the in-scope courses.
func (c *classifier) link() {
	for _, k := range domain.OrphanKinds {
		c.res.Linked[k] = map[int64]bool{}
	}
	for _, cid := range c.g.CourseIDs() {
		if !c.scope.Contains(cid) {
			continue
		}
		e := c.g.Courses[cid]
		for _, u := range e.UnitIDs {
			c.res.Linked[domain.KindUnit][u] = true
			for _, a := range c.g.UnitAssignments[u] {
				c.res.Linked[domain.KindAssignment][a] = true
			}
		}
		quizzes, _ := c.g.Quizzes(cid)
		for _, q := range quizzes {
			c.res.Linked[domain.KindQuiz][q] = true
		}
		for _, cert := range c.g.CourseCertificates[cid] {
			c.res.Linked[domain.KindCertificate][cert] = true
		}
	}
}

func (c *classifier) classify(k domain.Kind, id, postParent int64) (domain.OrphanEntry, verdict) {
	switch k {
	case domain.KindUnit:
		return c.unit(id, postParent)
	case domain.KindQuiz:
		return c.quiz(id, postParent)
	case domain.KindAssignment:
		return c.assignment(id, postParent)
	case domain.KindCertificate:
		return c.certificate(id, postParent)
	}
	panic(fmt.Sprintf("orphans: unexpected kind %s", k))
}

// unit parents come from the reverse index first, post_parent otherwise.
func (c *classifier) unit(id, postParent int64) (domain.OrphanEntry, verdict) {
	e := domain.OrphanEntry{Kind: domain.KindUnit, OldID: id, Reason: domain.ReasonNoCourseLink}
	parents := c.g.UnitOwners[id]
	if len(parents) == 0 && postParent != 0 {
		parents = []int64{postParent}
	}
	return c.decide(e, parents, domain.KindCourse, c.courseInScope)
}

func (c *classifier) quiz(id, postParent int64) (domain.OrphanEntry, verdict) {
	e := domain.OrphanEntry{Kind: domain.KindQuiz, OldID: id, Reason: domain.ReasonNoCourseLink}
	refs := c.g.QuizCourses[id]
	if len(refs) == 0 && postParent != 0 {
		refs = []int64{postParent}
	}
	owners := c.g.QuizOwners(id)
	if len(owners) == 0 && len(refs) > 0 {
		e.Reason = domain.ReasonMissingParentDeleted
		e.ParentOldID = refs[0]
		for _, r := range refs {
			if c.g.IsLive(r, domain.KindCourse) {
				owners = append(owners, r)
			}
		}
		if len(owners) > 0 {
			e.Reason = domain.ReasonNoCourseLink
		}
	}
	return c.decide(e, owners, domain.KindCourse, c.courseInScope)
}

func (c *classifier) assignment(id, postParent int64) (domain.OrphanEntry, verdict) {
	e := domain.OrphanEntry{Kind: domain.KindAssignment, OldID: id, Reason: domain.ReasonNotInCurriculum}
	parents := c.g.AssignmentOwners[id]
	if len(parents) > 0 {
		e.Reason = domain.ReasonNoCourseLink
	} else if postParent != 0 {
		parents = []int64{postParent}
	}
	return c.decide(e, parents, domain.KindUnit, c.unitInScope)
}

func (c *classifier) certificate(id, postParent int64) (domain.OrphanEntry, verdict) {
	e := domain.OrphanEntry{Kind: domain.KindCertificate, OldID: id, Reason: domain.ReasonNoCourseLink}
	parents := c.g.CertificateOwners[id]
	if len(parents) == 0 && postParent != 0 {
		parents = []int64{postParent}
	}
	return c.decide(e, parents, domain.KindCourse, c.courseInScope)
}

// decide applies the mode. discover_all includes everything. discover_related
// includes an entity with no live parent reference, or with a parent in
// scope; a live parent that is out of scope suppresses it.
func (c *classifier) decide(e domain.OrphanEntry, parents []int64, parentKind domain.Kind, inScope func(int64) bool) (domain.OrphanEntry, verdict) {
	var live []int64
	for _, p := range parents {
		if c.g.IsLive(p, parentKind) {
			live = append(live, p)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
	if len(live) > 0 {
		e.ParentOldID = live[0]
	}
	if c.mode == domain.ModeDiscoverAll || len(live) == 0 {
		return e, include
	}
	for _, p := range live {
		if inScope(p) {
			e.ParentOldID = p
			return e, include
		}
	}
	return e, suppress
}

func (c *classifier) courseInScope(id int64) bool {
	return c.scope.Contains(id)
}

// unitInScope is true for units reached from the scope and for units
// reported as orphans themselves.
func (c *classifier) unitInScope(id int64) bool {
	return c.res.Linked[domain.KindUnit][id] || c.reportedUnits[id]
}
