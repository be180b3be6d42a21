package orphans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-migrate/internal/curriculum"
	"lms-migrate/internal/domain"
	"lms-migrate/internal/store"
	"lms-migrate/internal/store/memstore"
)

// fixture: course 1 (in scope) and course 7 (out of scope).
//
//	unit 10   in course 1 curriculum              linked
//	unit 42   post_parent 7, has assignment 43    suppressed under discover_related
//	unit 50   no parent at all                    reported
//	quiz 60   back-ref to deleted course 99       reported missing_parent_deleted
//	quiz 61   back-ref to course 7                suppressed
//	asg  70   not referenced by any unit          reported not_in_curriculum
//	cert 80   referenced by course 1              linked
func fixture(t *testing.T) *curriculum.Graph {
	t.Helper()
	src := memstore.New()
	put := func(id int64, typ string, parent int64, meta map[string]any) {
		src.Put(store.Object{ID: id, Type: typ, Title: typ, ParentID: parent}, meta)
	}
	put(1, store.TypeCourse, 0, map[string]any{store.MetaCurriculum: "10", store.MetaCourseCertificate: "80"})
	put(7, store.TypeCourse, 0, nil)
	put(10, store.TypeUnit, 1, nil)
	put(42, store.TypeUnit, 7, map[string]any{store.MetaUnitAssignments: "43"})
	put(43, store.TypeAssignment, 0, nil)
	put(50, store.TypeUnit, 0, nil)
	put(60, store.TypeQuiz, 0, map[string]any{store.MetaQuizCourses: "99"})
	put(61, store.TypeQuiz, 0, map[string]any{store.MetaQuizCourses: "7"})
	put(70, store.TypeAssignment, 0, nil)
	put(80, store.TypeCertificate, 0, nil)

	g, err := curriculum.BuildGraph(context.Background(), src, nil)
	require.NoError(t, err)
	return g
}

func TestDiscoverRelatedSuppressesOutOfScopeParent(t *testing.T) {
	g := fixture(t)
	res := Classify(context.Background(), g, domain.Scope{IDs: []int64{1}}, domain.ModeDiscoverRelated, nil)

	assert.False(t, res.IsReported(domain.KindUnit, 42))
	assert.Contains(t, res.Suppressed, domain.OrphanEntry{Kind: domain.KindUnit, OldID: 42, Reason: domain.ReasonNoCourseLink, ParentOldID: 7})
	assert.Contains(t, res.Suppressed, domain.OrphanEntry{Kind: domain.KindAssignment, OldID: 43, Reason: domain.ReasonNoCourseLink, ParentOldID: 42})

	assert.True(t, res.IsReported(domain.KindUnit, 50))
	assert.Contains(t, res.Reported, domain.OrphanEntry{Kind: domain.KindQuiz, OldID: 60, Reason: domain.ReasonMissingParentDeleted, ParentOldID: 99})
	assert.Contains(t, res.Reported, domain.OrphanEntry{Kind: domain.KindAssignment, OldID: 70, Reason: domain.ReasonNotInCurriculum})
	assert.False(t, res.IsReported(domain.KindQuiz, 61))

	units := res.Counts[domain.KindUnit]
	assert.Equal(t, domain.KindCount{Total: 3, Linked: 1, Reported: 1, Suppressed: 1, Checked: true, OK: true}, units)
	assert.Empty(t, res.Issues)
}

func TestDiscoverAllReportsEverything(t *testing.T) {
	g := fixture(t)
	res := Classify(context.Background(), g, domain.Scope{IDs: []int64{1}}, domain.ModeDiscoverAll, nil)

	assert.Empty(t, res.Suppressed)
	assert.True(t, res.IsReported(domain.KindUnit, 42))
	assert.True(t, res.IsReported(domain.KindAssignment, 43))
	assert.True(t, res.IsReported(domain.KindQuiz, 61))
	assert.Len(t, res.ReportedOf(domain.KindUnit), 2)
}

func TestStrictBypassesClassifier(t *testing.T) {
	g := fixture(t)
	res := Classify(context.Background(), g, domain.Scope{IDs: []int64{1}}, domain.ModeStrict, nil)

	assert.Empty(t, res.Reported)
	assert.Empty(t, res.Suppressed)
	for _, k := range domain.OrphanKinds {
		assert.False(t, res.Counts[k].Checked, k)
	}
	assert.Equal(t, 1, res.Counts[domain.KindCertificate].Linked)
}

func TestConservationHoldsForEveryKindAndMode(t *testing.T) {
	g := fixture(t)
	scopes := []domain.Scope{domain.AllScope(), {IDs: []int64{1}}, {IDs: []int64{7}}, {IDs: []int64{12345}}}
	for _, mode := range []domain.ExportMode{domain.ModeDiscoverRelated, domain.ModeDiscoverAll} {
		for _, scope := range scopes {
			res := Classify(context.Background(), g, scope, mode, nil)
			for _, k := range domain.OrphanKinds {
				c := res.Counts[k]
				assert.True(t, c.OK, "%s %s %s", mode, scope, k)
				assert.Equal(t, c.Total, c.Linked+c.Reported+c.Suppressed)
			}
		}
	}
}

// staleStore answers Get from an older view in which the IDs in asLive were
// still published.
type staleStore struct {
	*memstore.Store
	asLive map[int64]bool
}

func (s staleStore) Get(ctx context.Context, id int64) (*store.Object, error) {
	o, err := s.Store.Get(ctx, id)
	if o == nil || !s.asLive[id] {
		return o, err
	}
	cp := *o
	cp.Status = domain.StatusPublish
	return &cp, nil
}

func TestConservationFlagsLinkedButTrashedUnit(t *testing.T) {
	ctx := context.Background()
	src := memstore.New()
	src.Put(store.Object{ID: 1, Type: store.TypeCourse}, map[string]any{store.MetaCurriculum: "10"})
	src.Put(store.Object{ID: 10, Type: store.TypeUnit, Status: domain.StatusTrash}, nil)
	src.Put(store.Object{ID: 50, Type: store.TypeUnit}, nil)

	g, err := curriculum.BuildGraph(ctx, staleStore{Store: src, asLive: map[int64]bool{10: true}}, nil)
	require.NoError(t, err)
	res := Classify(ctx, g, domain.AllScope(), domain.ModeDiscoverAll, nil)

	assert.Equal(t, domain.KindCount{Total: 1, Linked: 1, Reported: 1, Checked: true}, res.Counts[domain.KindUnit])
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "invariant", res.Issues[0].Class)
	assert.Equal(t, domain.KindUnit, res.Issues[0].Kind)
	assert.True(t, res.Counts[domain.KindQuiz].OK)
}
