package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/store"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "lms.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateGetQuery(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	id, err := db.Create(ctx, store.TargetCourse, store.Fields{
		Title:  "Go Basics",
		Status: domain.StatusPublish,
		Meta: map[string]any{
			store.MetaMigratedFrom:   "course:7",
			store.MetaTargetPosition: 3,
			"ids":                    []int64{4, 5},
		},
	})
	require.NoError(t, err)

	o, err := db.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "Go Basics", o.Title)
	assert.Equal(t, store.TargetCourse, o.Type)

	v, err := db.GetMeta(ctx, id, store.MetaMigratedFrom)
	require.NoError(t, err)
	assert.Equal(t, "course:7", v)

	v, err = db.GetMeta(ctx, id, store.MetaTargetPosition)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = db.GetMeta(ctx, id, "ids")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(4), int64(5)}, v)

	v, err = db.GetMeta(ctx, id, "absent")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = db.Create(ctx, store.TargetCourse, store.Fields{Title: "Draft"})
	require.NoError(t, err)

	all, err := db.Query(ctx, store.TargetCourse, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	published, err := db.Query(ctx, store.TargetCourse, []domain.Status{domain.StatusPublish})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, id, published[0].ID)

	missing, err := db.Get(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMetaUpsertAndTrash(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	id, err := db.Create(ctx, store.TargetLesson, store.Fields{Title: "Intro"})
	require.NoError(t, err)

	require.NoError(t, db.SetMeta(ctx, id, store.MetaTargetCourseID, 10))
	require.NoError(t, db.SetMeta(ctx, id, store.MetaTargetCourseID, 11))
	v, err := db.GetMeta(ctx, id, store.MetaTargetCourseID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	require.NoError(t, db.Trash(ctx, id))
	o, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTrash, o.Status)

	require.NoError(t, db.Delete(ctx, id))
	o, err = db.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, o)
	all, err := db.GetAllMeta(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Error(t, db.Trash(ctx, id))
}

func TestTerms(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	parent, err := db.EnsureTerm(ctx, store.TaxonomyCategory, "dev", "Development", 0)
	require.NoError(t, err)
	child, err := db.EnsureTerm(ctx, store.TaxonomyCategory, "go", "Go", parent)
	require.NoError(t, err)
	again, err := db.EnsureTerm(ctx, store.TaxonomyCategory, "go", "Go", parent)
	require.NoError(t, err)
	assert.Equal(t, child, again)

	id, err := db.Create(ctx, store.TargetCourse, store.Fields{Title: "C"})
	require.NoError(t, err)
	require.NoError(t, db.SetTerms(ctx, id, store.TaxonomyCategory, []int64{parent, child}))

	terms, err := db.Terms(ctx, id, store.TaxonomyCategory)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, 0, terms[0].Depth)
	assert.Equal(t, 1, terms[1].Depth)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	pid, err := db.Create(ctx, store.TypeProduct, store.Fields{
		Title:  "Go Basics",
		Status: domain.StatusPublish,
		Meta: map[string]any{
			store.MetaProductCourses: `a:1:{i:0;s:2:"17";}`,
			store.MetaPrice:          "49.00",
			store.MetaSKU:            "GO-1",
		},
	})
	require.NoError(t, err)

	hits, err := db.ReverseScan(ctx, `"17"`)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, store.ScanHit{ID: pid, Status: "publish"}, hits[0])

	hits, err = db.ReverseScan(ctx, `"18"`)
	require.NoError(t, err)
	assert.Empty(t, hits)

	p, err := db.GetByID(ctx, pid)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "publish", p.Status)

	pf, err := db.GetPriceFields(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, "49.00", pf.Price)
	assert.Equal(t, "GO-1", pf.SKU)
	assert.Empty(t, pf.SalePrice)
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	kv := openTemp(t).KV()

	var m map[string]int64
	ok, err := kv.Get(ctx, "idmap", &m)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "idmap", map[string]int64{"7": 101}))
	require.NoError(t, kv.Set(ctx, "idmap", map[string]int64{"7": 102}))

	ok, err = kv.Get(ctx, "idmap", &m)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(102), m["7"])
}
