package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/store"
)

func TestPutAndQuery(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put(store.Object{ID: 9, Type: store.TypeCourse, Title: "B"}, nil)
	s.Put(store.Object{ID: 3, Type: store.TypeCourse, Title: "A", Status: domain.StatusDraft}, nil)
	s.Put(store.Object{ID: 4, Type: store.TypeUnit, Title: "U"}, nil)

	all, err := s.Query(ctx, store.TypeCourse, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(3), all[0].ID)

	pub, err := s.Query(ctx, store.TypeCourse, []domain.Status{domain.StatusPublish})
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, int64(9), pub[0].ID)

	id, err := s.Create(ctx, store.TargetCourse, store.Fields{Title: "new"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)
	assert.Equal(t, 1, s.Creates[store.TargetCourse])
}

func TestFailCreate(t *testing.T) {
	s := New()
	s.FailCreate = func(objType string, f store.Fields) error {
		if f.Title == "bad" {
			return errors.New("rejected")
		}
		return nil
	}
	_, err := s.Create(context.Background(), store.TargetCourse, store.Fields{Title: "bad"})
	assert.Error(t, err)
	_, err = s.Create(context.Background(), store.TargetCourse, store.Fields{Title: "good"})
	assert.NoError(t, err)
}

func TestReverseScanMatchesRenderedMeta(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put(store.Object{ID: 50, Type: store.TypeProduct}, map[string]any{store.MetaProductCourses: []any{"7", "170"}})
	s.Put(store.Object{ID: 51, Type: store.TypeProduct, Status: domain.StatusDraft}, map[string]any{store.MetaProductCourses: "a:1:{i:0;s:1:\"7\";}"})
	s.Put(store.Object{ID: 52, Type: store.TypeCourse}, map[string]any{store.MetaProductCourses: "7"})

	hits, err := s.ReverseScan(ctx, `"7"`)
	require.NoError(t, err)
	assert.Equal(t, []store.ScanHit{{ID: 50, Status: "publish"}, {ID: 51, Status: "draft"}}, hits)
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	kv := NewKV()
	var got []int
	ok, err := kv.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []int{1, 2}))
	ok, err = kv.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)
}
