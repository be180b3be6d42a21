package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/store/memstore"
)

func TestIDMapPersists(t *testing.T) {
	ctx := context.Background()
	kv := memstore.NewKV()

	m, err := LoadIDMap(ctx, kv)
	require.NoError(t, err)
	_, ok := m.Lookup(domain.KindCourse, 7)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, domain.KindCourse, 7, 40))
	require.NoError(t, m.Put(ctx, domain.KindUnit, 8, 42))
	require.NoError(t, m.Put(ctx, domain.KindUnit, 9, 41))

	again, err := LoadIDMap(ctx, kv)
	require.NoError(t, err)
	id, ok := again.Lookup(domain.KindCourse, 7)
	assert.True(t, ok)
	assert.Equal(t, int64(40), id)
	assert.Equal(t, []int64{41, 42}, again.NewIDs(domain.KindUnit))

	require.NoError(t, again.Drop(ctx, domain.KindUnit, 8))
	assert.Equal(t, 1, again.Len(domain.KindUnit))

	require.NoError(t, again.Clear(ctx))
	cleared, err := LoadIDMap(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 0, cleared.Len(domain.KindCourse))
}

type failingKV struct {
	*memstore.KV
	fail bool
}

func (f *failingKV) Set(ctx context.Context, key string, value any) error {
	if f.fail {
		return errors.New("read-only database")
	}
	return f.KV.Set(ctx, key, value)
}

func TestIDMapUnchangedWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: memstore.NewKV()}
	m, err := LoadIDMap(ctx, kv)
	require.NoError(t, err)
	require.NoError(t, m.Put(ctx, domain.KindCourse, 7, 40))

	kv.fail = true
	require.Error(t, m.Put(ctx, domain.KindCourse, 8, 41))
	_, ok := m.Lookup(domain.KindCourse, 8)
	assert.False(t, ok)

	require.Error(t, m.Drop(ctx, domain.KindCourse, 7))
	id, ok := m.Lookup(domain.KindCourse, 7)
	assert.True(t, ok)
	assert.Equal(t, int64(40), id)

	require.Error(t, m.Clear(ctx))
	assert.Equal(t, 1, m.Len(domain.KindCourse))
}

func TestRunStatsAdd(t *testing.T) {
	s := NewRunStats("r1", "run")
	s.Add(Result{Kind: domain.KindUnit, OldID: 1, Outcome: OutcomeCreated})
	s.Add(Result{Kind: domain.KindUnit, OldID: 2, Outcome: OutcomeSkipped, Orphan: true})
	s.Add(Result{Kind: domain.KindCourse, OldID: 3, Outcome: OutcomeErrored,
		Err: errors.Mark(errors.New("boom"), errors.ErrWrite)})

	assert.Equal(t, KindStats{Created: 1, Skipped: 1, Orphaned: 1}, *s.Kinds[domain.KindUnit])
	assert.Equal(t, 1, s.Errored())
	require.Len(t, s.Issues, 1)
	assert.Equal(t, "write", s.Issues[0].Class)
	assert.Equal(t, []domain.Kind{domain.KindCourse, domain.KindUnit}, s.SortedKinds())
}

func TestRunStatsSaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := memstore.NewKV()

	got, err := LoadRunStats(ctx, kv)
	require.NoError(t, err)
	assert.Nil(t, got)

	s := NewRunStats("r1", "run")
	s.DryRun = true
	s.Kind(domain.KindQuiz).WouldCreate = 3
	require.NoError(t, SaveRunStats(ctx, kv, s))

	got, err = LoadRunStats(ctx, kv)
	require.NoError(t, err)
	assert.True(t, got.DryRun)
	assert.Equal(t, 3, got.Kinds[domain.KindQuiz].WouldCreate)
}

func TestEnrollmentsStash(t *testing.T) {
	ctx := context.Background()
	e := NewEnrollments(memstore.NewKV())

	require.NoError(t, e.Stash(ctx, 7, json.RawMessage(`[{"user":1}]`)))
	require.NoError(t, e.Stash(ctx, 8, json.RawMessage(`"a:0:{}"`)))

	pool, err := e.All(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"user":1}]`, string(pool["7"]))
	assert.Len(t, pool, 2)
}
