package record

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestIdentity_SameInstance(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada"}
	require.NoError(t, SaveTo(ctx, p, db))

	byID, err := FindByID[testPerson](ctx, db, p.ID())
	require.NoError(t, err)
	assert.Same(t, p, byID)

	all, err := FindAll[testPerson](ctx, db)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Same(t, p, all[0])

	first, err := NewQuery[testPerson](db).Where("name = ?", "Ada").First(ctx)
	require.NoError(t, err)
	assert.Same(t, p, first)
}

func TestIdentity_FreshLoadsShareInstance(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	boss := &testPerson{Name: "Grace"}
	a := &testPerson{Name: "a", Boss: boss}
	b := &testPerson{Name: "b", Boss: boss}
	savePeople(t, db, boss, a, b)
	db.ClearCache()

	found, err := NewQuery[testPerson](db).Filter().OrderAsc("_id").All(ctx)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Same(t, found[0], found[1].Boss)
	assert.Same(t, found[0], found[2].Boss)
}

func TestIdentity_Concurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada"}
	require.NoError(t, SaveTo(ctx, p, db))
	id := p.ID()
	db.ClearCache()

	const workers = 16
	results := make([]*testPerson, workers)
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			got, err := FindByID[testPerson](ctx, db, id)
			results[i] = got
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
}

func TestCache_Stats(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada"}
	require.NoError(t, SaveTo(ctx, p, db))
	before := db.CacheStats()

	_, err := FindByID[testPerson](ctx, db, p.ID())
	require.NoError(t, err)
	_, err = FindByID[testPerson](ctx, db, p.ID()+100)
	require.Error(t, err)

	after := db.CacheStats()
	assert.Equal(t, before.Hits+1, after.Hits)
	assert.Equal(t, before.Misses+1, after.Misses)
	assert.Equal(t, 1, after.Entries)
	runtime.KeepAlive(p)
}

func TestCache_Evict(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada"}
	require.NoError(t, SaveTo(ctx, p, db))
	db.Evict(p)

	got, err := FindByID[testPerson](ctx, db, p.ID())
	require.NoError(t, err)
	assert.NotSame(t, p, got)
	assert.Equal(t, p.Name, got.Name)
}

func TestCache_WeakEntriesAreCollected(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	func() {
		for range 10 {
			require.NoError(t, SaveTo(ctx, &testPerson{Name: "temp"}, db))
		}
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return db.CacheStats().Entries == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 10, db.Sweep())
	assert.Zero(t, db.Sweep())
}

func TestCache_Claim(t *testing.T) {
	var c identityCache
	a := &testPerson{BaseEntity: BaseEntity{id: 1}}
	b := &testPerson{BaseEntity: BaseEntity{id: 1}}

	assert.Same(t, a, c.claim(a))
	assert.Same(t, a, c.claim(b), "live instance wins")

	c.put(b)
	assert.Same(t, b, c.get(keyOf(a)), "put replaces")
	runtime.KeepAlive(a)
}
