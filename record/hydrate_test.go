package record

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-activerecord/ast"
	"github.com/CaliLuke/go-activerecord/storage"
)

type narrowInts struct {
	BaseEntity
	Small int8
	Count uint16
	Maybe *int
}

func TestHydrateNew(t *testing.T) {
	p, err := HydrateNew[testPerson](storage.Row{
		"_id":    int64(7),
		"name":   "Ada",
		"age":    "36",
		"active": int64(1),
		"score":  int64(3),
		"ratio":  "0.5",
		"nick":   nil,
		"boss":   int64(3),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 7, p.ID())
	assert.False(t, p.NeedsInsert())
	assert.Nil(t, p.Database())
	assert.False(t, p.IsFullyMaterialized(), "bio, avatar and tags were absent")
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, 36, p.Age)
	assert.True(t, p.Active)
	assert.Equal(t, 3.0, p.Score)
	assert.Equal(t, float32(0.5), p.Ratio)
	assert.Nil(t, p.Nick)
	assert.Nil(t, p.Boss, "references are not resolved without a database")
}

func TestHydrate_Errors(t *testing.T) {
	err := Hydrate(&notEntity{}, storage.Row{})
	require.Error(t, err)

	var nilPerson *testPerson
	require.Error(t, Hydrate(nilPerson, storage.Row{}))

	var matErr *MaterializationError
	err = Hydrate(&testPerson{}, storage.Row{"age": "not a number"})
	require.True(t, errors.As(err, &matErr))
	assert.Equal(t, "age", matErr.Column)
}

func TestAssign_BoolConvention(t *testing.T) {
	for raw, want := range map[any]bool{
		int64(1): true, int64(0): false, int64(2): false, "1": true, "true": false,
	} {
		p, err := HydrateNew[testPerson](storage.Row{"active": raw})
		require.NoError(t, err)
		assert.Equal(t, want, p.Active, "%v", raw)
	}
}

func TestAssign_IntegerOverflow(t *testing.T) {
	_, err := HydrateNew[narrowInts](storage.Row{"small": int64(200)})
	var matErr *MaterializationError
	require.True(t, errors.As(err, &matErr))
	assert.Equal(t, "small", matErr.Column)

	_, err = HydrateNew[narrowInts](storage.Row{"count": int64(-1)})
	require.Error(t, err)

	_, err = HydrateNew[narrowInts](storage.Row{"count": float64(math.MaxUint16 + 1)})
	require.Error(t, err)

	n, err := HydrateNew[narrowInts](storage.Row{"small": int64(-5), "count": "65535", "maybe": int64(9)})
	require.NoError(t, err)
	assert.EqualValues(t, -5, n.Small)
	assert.EqualValues(t, 65535, n.Count)
	require.NotNil(t, n.Maybe)
	assert.Equal(t, 9, *n.Maybe)
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{in: int64(5), want: 5},
		{in: 3.0, want: 3},
		{in: " 12 ", want: 12},
		{in: []byte("-4"), want: -4},
		{in: true, want: 1},
		{in: 2.5, wantErr: true},
		{in: float64(math.MaxInt64), wantErr: true},
		{in: "x", wantErr: true},
		{in: struct{}{}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := toInt64(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestMaterialize_DanglingReferenceIsNil(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	require.NoError(t, db.Engine().Execute(ctx, "INSERT INTO person (_id, name, boss) VALUES (1, 'orphan', 999)"))

	p, err := FindByID[testPerson](ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, "orphan", p.Name)
	assert.Nil(t, p.Boss)
}

func TestMaterialize_ReferenceAcrossTypes(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	owner := &testPerson{Name: "Ada"}
	c := &testCompany{Title: "Engines", Owner: owner}
	require.NoError(t, SaveAll(ctx, db, owner, c))
	db.ClearCache()

	got, err := FindByID[testCompany](ctx, db, c.ID())
	require.NoError(t, err)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "Ada", got.Owner.Name)

	again, err := FindByID[testPerson](ctx, db, owner.ID())
	require.NoError(t, err)
	assert.Same(t, got.Owner, again)
}

func TestMaterialize_BadStoredValue(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	require.NoError(t, db.Engine().Execute(ctx, "INSERT INTO person (_id, name, age) VALUES (1, 'x', 'old')"))

	_, err := FindByID[testPerson](ctx, db, 1)
	var matErr *MaterializationError
	require.True(t, errors.As(err, &matErr))
	assert.Equal(t, "person", matErr.Table)
	assert.Equal(t, "age", matErr.Column)
}

// hookEngine runs onQuery before each SELECT reaches the wrapped engine.
type hookEngine struct {
	storage.Engine
	onQuery func(q ast.Select)
}

func (e *hookEngine) Query(ctx context.Context, q ast.Select) ([]storage.Row, error) {
	if hook := e.onQuery; hook != nil {
		hook(q)
	}
	return e.Engine.Query(ctx, q)
}

func TestMaterialize_CycleSharesLiveInstance(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	a := &testPerson{Name: "a"}
	b := &testPerson{Name: "b", Boss: a}
	savePeople(t, db, a, b)
	a.Boss = b
	require.NoError(t, Save(ctx, a))

	// Another load registers the same row while this one is reading it.
	hooked := &hookEngine{Engine: db.Engine()}
	view := New(hooked)
	rival := &testPerson{BaseEntity: BaseEntity{id: a.ID(), persisted: true, db: view}, Name: "a"}
	hooked.onQuery = func(ast.Select) {
		hooked.onQuery = nil
		view.cache.put(rival)
	}

	got, err := FindByID[testPerson](ctx, view, a.ID())
	require.NoError(t, err)
	assert.Same(t, rival, got, "live instance wins the claim")

	boss, err := FindByID[testPerson](ctx, view, b.ID())
	require.NoError(t, err)
	require.NotNil(t, boss.Boss)
	assert.Same(t, rival, boss.Boss, "cycle points at the cached instance")
}

func TestMaterialize_CachedBeforeReferences(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	a := &testPerson{Name: "a"}
	b := &testPerson{Name: "b", Boss: a}
	savePeople(t, db, a, b)
	a.Boss = b
	require.NoError(t, Save(ctx, a))

	hooked := &hookEngine{Engine: db.Engine()}
	view := New(hooked)
	var cachedDuringRefs Entity
	queries := 0
	hooked.onQuery = func(ast.Select) {
		queries++
		if queries == 2 {
			cachedDuringRefs = view.cache.peek(cacheKey{t: keyOf(a).t, id: a.ID()})
		}
	}

	got, err := FindByID[testPerson](ctx, view, a.ID())
	require.NoError(t, err)
	require.Equal(t, 2, queries)
	assert.Same(t, got, cachedDuringRefs)
	require.NotNil(t, got.Boss)
	assert.Same(t, got, got.Boss.Boss)
}
