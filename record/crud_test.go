package record

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-activerecord/storage"
)

func TestSave_InsertThenUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada", Age: 36}
	assert.True(t, p.NeedsInsert())
	assert.Zero(t, p.ID())

	require.NoError(t, SaveTo(ctx, p, db))
	id := p.ID()
	assert.Positive(t, id)
	assert.False(t, p.NeedsInsert())
	assert.Same(t, db, p.Database())

	p.Age = 37
	require.NoError(t, Save(ctx, p))
	assert.Equal(t, id, p.ID(), "update keeps the id")

	n, err := CountAll[testPerson](ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err := db.Engine().RawQuery(ctx, "SELECT age FROM person WHERE _id = ?", id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 37, rows[0]["age"])
}

func TestSave_RoundTripOnFreshCache(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	boss := &testPerson{Name: "Grace"}
	p := &testPerson{
		Name:   "Ada",
		Age:    36,
		Bio:    "analyst",
		Boss:   boss,
		Active: true,
		Score:  2.5,
		Ratio:  0.25,
		Nick:   strPtr("countess"),
		Avatar: []byte{0x01, 0x02, 0x03},
		Tags:   []string{"math", "engines"},
	}
	savePeople(t, db, boss, p)

	db.ClearCache()

	got, err := FindByID[testPerson](ctx, db, p.ID(), FullyMaterialized())
	require.NoError(t, err)
	assert.NotSame(t, p, got)
	assert.Equal(t, p.ID(), got.ID())
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, 36, got.Age)
	assert.Equal(t, "analyst", got.Bio)
	assert.True(t, got.Active)
	assert.Equal(t, 2.5, got.Score)
	assert.Equal(t, float32(0.25), got.Ratio)
	require.NotNil(t, got.Nick)
	assert.Equal(t, "countess", *got.Nick)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.Avatar)
	assert.Equal(t, []string{"math", "engines"}, got.Tags)
	assert.True(t, got.IsFullyMaterialized())

	require.NotNil(t, got.Boss)
	assert.Equal(t, "Grace", got.Boss.Name)
	assert.Equal(t, boss.ID(), got.Boss.ID())
}

func TestSave_StorageConventions(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada", Active: true}
	q := &testPerson{Name: "Bob"}
	savePeople(t, db, p, q)

	rows, err := db.Engine().RawQuery(ctx, "SELECT active, boss, nick, avatar, tags FROM person ORDER BY _id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["active"])
	assert.EqualValues(t, 0, rows[1]["active"])
	for _, col := range []string{"boss", "nick", "avatar", "tags"} {
		assert.Nil(t, rows[0][col], col)
	}
}

func TestSave_SelfReference(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ouroboros"}
	require.NoError(t, SaveTo(ctx, p, db))
	p.Boss = p
	require.NoError(t, Save(ctx, p))

	db.ClearCache()
	got, err := FindByID[testPerson](ctx, db, p.ID())
	require.NoError(t, err)
	assert.Same(t, got, got.Boss)
}

func TestSave_PartialPreservesDeferred(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada", Bio: "long biography"}
	require.NoError(t, SaveTo(ctx, p, db))
	db.ClearCache()

	found, err := FindByColumn[testPerson](ctx, db, "name", "Ada")
	require.NoError(t, err)
	require.Len(t, found, 1)
	partial := found[0]
	assert.False(t, partial.IsFullyMaterialized())
	assert.Empty(t, partial.Bio)

	partial.Name = "Augusta"
	require.NoError(t, Save(ctx, partial))

	require.NoError(t, FullyMaterialize(ctx, partial))
	assert.True(t, partial.IsFullyMaterialized())
	assert.Equal(t, "Augusta", partial.Name)
	assert.Equal(t, "long biography", partial.Bio)
}

func TestSaveComplete_WritesDeferred(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada", Bio: "old"}
	require.NoError(t, SaveTo(ctx, p, db))
	db.ClearCache()

	found, err := FindAll[testPerson](ctx, db)
	require.NoError(t, err)
	require.Len(t, found, 1)
	found[0].Bio = "new"
	require.NoError(t, SaveComplete(ctx, found[0]))

	db.ClearCache()
	got, err := FindByID[testPerson](ctx, db, p.ID(), FullyMaterialized())
	require.NoError(t, err)
	assert.Equal(t, "new", got.Bio)
}

func TestSave_Unbound(t *testing.T) {
	p := &testPerson{Name: "Ada"}
	var stateErr *InvalidStateError

	err := Save(t.Context(), p)
	assert.True(t, errors.As(err, &stateErr))

	_, err = Delete(t.Context(), p)
	assert.True(t, errors.As(err, &stateErr))

	err = FullyMaterialize(t.Context(), p)
	assert.True(t, errors.As(err, &stateErr))

	var argErr *InvalidArgumentError
	assert.True(t, errors.As(SaveTo(t.Context(), p, nil), &argErr))
}

func TestSaveTo_OtherDatabaseInserts(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)
	ctx := t.Context()

	a := &testPerson{Name: "first"}
	b := &testPerson{Name: "second"}
	savePeople(t, first, a, b)

	require.NoError(t, SaveTo(ctx, b, second))
	assert.Same(t, second, b.Database())

	n, err := CountAll[testPerson](ctx, second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := FindByID[testPerson](ctx, second, b.ID())
	require.NoError(t, err)
	assert.Same(t, b, got)

	left, err := FindByID[testPerson](ctx, first, b.ID())
	require.NoError(t, err)
	assert.NotSame(t, b, left, "moved entity leaves the first cache")
	assert.Same(t, first, left.Database())
	assert.Equal(t, "second", left.Name)

	left.Name = "renamed"
	require.NoError(t, Save(ctx, left))
	names, err := FindByColumn[testPerson](ctx, first, "name", "renamed")
	require.NoError(t, err)
	assert.Len(t, names, 1)
	n, err = CountAll[testPerson](ctx, second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDelete_InvalidatesStaleHandle(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada"}
	require.NoError(t, SaveTo(ctx, p, db))
	oldID := p.ID()

	removed, err := Delete(ctx, p)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Zero(t, p.ID())
	assert.True(t, p.NeedsInsert())

	_, err = FindByID[testPerson](ctx, db, oldID)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, oldID, nf.ID)

	require.NoError(t, Save(ctx, p))
	assert.Positive(t, p.ID())
	n, err := CountAll[testPerson](ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	removed, err = Delete(ctx, &testPerson{BaseEntity: BaseEntity{db: db}})
	require.NoError(t, err)
	assert.False(t, removed, "transient entity has no row")
}

func TestSaveAll_Transactional(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	people := []Entity{&testPerson{Name: "a"}, &testPerson{Name: "b"}, &testCompany{Title: "c"}}
	require.NoError(t, SaveAll(ctx, db, people...))
	assert.False(t, db.InTransaction())
	for _, e := range people {
		assert.Positive(t, e.ID())
	}

	n, err := CountAll[testPerson](ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestSaveAll_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	kept := &testPerson{Name: "kept"}
	require.NoError(t, SaveTo(ctx, kept, db))
	keptID := kept.ID()

	a := &testPerson{Name: "a"}
	bad := &unsupportedField{}
	err := SaveAll(ctx, db, kept, a, bad)
	require.Error(t, err)

	n, err := CountAll[testPerson](ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.True(t, a.NeedsInsert(), "rolled-back insert is transient again")
	assert.Zero(t, a.ID())
	assert.Nil(t, a.Database())
	assert.False(t, kept.NeedsInsert())
	assert.Equal(t, keptID, kept.ID())

	got, err := FindByID[testPerson](ctx, db, keptID)
	require.NoError(t, err)
	assert.Same(t, kept, got)

	require.NoError(t, SaveTo(ctx, a, db))
	assert.Positive(t, a.ID())
	n, err = CountAll[testPerson](ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	again, err := FindByID[testPerson](ctx, db, a.ID())
	require.NoError(t, err)
	assert.Same(t, a, again)
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()
	boom := errors.New("boom")

	err := db.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, SaveTo(ctx, &testPerson{Name: "ghost"}, db))
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := CountAll[testPerson](ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDatabase_CloseOwnsEngine(t *testing.T) {
	db, err := Open(t.Context(), storage.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Engine().Tables(t.Context())
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestStorageErrors_Propagate(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	p := &testPerson{Name: "Ada"}
	require.NoError(t, SaveTo(ctx, p, db))
	require.NoError(t, db.Engine().Close())

	p.Name = "Grace"
	assert.ErrorIs(t, Save(ctx, p), storage.ErrClosed)
	assert.ErrorIs(t, SaveTo(ctx, &testPerson{Name: "x"}, db), storage.ErrClosed)

	_, err := FindAll[testPerson](ctx, db)
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = FindAllIDs[testPerson](ctx, db)
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = CountAll[testPerson](ctx, db)
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = DeleteWhere[testPerson](ctx, db, "name = ?", "x")
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = Delete(ctx, p)
	assert.ErrorIs(t, err, storage.ErrClosed)
}
