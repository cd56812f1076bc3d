package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-activerecord/storage"
)

type testPerson struct {
	BaseEntity
	Name   string
	Age    int
	Bio    string `ar:",deferred"`
	Boss   *testPerson
	Active bool
	Score  float64
	Ratio  float32
	Nick   *string
	Avatar []byte
	Tags   []string `ar:"tags,codec=msgpack"`
}

func (testPerson) TableName() string { return "person" }

type testCompany struct {
	BaseEntity
	Title string
	Owner *testPerson
}

func (testCompany) TableName() string { return "company" }

// openTestDB opens an in-memory database with the person and company
// tables created.
func openTestDB(t *testing.T) *Database {
	t.Helper()
	ctx := t.Context()
	db, err := Open(ctx, storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	g := NewGenerator(db, 1)
	require.NoError(t, g.BeginUpdate(ctx, false))
	require.NoError(t, AddClass[testPerson](ctx, g))
	require.NoError(t, AddClass[testCompany](ctx, g))
	require.NoError(t, g.EndUpdate(ctx))
	return db
}

func savePeople(t *testing.T, db *Database, people ...*testPerson) {
	t.Helper()
	for _, p := range people {
		require.NoError(t, SaveTo(t.Context(), p, db))
	}
}

func strPtr(s string) *string { return &s }
