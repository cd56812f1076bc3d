// Package record maps Go structs onto SQLite tables in the active record style.
//
// A persistable type is a struct embedding BaseEntity. Its exported fields
// become columns, inferred once per type into a ModelInfo. A Database binds
// a storage.Engine to an identity cache that guarantees at most one live
// instance per (type, id) while holding instances only weakly.
//
// Example usage:
//
//	type Person struct {
//	    record.BaseEntity
//	    Name  string
//	    Bio   string  `ar:",deferred"`
//	    Boss  *Person
//	}
//
//	db, _ := record.Open(ctx, "app.db")
//	p := &Person{Name: "Ada"}
//	_ = record.SaveTo(ctx, p, db)
//	same, _ := record.FindByID[Person](ctx, db, p.ID())
package record

// IDColumn is the primary key column present on every table.
const IDColumn = "_id"

// Entity is implemented by pointers to structs that embed BaseEntity.
type Entity interface {
	// ID returns the row id, or 0 for an entity that was never stored.
	ID() int64
	// NeedsInsert reports whether the next save inserts a new row.
	NeedsInsert() bool
	// IsFullyMaterialized reports whether every column was loaded.
	IsFullyMaterialized() bool
	// Database returns the database the entity is bound to, or nil.
	Database() *Database
	base() *BaseEntity
}

// EntityPtr constrains a type parameter to *T where *T is an Entity.
type EntityPtr[T any] interface {
	*T
	Entity
}

// BaseEntity carries the bookkeeping state of a persistable struct. Embed it
// by value; the zero value is a transient entity.
type BaseEntity struct {
	id        int64
	persisted bool
	partial   bool
	db        *Database
	// self points back at the embedding struct once the entity has been
	// cached, so a weak pointer to the BaseEntity can recover it.
	self Entity
}

// ID returns the row id, or 0 for a transient entity.
func (e *BaseEntity) ID() int64 { return e.id }

// NeedsInsert reports whether the next save must insert a row.
func (e *BaseEntity) NeedsInsert() bool { return !e.persisted }

// IsFullyMaterialized is false after a load that skipped some columns.
func (e *BaseEntity) IsFullyMaterialized() bool { return !e.partial }

// Database returns the bound database or nil.
func (e *BaseEntity) Database() *Database { return e.db }

func (e *BaseEntity) base() *BaseEntity { return e }
