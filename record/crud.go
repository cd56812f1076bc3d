package record

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/CaliLuke/go-activerecord/ast"
)

// Save writes e to its bound database. A transient entity, or one whose row
// was deleted, is inserted; otherwise its row is updated. While e is
// partially materialized its deferred columns are left untouched.
func Save(ctx context.Context, e Entity) error {
	db := e.base().db
	if db == nil {
		return &InvalidStateError{Op: "Save", Message: "entity is not bound to a database"}
	}
	return db.save(ctx, e)
}

// SaveComplete is like Save but writes every column, deferred ones included,
// even when e was only partially loaded.
func SaveComplete(ctx context.Context, e Entity) error {
	e.base().partial = false
	return Save(ctx, e)
}

// SaveTo binds e to db and saves it. Moving an entity to a different
// database always inserts it there and drops it from the previous
// database's identity cache.
func SaveTo(ctx context.Context, e Entity, db *Database) error {
	if db == nil {
		return &InvalidArgumentError{Op: "SaveTo", Message: "database is nil"}
	}
	b := e.base()
	if b.db != db {
		if b.db != nil {
			b.db.cache.release(e)
		}
		b.db = db
		b.persisted = false
	}
	return db.save(ctx, e)
}

// saveState is the part of an entity's bookkeeping a save can change.
type saveState struct {
	id        int64
	persisted bool
	db        *Database
}

func stateOf(e Entity) saveState {
	b := e.base()
	return saveState{id: b.id, persisted: b.persisted, db: b.db}
}

// restore puts e back in state s after a rolled-back save.
func restore(e Entity, s saveState) {
	b := e.base()
	if b.db != nil {
		b.db.cache.release(e)
	}
	b.id, b.persisted, b.db = s.id, s.persisted, s.db
	if s.db != nil && s.persisted {
		s.db.cache.put(e)
	}
}

// SaveAll saves entities in one transaction. Unbound entities are bound to
// db. When the transaction fails every entity is returned to the state it
// had before the call, so a later save inserts it again.
func SaveAll(ctx context.Context, db *Database, entities ...Entity) error {
	if db == nil {
		return &InvalidArgumentError{Op: "SaveAll", Message: "database is nil"}
	}
	before := make([]saveState, len(entities))
	for i, e := range entities {
		before[i] = stateOf(e)
	}
	err := db.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, e := range entities {
			if err := SaveTo(ctx, e, db); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for i, e := range entities {
			restore(e, before[i])
		}
	}
	return err
}

// Delete removes e's row. The entity becomes transient again: its id is
// reset to 0 and the next save inserts it. It reports whether a row was
// removed.
func Delete(ctx context.Context, e Entity) (bool, error) {
	b := e.base()
	if b.db == nil {
		return false, &InvalidStateError{Op: "Delete", Message: "entity is not bound to a database"}
	}
	info, err := RegisterType(reflect.TypeOf(e))
	if err != nil {
		return false, err
	}
	if b.id == 0 {
		return false, nil
	}

	n, err := b.db.engine.Delete(ctx, info.Table, IDColumn+" = ?", ast.FormatArg(b.id))
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", info.Table, b.id, err)
	}
	b.db.cache.evict(cacheKey{t: info.GoType, id: b.id})
	b.db.logger.DebugContext(ctx, "deleted", "table", info.Table, "id", b.id, "removed", n > 0)
	b.id = 0
	b.persisted = false
	return n > 0, nil
}

func (db *Database) save(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := RegisterType(reflect.TypeOf(e))
	if err != nil {
		return err
	}
	b := e.base()

	if b.persisted {
		values, err := serialize(info, e, info.ColumnsWithoutID(!b.partial))
		if err != nil {
			return err
		}
		if len(values) > 0 {
			n, err := db.engine.Update(ctx, info.Table, values, IDColumn+" = ?", ast.FormatArg(b.id))
			if err != nil {
				return fmt.Errorf("update %s %d: %w", info.Table, b.id, err)
			}
			db.logger.DebugContext(ctx, "updated", "table", info.Table, "id", b.id, "rows", n, "partial", b.partial)
		}
	} else {
		cols := info.ColumnsWithoutID(true)
		if b.id > 0 {
			cols = info.Columns(true)
		}
		values, err := serialize(info, e, cols)
		if err != nil {
			return err
		}
		id, err := db.engine.Insert(ctx, info.Table, values)
		if err != nil {
			return fmt.Errorf("insert %s: %w", info.Table, err)
		}
		b.id = id
		b.persisted = true
		db.logger.DebugContext(ctx, "inserted", "table", info.Table, "id", id)
	}

	db.cache.put(e)
	return nil
}

// serialize renders the write form of each column.
func serialize(info *ModelInfo, e Entity, cols []Column) ([]ast.Assignment, error) {
	v := reflect.ValueOf(e).Elem()
	values := make([]ast.Assignment, 0, len(cols))
	for _, col := range cols {
		if col.PrimaryKey {
			values = append(values, ast.Set(col.Name, ast.FormatArg(e.ID())))
			continue
		}
		val, err := columnValue(v.FieldByIndex(col.FieldIndex), col)
		if err != nil {
			return nil, &SchemaError{TypeName: info.GoType.Name(), Field: col.FieldName, Message: err.Error()}
		}
		values = append(values, ast.Set(col.Name, val))
	}
	return values, nil
}

func columnValue(field reflect.Value, col Column) (any, error) {
	if col.Codec == CodecMsgpack {
		if col.Nullable && field.IsNil() {
			return nil, nil
		}
		data, err := msgpack.Marshal(field.Interface())
		if err != nil {
			return nil, fmt.Errorf("msgpack encode: %w", err)
		}
		return data, nil
	}
	switch col.Kind {
	case KindBlob:
		if field.IsNil() {
			return nil, nil
		}
		return field.Bytes(), nil
	case KindReference:
		if field.IsNil() {
			return nil, nil
		}
		return ast.FormatArg(field.Interface()), nil
	}
	if col.Nullable && field.IsNil() {
		return nil, nil
	}
	return ast.FormatArg(field.Interface()), nil
}
