package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/CaliLuke/go-activerecord/ast"
	"github.com/CaliLuke/go-activerecord/storage"
)

// pendingRef is a reference column whose target is resolved after every
// scalar column has been assigned.
type pendingRef struct {
	col Column
	id  int64
}

// materializer carries the entities under construction in one load, so
// reference cycles resolve to the instance being built instead of looping.
type materializer struct {
	db       *Database
	visiting map[cacheKey]Entity
}

func (db *Database) newMaterializer() *materializer {
	return &materializer{db: db, visiting: make(map[cacheKey]Entity)}
}

func newEntity(info *ModelInfo) Entity {
	return reflect.New(info.GoType).Interface().(Entity)
}

// materialize populates e from row and binds it to the database. A fresh
// entity is claimed in the identity cache before its references are
// resolved, and a live instance already cached for the same row is returned
// in its place. An existing entity is refreshed in place and re-registered.
func (m *materializer) materialize(ctx context.Context, info *ModelInfo, e Entity, row storage.Row, fresh bool) (Entity, error) {
	raw, ok := row[IDColumn]
	if !ok {
		return nil, &MaterializationError{Table: info.Table, Column: IDColumn, Cause: errors.New("column missing from row")}
	}
	id, err := toInt64(raw)
	if err != nil {
		return nil, &MaterializationError{Table: info.Table, Column: IDColumn, Cause: err}
	}

	refs, partial, err := assignScalars(info, e, row)
	if err != nil {
		return nil, err
	}

	b := e.base()
	b.id = id
	b.persisted = true
	b.partial = partial
	b.db = m.db

	// Register before resolving references so a cycle back to this row
	// finds the instance every other entity will point at.
	if fresh {
		if live := m.db.cache.claim(e); live != e {
			m.visiting[cacheKey{t: info.GoType, id: id}] = live
			return live, nil
		}
	} else {
		m.db.cache.put(e)
	}
	m.visiting[cacheKey{t: info.GoType, id: id}] = e

	v := reflect.ValueOf(e).Elem()
	for _, r := range refs {
		field := v.FieldByIndex(r.col.FieldIndex)
		if r.id == 0 {
			field.SetZero()
			continue
		}
		target, err := m.resolve(ctx, r.col.RefType, r.id)
		var nf *NotFoundError
		switch {
		case errors.As(err, &nf):
			m.db.logger.DebugContext(ctx, "dangling reference", "table", info.Table, "column", r.col.Name, "ref", r.id)
			field.SetZero()
		case err != nil:
			if fresh {
				m.db.cache.release(e)
			}
			return nil, &MaterializationError{Table: info.Table, Column: r.col.Name, Cause: err}
		default:
			field.Set(reflect.ValueOf(target))
		}
	}

	m.db.logger.DebugContext(ctx, "materialized", "table", info.Table, "id", id, "partial", partial)
	return e, nil
}

// resolve returns the entity of type t with the given id, preferring one
// already under construction in this load.
func (m *materializer) resolve(ctx context.Context, t reflect.Type, id int64) (Entity, error) {
	if e, ok := m.visiting[cacheKey{t: t, id: id}]; ok {
		return e, nil
	}
	info, err := RegisterType(t)
	if err != nil {
		return nil, err
	}
	return m.findByID(ctx, info, id, false)
}

// findByID is the cache-first single-row lookup.
func (m *materializer) findByID(ctx context.Context, info *ModelInfo, id int64, full bool) (Entity, error) {
	key := cacheKey{t: info.GoType, id: id}
	if e, ok := m.visiting[key]; ok {
		return e, nil
	}
	if e := m.db.cache.get(key); e != nil {
		if full && !e.IsFullyMaterialized() {
			if err := m.refresh(ctx, info, e); err != nil {
				return nil, err
			}
		}
		return e, nil
	}

	row, err := m.db.fetchRow(ctx, info, id, full)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &NotFoundError{Table: info.Table, ID: id}
	}
	return m.materialize(ctx, info, newEntity(info), row, true)
}

// refresh reloads every column of e, discarding unsaved changes.
func (m *materializer) refresh(ctx context.Context, info *ModelInfo, e Entity) error {
	rows, err := m.db.engine.Query(ctx, ast.Select{
		Table:   info.Table,
		Columns: info.ColumnNames(true),
		Where:   IDColumn + " = ?",
		Args:    []any{ast.FormatArg(e.ID())},
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &NotFoundError{Table: info.Table, ID: e.ID()}
	}
	_, err = m.materialize(ctx, info, e, rows[0], false)
	return err
}

// fetchRow reads one row by id. Concurrent fetches of the same row share a
// single query.
func (db *Database) fetchRow(ctx context.Context, info *ModelInfo, id int64, full bool) (storage.Row, error) {
	key := fmt.Sprintf("%s/%d/%t", info.Table, id, full)
	v, err, _ := db.fetches.Do(key, func() (any, error) {
		rows, err := db.engine.Query(ctx, ast.Select{
			Table:   info.Table,
			Columns: info.ColumnNames(full),
			Where:   IDColumn + " = ?",
			Args:    []any{ast.FormatArg(id)},
		})
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows[0], nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(storage.Row), nil
}

// FullyMaterialize reloads every column of e, deferred ones included, and
// overwrites its in-memory values. Unsaved changes are lost.
func FullyMaterialize(ctx context.Context, e Entity) error {
	b := e.base()
	if b.db == nil {
		return &InvalidStateError{Op: "FullyMaterialize", Message: "entity is not bound to a database"}
	}
	if b.id == 0 {
		return &InvalidStateError{Op: "FullyMaterialize", Message: "entity has not been stored"}
	}
	info, err := RegisterType(reflect.TypeOf(e))
	if err != nil {
		return err
	}
	return b.db.newMaterializer().refresh(ctx, info, e)
}

// Hydrate populates target, a pointer to an entity struct, from row without
// a database. References are left nil and the entity stays unbound.
func Hydrate(target any, row storage.Row) error {
	e, ok := target.(Entity)
	if !ok {
		return fmt.Errorf("record: hydrate: %T does not embed BaseEntity", target)
	}
	if reflect.ValueOf(target).IsNil() {
		return errors.New("record: hydrate: nil target")
	}
	info, err := RegisterType(reflect.TypeOf(target))
	if err != nil {
		return err
	}
	_, partial, err := assignScalars(info, e, row)
	if err != nil {
		return err
	}
	b := e.base()
	b.partial = partial
	if raw, ok := row[IDColumn]; ok && raw != nil {
		id, err := toInt64(raw)
		if err != nil {
			return &MaterializationError{Table: info.Table, Column: IDColumn, Cause: err}
		}
		b.id = id
		b.persisted = id > 0
	}
	return nil
}

// HydrateNew allocates a T and hydrates it from row.
func HydrateNew[T any, PT EntityPtr[T]](row storage.Row) (PT, error) {
	var result PT = new(T)
	if err := Hydrate(result, row); err != nil {
		return nil, err
	}
	return result, nil
}

// assignScalars sets every non-reference column present in row and returns
// the reference ids still to resolve. Columns absent from the row are
// skipped and reported as partial.
func assignScalars(info *ModelInfo, e Entity, row storage.Row) ([]pendingRef, bool, error) {
	v := reflect.ValueOf(e).Elem()
	var refs []pendingRef
	partial := false
	for _, col := range info.ColumnsWithoutID(true) {
		raw, ok := row[col.Name]
		if !ok {
			partial = true
			continue
		}
		if col.Kind == KindReference {
			id, err := refID(raw)
			if err != nil {
				return nil, false, &MaterializationError{Table: info.Table, Column: col.Name, Cause: err}
			}
			refs = append(refs, pendingRef{col: col, id: id})
			continue
		}
		if err := assign(v.FieldByIndex(col.FieldIndex), col, raw); err != nil {
			return nil, false, &MaterializationError{Table: info.Table, Column: col.Name, Cause: err}
		}
	}
	return refs, partial, nil
}

// assign converts a stored value to the field's type.
func assign(field reflect.Value, col Column, raw any) error {
	if raw == nil {
		field.SetZero()
		return nil
	}

	if col.Codec == CodecMsgpack {
		data, err := toBytes(raw)
		if err != nil {
			return err
		}
		ptr := reflect.New(field.Type())
		if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
			return fmt.Errorf("msgpack decode: %w", err)
		}
		field.Set(ptr.Elem())
		return nil
	}
	if col.Kind == KindBlob {
		data, err := toBytes(raw)
		if err != nil {
			return err
		}
		field.SetBytes(bytes.Clone(data))
		return nil
	}

	target := field
	var ptr reflect.Value
	if col.Nullable {
		ptr = reflect.New(field.Type().Elem())
		target = ptr.Elem()
	}

	switch col.Kind {
	case KindInteger:
		if target.CanUint() {
			n, err := toUint64(raw)
			if err != nil {
				return err
			}
			if target.OverflowUint(n) {
				return fmt.Errorf("value %d overflows %s", n, target.Type())
			}
			target.SetUint(n)
			break
		}
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		if target.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, target.Type())
		}
		target.SetInt(n)
	case KindText:
		s, err := toString(raw)
		if err != nil {
			return err
		}
		target.SetString(s)
	case KindDouble, KindFloat:
		f, err := toFloat64(raw)
		if err != nil {
			return err
		}
		target.SetFloat(f)
	case KindBoolean:
		target.SetBool(toBool(raw))
	default:
		return fmt.Errorf("cannot assign %s column", col.Kind)
	}

	if col.Nullable {
		field.Set(ptr)
	}
	return nil
}

func refID(raw any) (int64, error) {
	if raw == nil {
		return 0, nil
	}
	return toInt64(raw)
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("cannot convert %v to integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", raw)
	}
}

func toUint64(raw any) (uint64, error) {
	switch v := raw.(type) {
	case string:
		return strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseUint(strings.TrimSpace(string(v)), 10, 64)
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, fmt.Errorf("cannot convert %v to unsigned integer", v)
		}
		return uint64(v), nil
	}
	n, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("cannot convert %d to unsigned integer", n)
	}
	return uint64(n), nil
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", raw)
	}
}

func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot convert %T to text", raw)
	}
}

func toBytes(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to blob", raw)
	}
}

// toBool follows the stored convention: only 1 is true.
func toBool(raw any) bool {
	switch v := raw.(type) {
	case int64:
		return v == 1
	case float64:
		return v == 1
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) == "1"
	case []byte:
		return strings.TrimSpace(string(v)) == "1"
	default:
		return false
	}
}
