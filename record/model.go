package record

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/CaliLuke/go-activerecord/ast"
)

// Kind is the semantic type of a column.
type Kind int

const (
	KindInteger Kind = iota
	KindText
	KindDouble
	KindFloat
	KindBoolean
	KindBlob
	KindReference
)

var kindNames = [...]string{"integer", "text", "double", "float", "boolean", "blob", "reference"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// SQLType returns the declared column type used in CREATE TABLE.
func (k Kind) SQLType() string {
	switch k {
	case KindText:
		return "text"
	case KindDouble, KindFloat:
		return "real"
	case KindBlob:
		return "blob"
	default:
		return "integer"
	}
}

// Column describes one persisted field.
type Column struct {
	// Name is the column name.
	Name string
	// FieldName is the Go field name. Empty for the id column.
	FieldName string
	// FieldIndex is the index path passed to reflect.Value.FieldByIndex.
	FieldIndex []int
	// Kind is the semantic type.
	Kind Kind
	// Deferred columns are skipped by ordinary loads and partial saves.
	Deferred bool
	// Nullable is set for pointer fields; nil is stored as NULL.
	Nullable bool
	// RefType is the referenced struct type for KindReference columns.
	RefType reflect.Type
	// Codec is the blob encoding for fields without a native column type.
	Codec string
	// PrimaryKey marks the id column.
	PrimaryKey bool
}

// Def returns the column's DDL definition.
func (c Column) Def() ast.ColumnDef {
	return ast.ColumnDef{Name: c.Name, Type: c.Kind.SQLType(), PrimaryKey: c.PrimaryKey}
}

// ModelInfo is the schema descriptor of an entity type, built once per type.
type ModelInfo struct {
	// GoType is the struct type.
	GoType reflect.Type
	// Table is the table name.
	Table string
	// columns holds the id column first, then fields in declaration order.
	columns []Column
}

// Columns returns the columns in canonical order, the id column first.
// Deferred columns are dropped unless includeDeferred is set.
func (m *ModelInfo) Columns(includeDeferred bool) []Column {
	out := make([]Column, 0, len(m.columns))
	for _, c := range m.columns {
		if c.Deferred && !includeDeferred {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ColumnsWithoutID is Columns minus the id column.
func (m *ModelInfo) ColumnsWithoutID(includeDeferred bool) []Column {
	return m.Columns(includeDeferred)[1:]
}

// ColumnNames returns the names of Columns(includeDeferred).
func (m *ModelInfo) ColumnNames(includeDeferred bool) []string {
	cols := m.Columns(includeDeferred)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (m *ModelInfo) Column(name string) (Column, bool) {
	for _, c := range m.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasDeferred reports whether any column is deferred.
func (m *ModelInfo) HasDeferred() bool {
	for _, c := range m.columns {
		if c.Deferred {
			return true
		}
	}
	return false
}

// TableDef returns the CREATE TABLE node for the model.
func (m *ModelInfo) TableDef() ast.CreateTable {
	defs := make([]ast.ColumnDef, len(m.columns))
	for i, c := range m.columns {
		defs[i] = c.Def()
	}
	return ast.CreateTable{Name: m.Table, Columns: defs}
}

// Tabler lets an entity type choose its own table name.
type Tabler interface {
	TableName() string
}

var (
	entityType     = reflect.TypeFor[Entity]()
	baseEntityType = reflect.TypeFor[BaseEntity]()
	tablerType     = reflect.TypeFor[Tabler]()
	bytesType      = reflect.TypeFor[[]byte]()
)

// isEntityStruct reports whether *t implements Entity through an embedded
// BaseEntity.
func isEntityStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != baseEntityType && reflect.PointerTo(t).Implements(entityType)
}

// ExtractModelInfo builds the schema descriptor for a struct type embedding
// BaseEntity.
func ExtractModelInfo(t reflect.Type) (*ModelInfo, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &SchemaError{TypeName: t.String(), Message: fmt.Sprintf("expected struct, got %s", t.Kind())}
	}
	if !isEntityStruct(t) {
		return nil, &SchemaError{TypeName: t.Name(), Message: "must embed record.BaseEntity"}
	}

	info := &ModelInfo{GoType: t, Table: tableName(t)}
	if !ast.ValidIdentifier(info.Table) {
		return nil, &SchemaError{TypeName: t.Name(), Message: fmt.Sprintf("invalid table name %q", info.Table)}
	}
	if IsReservedWord(info.Table) {
		return nil, &ReservedWordError{Word: info.Table, Context: "table"}
	}

	info.columns = append(info.columns, Column{Name: IDColumn, Kind: KindInteger, PrimaryKey: true})
	if err := collectColumns(info, t, nil); err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(info.columns))
	for _, c := range info.columns {
		key := strings.ToLower(c.Name)
		if prev, dup := seen[key]; dup {
			return nil, &SchemaError{TypeName: t.Name(), Field: c.FieldName,
				Message: fmt.Sprintf("column %q duplicates %s", c.Name, describeField(prev))}
		}
		seen[key] = c.FieldName
	}
	return info, nil
}

func describeField(name string) string {
	if name == "" {
		return "the id column"
	}
	return "field " + name
}

func tableName(t reflect.Type) string {
	if t.Implements(tablerType) {
		return reflect.Zero(t).Interface().(Tabler).TableName()
	}
	if pt := reflect.PointerTo(t); pt.Implements(tablerType) {
		return reflect.New(t).Interface().(Tabler).TableName()
	}
	return t.Name()
}

// collectColumns appends t's persisted fields to info in declaration order.
// Embedded structs other than BaseEntity contribute their fields in place.
func collectColumns(info *ModelInfo, t reflect.Type, prefix []int) error {
	for i := range t.NumField() {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous {
			if field.Type == baseEntityType {
				continue
			}
			if field.Type.Kind() == reflect.Struct {
				if err := collectColumns(info, field.Type, index); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}

		tag, err := ParseTag(field.Tag.Get(TagName))
		if err != nil {
			return &SchemaError{TypeName: info.GoType.Name(), Field: field.Name, Message: err.Error()}
		}
		if tag.Skip {
			continue
		}

		col := Column{
			Name:       tag.Name,
			FieldName:  field.Name,
			FieldIndex: index,
			Deferred:   tag.Deferred,
			Codec:      tag.Codec,
		}
		if col.Name == "" {
			col.Name = toSnakeCase(field.Name)
		}
		if !ast.ValidIdentifier(col.Name) {
			return &SchemaError{TypeName: info.GoType.Name(), Field: field.Name,
				Message: fmt.Sprintf("invalid column name %q", col.Name)}
		}
		if IsReservedWord(col.Name) {
			return &ReservedWordError{Word: col.Name, Context: "column"}
		}
		if err := classify(&col, field.Type); err != nil {
			return &SchemaError{TypeName: info.GoType.Name(), Field: field.Name, Message: err.Error()}
		}
		info.columns = append(info.columns, col)
	}
	return nil
}

// classify sets the column kind from the field type.
func classify(col *Column, ft reflect.Type) error {
	if col.Codec != "" {
		col.Kind = KindBlob
		col.Nullable = ft.Kind() == reflect.Pointer || ft.Kind() == reflect.Map ||
			ft.Kind() == reflect.Slice || ft.Kind() == reflect.Interface
		return nil
	}
	if ft == bytesType {
		col.Kind = KindBlob
		col.Nullable = true
		return nil
	}
	if ft.Kind() == reflect.Pointer {
		if isEntityStruct(ft.Elem()) {
			col.Kind = KindReference
			col.RefType = ft.Elem()
			col.Nullable = true
			return nil
		}
		col.Nullable = true
		ft = ft.Elem()
	}

	switch ft.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		col.Kind = KindInteger
	case reflect.String:
		col.Kind = KindText
	case reflect.Float64:
		col.Kind = KindDouble
	case reflect.Float32:
		col.Kind = KindFloat
	case reflect.Bool:
		col.Kind = KindBoolean
	default:
		return fmt.Errorf("unsupported type %s (use codec=msgpack to store it as a blob)", ft)
	}
	return nil
}

// toSnakeCase converts a Go identifier to snake_case, keeping acronym runs
// together: "CreatedAt" → "created_at", "HTTPCode" → "http_code".
func toSnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
