package ast

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// validIdentifierRe matches the identifiers the compiler is willing to
// interpolate into SQL text.
var validIdentifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be interpolated as a table or column name.
func ValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// IdentifierError is returned when a node names a table or column that
// cannot be safely interpolated.
type IdentifierError struct {
	Name string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("ast: invalid identifier %q", e.Name)
}

// Compiler compiles statement nodes into SQLite text and bound arguments.
type Compiler struct{}

// Compile compiles a single node. The returned args line up with the
// placeholders in the returned SQL.
func (c *Compiler) Compile(node Node) (string, []any, error) {
	switch n := node.(type) {
	case Select:
		return c.compileSelect(n)
	case Count:
		return c.compileCount(n)
	case Aggregate:
		return c.compileAggregate(n)
	case Insert:
		return c.compileInsert(n)
	case Update:
		return c.compileUpdate(n)
	case Delete:
		return c.compileDelete(n)
	case CreateTable:
		return c.compileCreateTable(n)
	case AddColumn:
		return c.compileAddColumn(n)
	case DropTable:
		if err := checkIdents(n.Name); err != nil {
			return "", nil, err
		}
		return "DROP TABLE " + n.Name, nil, nil
	case Raw:
		return n.SQL, n.Args, nil
	default:
		return "", nil, fmt.Errorf("ast: unknown node type %T", node)
	}
}

// MustCompile is like Compile but panics on error. It is meant for
// statically known statements.
func (c *Compiler) MustCompile(node Node) string {
	s, _, err := c.Compile(node)
	if err != nil {
		panic(err)
	}
	return s
}

func (c *Compiler) compileSelect(s Select) (string, []any, error) {
	if err := checkIdents(s.Table); err != nil {
		return "", nil, err
	}
	if err := checkIdents(s.Columns...); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.Columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(s.Columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(s.Table)
	writeTail(&b, s.Where, s.GroupBy, s.Having, s.OrderBy, s.Limit)
	return b.String(), s.Args, nil
}

func (c *Compiler) compileCount(n Count) (string, []any, error) {
	if err := checkIdents(n.Table); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	if !n.Distinct && n.Limit <= 0 {
		b.WriteString("SELECT COUNT(*) FROM ")
		b.WriteString(n.Table)
		writeTail(&b, n.Where, "", "", "", 0)
		return b.String(), n.Args, nil
	}

	b.WriteString("SELECT COUNT(*) FROM (SELECT ")
	if n.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString("* FROM ")
	b.WriteString(n.Table)
	writeTail(&b, n.Where, "", "", "", n.Limit)
	b.WriteString(")")
	return b.String(), n.Args, nil
}

var aggregateFuncs = map[string]bool{"SUM": true, "TOTAL": true, "AVG": true, "MIN": true, "MAX": true}

func (c *Compiler) compileAggregate(n Aggregate) (string, []any, error) {
	if err := checkIdents(n.Table, n.Column); err != nil {
		return "", nil, err
	}
	fn := strings.ToUpper(n.Func)
	if !aggregateFuncs[fn] {
		return "", nil, fmt.Errorf("ast: unsupported aggregate %q", n.Func)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s(%s) FROM %s", fn, n.Column, n.Table)
	writeTail(&b, n.Where, "", "", "", 0)
	return b.String(), n.Args, nil
}

func (c *Compiler) compileInsert(n Insert) (string, []any, error) {
	if err := checkIdents(n.Table); err != nil {
		return "", nil, err
	}
	if len(n.Values) == 0 {
		return "INSERT INTO " + n.Table + " DEFAULT VALUES", nil, nil
	}
	cols := make([]string, len(n.Values))
	marks := make([]string, len(n.Values))
	args := make([]any, len(n.Values))
	for i, a := range n.Values {
		if err := checkIdents(a.Column); err != nil {
			return "", nil, err
		}
		cols[i] = a.Column
		marks[i] = "?"
		args[i] = a.Value
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		n.Table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return sql, args, nil
}

func (c *Compiler) compileUpdate(n Update) (string, []any, error) {
	if err := checkIdents(n.Table); err != nil {
		return "", nil, err
	}
	if len(n.Set) == 0 {
		return "", nil, fmt.Errorf("ast: update %s: no columns to set", n.Table)
	}
	sets := make([]string, len(n.Set))
	args := make([]any, 0, len(n.Set)+len(n.Args))
	for i, a := range n.Set {
		if err := checkIdents(a.Column); err != nil {
			return "", nil, err
		}
		sets[i] = a.Column + " = ?"
		args = append(args, a.Value)
	}
	args = append(args, n.Args...)

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(n.Table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	writeTail(&b, n.Where, "", "", "", 0)
	return b.String(), args, nil
}

func (c *Compiler) compileDelete(n Delete) (string, []any, error) {
	if err := checkIdents(n.Table); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(n.Table)
	writeTail(&b, n.Where, "", "", "", 0)
	return b.String(), n.Args, nil
}

func (c *Compiler) compileCreateTable(n CreateTable) (string, []any, error) {
	if err := checkIdents(n.Name); err != nil {
		return "", nil, err
	}
	if len(n.Columns) == 0 {
		return "", nil, fmt.Errorf("ast: create table %s: no columns", n.Name)
	}
	defs := make([]string, len(n.Columns))
	for i, col := range n.Columns {
		def, err := columnDef(col)
		if err != nil {
			return "", nil, err
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", n.Name, strings.Join(defs, ", ")), nil, nil
}

func (c *Compiler) compileAddColumn(n AddColumn) (string, []any, error) {
	if err := checkIdents(n.Table); err != nil {
		return "", nil, err
	}
	def, err := columnDef(n.Column)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", n.Table, def), nil, nil
}

func columnDef(col ColumnDef) (string, error) {
	if err := checkIdents(col.Name); err != nil {
		return "", err
	}
	def := col.Name
	if col.Type != "" {
		def += " " + col.Type
	}
	if col.PrimaryKey {
		def += " primary key"
	}
	return def, nil
}

func writeTail(b *strings.Builder, where, groupBy, having, orderBy string, limit int64) {
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if groupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(groupBy)
	}
	if having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(having)
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.FormatInt(limit, 10))
	}
}

func checkIdents(names ...string) error {
	for _, n := range names {
		if !ValidIdentifier(n) {
			return &IdentifierError{Name: n}
		}
	}
	return nil
}
