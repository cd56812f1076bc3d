package sqlgen

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// --- Participle grammar structs ---
// These cover the table DDL SQLite stores in sqlite_master: CREATE TABLE,
// CREATE INDEX and ALTER TABLE ... ADD COLUMN.

// DDLFile is the root of a parsed script.
type DDLFile struct {
	Stmts []*DDLStmt `parser:"';'* ( @@ ';'* )*"`
}

// DDLStmt is one top-level statement.
type DDLStmt struct {
	Create *CreateTableDef `parser:"  @@"`
	Index  *CreateIndexDef `parser:"| @@"`
	Alter  *AlterTableDef  `parser:"| @@"`
}

// CreateTableDef parses: CREATE TABLE [IF NOT EXISTS] name (item, ...) [options]
type CreateTableDef struct {
	IfNotExists bool           `parser:"'CREATE' 'TABLE' @( 'IF' 'NOT' 'EXISTS' )?"`
	Name        string         `parser:"@( Ident | QuotedIdent )"`
	Items       []*TableItem   `parser:"'(' @@ ( ',' @@ )* ')'"`
	Options     []*TableOption `parser:"( @@ ( ',' @@ )* )?"`
}

// TableOption is WITHOUT ROWID or STRICT.
type TableOption struct {
	WithoutRowID bool `parser:"  @( 'WITHOUT' 'ROWID' )"`
	Strict       bool `parser:"| @'STRICT'"`
}

// TableItem is a table constraint or a column definition.
type TableItem struct {
	Constraint *TableConstraint `parser:"  @@"`
	Column     *ColumnDefP      `parser:"| @@"`
}

// TableConstraint parses table-level PRIMARY KEY, UNIQUE, FOREIGN KEY and CHECK.
type TableConstraint struct {
	Name       string         `parser:"( 'CONSTRAINT' @( Ident | QuotedIdent ) )?"`
	PrimaryKey []string       `parser:"( 'PRIMARY' 'KEY' '(' @( Ident | QuotedIdent ) Ident? ( ',' @( Ident | QuotedIdent ) Ident? )* ')'"`
	Unique     []string       `parser:"| 'UNIQUE' '(' @( Ident | QuotedIdent ) ( ',' @( Ident | QuotedIdent ) )* ')'"`
	ForeignKey *ForeignKeyDef `parser:"| @@"`
	Check      *ParenExpr     `parser:"| 'CHECK' @@ )"`
}

// ForeignKeyDef parses: FOREIGN KEY (col, ...) REFERENCES table [(col, ...)]
type ForeignKeyDef struct {
	Columns    []string       `parser:"'FOREIGN' 'KEY' '(' @( Ident | QuotedIdent ) ( ',' @( Ident | QuotedIdent ) )* ')'"`
	References *ReferencesDef `parser:"@@"`
}

// ColumnDefP parses: name [type-name] [constraint...]
type ColumnDefP struct {
	Name        string              `parser:"@( Ident | QuotedIdent )"`
	Type        []string            `parser:"@Ident* ( '(' Number ( ',' Number )? ')' )?"`
	Constraints []*ColumnConstraint `parser:"@@*"`
}

// ColumnConstraint is one column constraint.
type ColumnConstraint struct {
	Named      string         `parser:"  'CONSTRAINT' @( Ident | QuotedIdent )"`
	PrimaryKey *PrimaryKeyDef `parser:"| @@"`
	NotNull    bool           `parser:"| @( 'NOT' 'NULL' )"`
	Null       bool           `parser:"| @'NULL'"`
	Unique     bool           `parser:"| @'UNIQUE'"`
	Default    *DefaultDef    `parser:"| 'DEFAULT' @@"`
	References *ReferencesDef `parser:"| @@"`
	Check      *ParenExpr     `parser:"| 'CHECK' @@"`
	Collate    string         `parser:"| 'COLLATE' @Ident"`
}

// PrimaryKeyDef parses: PRIMARY KEY [ASC|DESC] [AUTOINCREMENT]
type PrimaryKeyDef struct {
	Order         string `parser:"'PRIMARY' 'KEY' @Ident?"`
	Autoincrement bool   `parser:"@'AUTOINCREMENT'?"`
}

// DefaultDef parses a literal default or a parenthesized expression.
type DefaultDef struct {
	Value string     `parser:"  @( String | Number | Ident | 'NULL' )"`
	Expr  *ParenExpr `parser:"| @@"`
}

// ReferencesDef parses: REFERENCES table [(col, ...)] [ON event action]...
type ReferencesDef struct {
	Table   string   `parser:"'REFERENCES' @( Ident | QuotedIdent )"`
	Columns []string `parser:"( '(' @( Ident | QuotedIdent ) ( ',' @( Ident | QuotedIdent ) )* ')' )?"`
	Actions []string `parser:"( 'ON' @Ident @( Ident | 'NULL' | 'DEFAULT' )+ )*"`
}

// ParenExpr is a balanced parenthesized expression kept as raw tokens.
type ParenExpr struct {
	Parts []*ExprPart `parser:"'(' @@* ')'"`
}

// ExprPart is a nested expression or a single token.
type ExprPart struct {
	Nested *ParenExpr `parser:"  @@"`
	Token  string     `parser:"| @( Ident | QuotedIdent | String | Number | Keyword | Operator | ',' | '.' )"`
}

// CreateIndexDef parses CREATE [UNIQUE] INDEX statements so schema dumps
// can be read whole. Indexes do not affect generated code.
type CreateIndexDef struct {
	Unique bool     `parser:"'CREATE' @'UNIQUE'? 'INDEX' ( 'IF' 'NOT' 'EXISTS' )?"`
	Name   string   `parser:"@( Ident | QuotedIdent )"`
	Table  string   `parser:"'ON' @( Ident | QuotedIdent )"`
	Rest   []string `parser:"@~';'*"`
}

// AlterTableDef parses: ALTER TABLE name ADD [COLUMN] column-def
type AlterTableDef struct {
	Table  string      `parser:"'ALTER' 'TABLE' @( Ident | QuotedIdent )"`
	Column *ColumnDefP `parser:"'ADD' 'COLUMN'? @@"`
}

// --- Lexer ---

var ddlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Keyword", Pattern: `(?i)\b(?:CREATE|TABLE|INDEX|IF|NOT|EXISTS|ALTER|ADD|COLUMN|CONSTRAINT|PRIMARY|KEY|AUTOINCREMENT|NULL|DEFAULT|UNIQUE|REFERENCES|FOREIGN|CHECK|COLLATE|WITHOUT|ROWID|STRICT|ON)\b`},
	{Name: "QuotedIdent", Pattern: "\"(?:[^\"]|\"\")+\"|`[^`]+`|\\[[^\\]]+\\]"},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Number", Pattern: `[-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
	{Name: "Operator", Pattern: `<=|>=|<>|!=|==|\|\||<<|>>|[-+*/%<>=&|~]`},
	{Name: "Punct", Pattern: `[(),;.]`},
})

var ddlParser = participle.MustBuild[DDLFile](
	participle.Lexer(ddlLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(3),
)

// --- Entry points ---

// ParseSchema parses an SQLite DDL script into a ParsedSchema. ALTER TABLE
// statements are applied to the table they name, so a migration log
// yields the resulting table shapes.
func ParseSchema(input string) (*ParsedSchema, error) {
	file, err := ddlParser.ParseString("schema.sql", input)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return convertAST(file)
}

// ParseSchemaFile reads an SQLite DDL script from path and parses it.
func ParseSchemaFile(path string) (*ParsedSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(string(data))
}

// --- AST conversion ---

func convertAST(file *DDLFile) (*ParsedSchema, error) {
	schema := &ParsedSchema{}
	for _, stmt := range file.Stmts {
		switch {
		case stmt.Create != nil:
			t := convertTable(stmt.Create)
			if existing, ok := schema.Table(t.Name); ok {
				if stmt.Create.IfNotExists {
					continue
				}
				return nil, fmt.Errorf("table %s defined twice", existing.Name)
			}
			schema.Tables = append(schema.Tables, t)
		case stmt.Alter != nil:
			if err := schema.addColumn(unquote(stmt.Alter.Table), convertColumn(stmt.Alter.Column)); err != nil {
				return nil, err
			}
		}
	}
	return schema, nil
}

func convertTable(c *CreateTableDef) TableSpec {
	t := TableSpec{Name: unquote(c.Name)}
	for _, opt := range c.Options {
		t.WithoutRowID = t.WithoutRowID || opt.WithoutRowID
		t.Strict = t.Strict || opt.Strict
	}

	var pkCols []string
	refs := map[string]string{}
	for _, item := range c.Items {
		switch {
		case item.Column != nil:
			t.Columns = append(t.Columns, convertColumn(item.Column))
		case item.Constraint != nil && len(item.Constraint.PrimaryKey) > 0:
			pkCols = item.Constraint.PrimaryKey
		case item.Constraint != nil && item.Constraint.ForeignKey != nil:
			fk := item.Constraint.ForeignKey
			if len(fk.Columns) == 1 {
				refs[strings.ToLower(unquote(fk.Columns[0]))] = unquote(fk.References.Table)
			}
		}
	}

	// A single-column table-level key marks that column; composite keys
	// leave every column unmarked.
	if len(pkCols) == 1 {
		if col, ok := t.Column(unquote(pkCols[0])); ok {
			col.PrimaryKey = true
		}
	}
	for i := range t.Columns {
		if target, ok := refs[strings.ToLower(t.Columns[i].Name)]; ok && t.Columns[i].References == "" {
			t.Columns[i].References = target
		}
	}
	return t
}

func convertColumn(c *ColumnDefP) ColumnSpec {
	col := ColumnSpec{
		Name: unquote(c.Name),
		Type: strings.Join(c.Type, " "),
	}
	for _, cons := range c.Constraints {
		switch {
		case cons.PrimaryKey != nil:
			col.PrimaryKey = true
			col.Autoincrement = cons.PrimaryKey.Autoincrement
		case cons.NotNull:
			col.NotNull = true
		case cons.Unique:
			col.Unique = true
		case cons.Default != nil:
			col.Default = cons.Default.String()
		case cons.References != nil:
			col.References = unquote(cons.References.Table)
		}
	}
	return col
}

// String renders the default clause back to SQL text.
func (d *DefaultDef) String() string {
	if d.Expr != nil {
		return d.Expr.String()
	}
	return d.Value
}

// String renders the expression with single spaces between tokens.
func (p *ParenExpr) String() string {
	parts := make([]string, 0, len(p.Parts))
	for _, part := range p.Parts {
		if part.Nested != nil {
			parts = append(parts, part.Nested.String())
		} else {
			parts = append(parts, part.Token)
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// unquote strips SQLite identifier quoting: "x", `x` or [x].
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case s[0] == '`' && s[len(s)-1] == '`':
		return s[1 : len(s)-1]
	case s[0] == '[' && s[len(s)-1] == ']':
		return s[1 : len(s)-1]
	}
	return s
}
