package sqlgen

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"maps"
	"slices"
	"strings"
	"text/template"

	"github.com/CaliLuke/go-activerecord/record"
)

// RenderConfig specifies the settings for generating Go code from a schema.
type RenderConfig struct {
	// PackageName is the name of the Go package for the generated code.
	PackageName string
	// ModulePath is the import path of the record package.
	ModulePath string
	// UseAcronyms applies Go acronym casing (ID rather than Id).
	UseAcronyms bool
	// NullablePointers renders nullable scalar columns as pointer fields.
	NullablePointers bool
	// DeferBlobs tags blob columns as deferred.
	DeferBlobs bool
	// Register emits an init function registering every generated type.
	Register bool
	// SchemaVersion is an optional string included in the file header.
	SchemaVersion string
	// Exclude lists tables to leave out.
	Exclude []string
}

// DefaultConfig returns a RenderConfig with the usual settings.
func DefaultConfig() RenderConfig {
	return RenderConfig{
		PackageName:      "models",
		ModulePath:       "github.com/CaliLuke/go-activerecord/record",
		UseAcronyms:      true,
		NullablePointers: true,
		Register:         true,
		Exclude:          []string{record.MigrationTable},
	}
}

// Render writes gofmt-formatted Go source declaring one entity struct per
// compatible table. Incompatible tables and unusable columns are listed
// in comments rather than failing the whole render.
func Render(w io.Writer, schema *ParsedSchema, cfg RenderConfig) error {
	if cfg.PackageName == "" {
		cfg.PackageName = "models"
	}
	if cfg.ModulePath == "" {
		cfg.ModulePath = DefaultConfig().ModulePath
	}

	data := &renderData{
		PackageName:   cfg.PackageName,
		ModulePath:    cfg.ModulePath,
		SchemaVersion: cfg.SchemaVersion,
		Register:      cfg.Register,
	}

	// Type names are assigned up front so reference columns can point at
	// tables declared later in the script.
	goNames := make(map[string]string)
	used := make(map[string]bool)
	var tables []*TableSpec
	for i := range schema.Tables {
		t := &schema.Tables[i]
		if slices.ContainsFunc(cfg.Exclude, func(s string) bool { return strings.EqualFold(s, t.Name) }) {
			continue
		}
		if err := t.Compatible(); err != nil {
			data.Skipped = append(data.Skipped, err.Error())
			continue
		}
		goNames[strings.ToLower(t.Name)] = uniqueName(goIdent(goTypeName(t.Name, cfg)), used)
		tables = append(tables, t)
	}

	for _, t := range tables {
		data.Entities = append(data.Entities, buildEntityCtx(t, goNames, cfg))
	}

	var buf bytes.Buffer
	if err := renderTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("format generated code: %w", err)
	}
	_, err = w.Write(src)
	return err
}

// --- Template context types ---

type renderData struct {
	PackageName   string
	ModulePath    string
	SchemaVersion string
	Register      bool
	Skipped       []string
	Entities      []entityCtx
}

type entityCtx struct {
	GoName string
	Table  string
	Notes  []string
	Fields []fieldCtx
}

type fieldCtx struct {
	GoName  string
	GoType  string
	Tag     string
	Comment string
}

// --- Context builders ---

// entityMembers are promoted from record.BaseEntity or required by the
// table naming convention, so columns may not claim them.
var entityMembers = map[string]bool{
	"BaseEntity":          true,
	"ID":                  true,
	"NeedsInsert":         true,
	"IsFullyMaterialized": true,
	"Database":            true,
	"TableName":           true,
}

func buildEntityCtx(t *TableSpec, goNames map[string]string, cfg RenderConfig) entityCtx {
	ctx := entityCtx{
		GoName: goNames[strings.ToLower(t.Name)],
		Table:  t.Name,
	}
	used := maps.Clone(entityMembers)
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, record.IDColumn) {
			continue
		}
		if record.IsReservedWord(col.Name) {
			ctx.Notes = append(ctx.Notes, fmt.Sprintf("column %s skipped: reserved word", col.Name))
			continue
		}
		ctx.Fields = append(ctx.Fields, buildFieldCtx(col, goNames, used, cfg))
	}
	return ctx
}

func buildFieldCtx(col ColumnSpec, goNames map[string]string, used map[string]bool, cfg RenderConfig) fieldCtx {
	f := fieldCtx{GoName: uniqueName(goIdent(goTypeName(col.Name, cfg)), used)}

	tag := col.Name
	if target, ok := goNames[strings.ToLower(col.References)]; ok && col.References != "" {
		f.GoType = "*" + target
		f.Comment = "references " + col.References
		f.Tag = fmt.Sprintf("`%s:%q`", record.TagName, tag)
		return f
	}

	goType := sqliteToGo(col)
	switch {
	case goType == "[]byte":
		if cfg.DeferBlobs {
			tag += ",deferred"
		}
	case cfg.NullablePointers && col.Nullable():
		goType = "*" + goType
	}
	if col.References != "" {
		f.Comment = "references " + col.References + " (not generated)"
	}
	f.GoType = goType
	f.Tag = fmt.Sprintf("`%s:%q`", record.TagName, tag)
	return f
}

// sqliteToGo maps a column's declared type onto the Go type the record
// package stores in that affinity.
func sqliteToGo(col ColumnSpec) string {
	if col.IsBoolean() {
		return "bool"
	}
	switch col.Affinity() {
	case AffinityInteger:
		return "int64"
	case AffinityText:
		return "string"
	case AffinityReal:
		return "float64"
	case AffinityBlob:
		return "[]byte"
	default:
		t := strings.ToUpper(col.Type)
		if strings.Contains(t, "DATE") || strings.Contains(t, "TIME") {
			return "string"
		}
		return "float64"
	}
}

func goTypeName(name string, cfg RenderConfig) string {
	if cfg.UseAcronyms {
		return ToPascalCaseAcronyms(name)
	}
	return ToPascalCase(name)
}

// uniqueName appends a numeric suffix until name is unused, then marks it.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	if used[candidate] {
		candidate = name + "Value"
	}
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	used[candidate] = true
	return candidate
}

// --- Go template ---

var renderTemplate = template.Must(template.New("models").Parse(`// Code generated by arsql. DO NOT EDIT.
{{- if .SchemaVersion}}
// Schema version: {{.SchemaVersion}}
{{- end}}

package {{.PackageName}}
{{- if .Entities}}

import record "{{.ModulePath}}"
{{- end}}
{{- if .Skipped}}

// Tables without a generated type:
{{- range .Skipped}}
//   - {{.}}
{{- end}}
{{- end}}
{{range .Entities}}
// {{.GoName}} is a row of the {{.Table}} table.
type {{.GoName}} struct {
	record.BaseEntity
{{- range .Notes}}
	// {{.}}
{{- end}}
{{- range .Fields}}
	{{.GoName}} {{.GoType}} {{.Tag}}{{if .Comment}} // {{.Comment}}{{end}}
{{- end}}
}

// TableName returns the table the type is stored in.
func ({{.GoName}}) TableName() string { return {{printf "%q" .Table}} }
{{end}}
{{- if and .Register .Entities}}
func init() {
{{- range .Entities}}
	record.MustRegister[{{.GoName}}]()
{{- end}}
}
{{- end}}
`))
