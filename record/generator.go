package record

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// GeneratorState is the phase of a Generator.
type GeneratorState int

const (
	// StateIdle accepts BeginUpdate only.
	StateIdle GeneratorState = iota
	// StateClearing builds every table from scratch.
	StateClearing
	// StateMigrating only adds what is missing to existing tables.
	StateMigrating
)

func (s GeneratorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClearing:
		return "clearing"
	case StateMigrating:
		return "migrating"
	default:
		return fmt.Sprintf("GeneratorState(%d)", int(s))
	}
}

// Generator creates and migrates tables to match entity types, then records
// the target schema version.
//
//	g := record.NewGenerator(db, 2)
//	if ok, _ := g.NeedsUpdate(ctx); ok {
//		_ = g.BeginUpdate(ctx, false)
//		_ = record.AddClass[Person](ctx, g)
//		_ = g.EndUpdate(ctx)
//	}
type Generator struct {
	db     *Database
	target int

	mu        sync.Mutex
	state     GeneratorState
	applied   []string
	summaries []string
}

// NewGenerator returns an idle generator for db and the given target
// schema version.
func NewGenerator(db *Database, target int) *Generator {
	return &Generator{db: db, target: target}
}

// State returns the current phase.
func (g *Generator) State() GeneratorState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Target returns the schema version EndUpdate records.
func (g *Generator) Target() int { return g.target }

// NeedsUpdate reports whether the stored schema version differs from the
// target.
func (g *Generator) NeedsUpdate(ctx context.Context) (bool, error) {
	v, err := g.db.engine.SchemaVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("needs update: %w", err)
	}
	return v != g.target, nil
}

// BeginUpdate starts an update. With clear set every existing table is
// dropped first. Otherwise a database that already has tables is migrated
// additively.
func (g *Generator) BeginUpdate(ctx context.Context, clear bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateIdle {
		return &InvalidStateError{Op: "BeginUpdate", Message: "update already in progress (" + g.state.String() + ")"}
	}

	tables, err := g.db.engine.Tables(ctx)
	if err != nil {
		return &MigrationError{Operation: "list tables", Cause: err}
	}
	g.applied = g.applied[:0]
	g.summaries = g.summaries[:0]

	switch {
	case clear:
		for _, op := range dropAll(tables) {
			stmt, err := op.SQL()
			if err != nil {
				return &MigrationError{Operation: "drop", Cause: err}
			}
			if err := g.db.engine.Execute(ctx, stmt); err != nil {
				return &MigrationError{Operation: stmt, Cause: err}
			}
			g.applied = append(g.applied, stmt)
		}
		if len(tables) > 0 {
			g.summaries = append(g.summaries, fmt.Sprintf("drop %d table(s): %s", len(tables), strings.Join(tables, ", ")))
		}
		g.db.ClearCache()
		g.state = StateClearing
	case len(tables) > 0:
		g.state = StateMigrating
	default:
		g.state = StateClearing
	}
	g.db.logger.InfoContext(ctx, "schema update started", "state", g.state.String(), "target", g.target, "tables", len(tables))
	return nil
}

// AddClass creates or extends the table for T. It fails outside an update.
func AddClass[T any, PT EntityPtr[T]](ctx context.Context, g *Generator) error {
	info, err := ModelOf[T]()
	if err != nil {
		return err
	}
	return g.AddModel(ctx, info)
}

// AddModel creates info's table when it is missing and adds any missing
// columns when it exists. Existing columns are never dropped or altered.
func (g *Generator) AddModel(ctx context.Context, info *ModelInfo) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateIdle {
		return &InvalidStateError{Op: "AddClass", Message: "no update in progress"}
	}

	diff, err := DiffModel(ctx, g.db, info)
	if err != nil {
		return &MigrationError{Operation: "diff " + info.Table, Cause: err}
	}
	if diff.IsEmpty() {
		g.db.logger.DebugContext(ctx, "table up to date", "table", info.Table)
		return nil
	}
	stmts, err := diff.Apply(ctx, g.db.engine)
	g.applied = append(g.applied, stmts...)
	if err != nil {
		return err
	}
	g.summaries = append(g.summaries, diff.Summary())
	g.db.logger.DebugContext(ctx, "table migrated", "table", info.Table, "summary", diff.Summary())
	return nil
}

// EndUpdate records the target version and, when anything changed, a
// SchemaMigration row, then returns the generator to idle.
func (g *Generator) EndUpdate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateIdle {
		return &InvalidStateError{Op: "EndUpdate", Message: "no update in progress"}
	}

	err := g.db.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := g.db.engine.SetSchemaVersion(ctx, g.target); err != nil {
			return err
		}
		if len(g.applied) == 0 {
			return nil
		}
		if err := ensureHistory(ctx, g.db); err != nil {
			return err
		}
		entry := &SchemaMigration{
			Version:    int64(g.target),
			Hash:       HashStatements(g.applied),
			Summary:    strings.Join(g.summaries, "; "),
			AppliedAt:  time.Now().UTC().Format(time.RFC3339Nano),
			Statements: strings.Join(g.applied, "\n"),
		}
		return SaveTo(ctx, entry, g.db)
	})
	if err != nil {
		return &MigrationError{Operation: "end update", Cause: err}
	}

	g.db.logger.InfoContext(ctx, "schema update finished", "version", g.target, "statements", len(g.applied))
	g.state = StateIdle
	g.applied = nil
	g.summaries = nil
	return nil
}

// Plan returns what an update would change for the given types without
// applying anything. With no infos it plans every registered type.
func (g *Generator) Plan(ctx context.Context, infos ...*ModelInfo) (*SchemaDiff, error) {
	return DiffModels(ctx, g.db, infos...)
}
