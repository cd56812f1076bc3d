package record

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

// MigrationTable is the table that records applied schema updates.
const MigrationTable = "schema_migration"

// SchemaMigration is one schema update applied by a Generator. It is stored
// through the ORM like any other entity.
type SchemaMigration struct {
	BaseEntity
	// Version is the schema version the update moved to.
	Version int64 `ar:"version"`
	// Hash is the SHA-256 of the applied statements.
	Hash string `ar:"hash"`
	// Summary describes the applied changes.
	Summary string `ar:"summary"`
	// AppliedAt is an RFC 3339 UTC timestamp.
	AppliedAt string `ar:"applied_at"`
	// Statements are the applied statements, newline separated.
	Statements string `ar:"statements,deferred"`
}

// TableName implements Tabler.
func (SchemaMigration) TableName() string { return MigrationTable }

// AppliedTime parses AppliedAt.
func (m *SchemaMigration) AppliedTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, m.AppliedAt)
}

// HashStatements returns a deterministic SHA-256 hash of a list of
// migration statements.
func HashStatements(stmts []string) string {
	h := sha256.New()
	for _, s := range stmts {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// History returns the recorded schema updates, oldest first. A database
// that never ran a Generator has no history.
func History(ctx context.Context, db *Database) ([]*SchemaMigration, error) {
	if err := checkDB("History", db); err != nil {
		return nil, err
	}
	tables, err := db.engine.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if !containsFold(tables, MigrationTable) {
		return nil, nil
	}
	return FindWith[SchemaMigration](ctx, db, FindOptions{OrderBy: IDColumn})
}

// ensureHistory creates or extends the history table.
func ensureHistory(ctx context.Context, db *Database) error {
	info, err := ModelOf[SchemaMigration]()
	if err != nil {
		return err
	}
	diff, err := DiffModel(ctx, db, info)
	if err != nil {
		return err
	}
	_, err = diff.Apply(ctx, db.engine)
	return err
}
