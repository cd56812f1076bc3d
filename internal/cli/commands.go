package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CaliLuke/go-activerecord/record"
	"github.com/CaliLuke/go-activerecord/sqlgen"
	"github.com/CaliLuke/go-activerecord/storage"
)

// ErrDrift is returned by check when the database departs from the script.
var ErrDrift = errors.New("schema drift detected")

// withEngine opens the configured database, runs fn and closes it. The
// database must already exist.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *storage.SQLite) error) error {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	logger := GetLogger(ctx)

	if cfg.Database == "" {
		return errors.New("no database configured (use --database)")
	}
	if cfg.Database != storage.MemoryPath {
		if _, err := os.Stat(cfg.Database); err != nil {
			return fmt.Errorf("database %s: %w", cfg.Database, err)
		}
	}
	eng, err := storage.Open(ctx, cfg.Database,
		storage.WithLogger(logger),
		storage.WithSlowThreshold(cfg.SlowQuery),
	)
	if err != nil {
		return err
	}
	defer func() {
		logger.Debug("storage stats", "stats", eng.QueryStats().Stats().String())
		_ = eng.Close()
	}()
	return fn(ctx, eng)
}

func newTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables and their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *storage.SQLite) error {
				tables, err := eng.Tables(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, t := range tables {
					cols, err := eng.Columns(ctx, t)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "%s: %s\n", t, strings.Join(cols, ", "))
				}
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version [N]",
		Short: "Show or set the schema version",
		Long: `Without an argument, print the schema version stored in the database.
With an argument, store it as the new schema version.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target int
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("invalid schema version %q", args[0])
				}
				target = v
			}
			return withEngine(cmd, func(ctx context.Context, eng *storage.SQLite) error {
				if len(args) == 1 {
					if err := eng.SetSchemaVersion(ctx, target); err != nil {
						return err
					}
					GetLogger(ctx).Info("schema version set", "version", target)
				}
				v, err := eng.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func newHistoryCommand() *cobra.Command {
	var statements bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show applied schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *storage.SQLite) error {
				db := record.New(eng, record.WithLogger(GetLogger(ctx)))
				history, err := record.History(ctx, db)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(history) == 0 {
					_, _ = fmt.Fprintln(out, "no migrations recorded")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "VERSION\tAPPLIED\tHASH\tSUMMARY")
				for _, m := range history {
					_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Version, m.AppliedAt, shortHash(m.Hash), m.Summary)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if !statements {
					return nil
				}
				for _, m := range history {
					if err := record.FullyMaterialize(ctx, m); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "\n-- version %d\n%s\n", m.Version, m.Statements)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&statements, "statements", false, "print the statements of each migration")
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func newGenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen [schema.sql...]",
		Short: "Generate Go entity types",
		Long: `Generate Go structs embedding record.BaseEntity, one per table.

The table definitions come from the given DDL scripts, read in order, or
from the configured database when no script is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := GetConfig(ctx)
			rc := cfg.Gen.RenderConfig()

			var schema *sqlgen.ParsedSchema
			if len(args) > 0 {
				s, err := parseScripts(args)
				if err != nil {
					return err
				}
				schema = s
			} else {
				err := withEngine(cmd, func(ctx context.Context, eng *storage.SQLite) error {
					s, err := sqlgen.FromEngine(ctx, eng)
					if err != nil {
						return err
					}
					v, err := eng.SchemaVersion(ctx)
					if err != nil {
						return err
					}
					schema = s
					rc.SchemaVersion = strconv.Itoa(v)
					return nil
				})
				if err != nil {
					return err
				}
			}

			var buf bytes.Buffer
			if err := sqlgen.Render(&buf, schema, rc); err != nil {
				return err
			}
			if cfg.Gen.Output == "" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(cfg.Gen.Output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", cfg.Gen.Output, err)
			}
			GetLogger(ctx).Info("generated", "file", cfg.Gen.Output, "tables", len(schema.Tables))
			return nil
		},
	}
	f := cmd.Flags()
	f.String("package", "", "package name of the generated file")
	f.String("module", "", "import path of the record package")
	f.StringP("out", "o", "", "output file (default: stdout)")
	f.Bool("acronyms", true, "use Go acronym casing (ID, URL)")
	f.Bool("pointers", true, "render nullable columns as pointer fields")
	f.Bool("defer-blobs", false, "tag blob columns as deferred")
	f.Bool("register", true, "emit an init function registering the types")
	f.StringSlice("exclude", nil, "tables to leave out")
	return cmd
}

func parseScripts(paths []string) (*sqlgen.ParsedSchema, error) {
	var b strings.Builder
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		b.Write(data)
		b.WriteString("\n;\n")
	}
	return sqlgen.ParseSchema(b.String())
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check schema.sql...",
		Short: "Compare the database against DDL scripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := parseScripts(args)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *storage.SQLite) error {
				actual, err := sqlgen.FromEngine(ctx, eng)
				if err != nil {
					return err
				}
				drift := sqlgen.Compare(expected, actual.Without(record.MigrationTable))
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), drift.Summary())
				if !drift.IsEmpty() {
					GetLogger(ctx).Warn("schema drift", "database", GetConfig(ctx).Database)
					return ErrDrift
				}
				return nil
			})
		},
	}
}
