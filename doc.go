// Package activerecord is a lightweight active-record ORM over embedded
// SQLite.
//
// Entities are plain Go structs embedding record.BaseEntity. Their schema is
// inferred from the struct fields, loaded rows are shared through a
// weak-reference identity cache, and tables are created and widened by an
// additive schema generator.
//
// The module is organized into four packages:
//
//   - [github.com/CaliLuke/go-activerecord/record] for entities, persistence, queries and migrations
//   - [github.com/CaliLuke/go-activerecord/storage] for the SQLite storage engine
//   - [github.com/CaliLuke/go-activerecord/ast] for SQL statement nodes and their compiler
//   - [github.com/CaliLuke/go-activerecord/sqlgen] for generating entity types from SQLite DDL
//
// The arsql command (cmd/arsql) exposes schema inspection and code
// generation on the command line.
package activerecord
