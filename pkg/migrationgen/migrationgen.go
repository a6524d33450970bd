// SPDX-License-Identifier: Apache-2.0

// Package migrationgen turns a closed set of schemachange.Change values into
// paired forward/rollback DDL (§4.8): one MigrationArtifact per proposal,
// with per-statement destructiveness and lock-requirement flags. Every
// emitted statement is parsed with pg_query_go before being returned, the
// way pgroll's sql2pgroll layer validates SQL it didn't originate.
package migrationgen

import (
	"fmt"
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/lib/pq"

	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// WarningCode is the stable identifier for a generator-level warning.
type WarningCode string

const (
	WarningDestructiveChange WarningCode = "DESTRUCTIVE_CHANGE"
	WarningTypeChange        WarningCode = "TYPE_CHANGE"
	WarningNotNullConstraint WarningCode = "NOT_NULL_CONSTRAINT"
)

// Severity is the generator's own two-level scale for its warnings, which
// are informational alongside the Rules Engine's governance violations; it
// is separate from the rules package's severity scale.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Warning is a generator-level note attached to one statement.
type Warning struct {
	Code     WarningCode `json:"code"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
}

// Statement is one forward/rollback DDL pair.
type Statement struct {
	Ordinal       int       `json:"ordinal"`
	ForwardSQL    string    `json:"forwardSql"`
	RollbackSQL   string    `json:"rollbackSql,omitempty"`
	IsDestructive bool      `json:"isDestructive"`
	RequiresLock  bool      `json:"requiresLock"`
	Warnings      []Warning `json:"warnings,omitempty"`
}

// Artifact is the full generated migration for a proposal's change set.
type Artifact struct {
	Statements  []Statement `json:"statements"`
	ForwardSQL  string      `json:"forwardSql"`
	RollbackSQL string      `json:"rollbackSql"`
}

// quoteIdent double-quotes a Postgres identifier, doubling embedded quotes,
// per §4.8.
func quoteIdent(s string) string {
	return pq.QuoteIdentifier(s)
}

func qualifiedIdent(schemaName, name string) string {
	return quoteIdent(schemaName) + "." + quoteIdent(name)
}

// Generate builds the MigrationArtifact for an ordered change set. A change
// with an empty Schema is generated against "public".
func Generate(changes []schemachange.Change) (*Artifact, error) {
	artifact := &Artifact{}
	var statementModifiesDB []bool

	for i, change := range changes {
		stmt, err := generateStatement(i+1, change)
		if err != nil {
			return nil, err
		}
		if stmt == nil {
			continue
		}
		if err := validateSQL(stmt.ForwardSQL); err != nil {
			return nil, sferrors.Internal{Reason: fmt.Sprintf("generated forward SQL for statement %d failed to parse: %v", stmt.Ordinal, err)}
		}
		if stmt.RollbackSQL != "" {
			if err := validateSQL(stmt.RollbackSQL); err != nil {
				return nil, sferrors.Internal{Reason: fmt.Sprintf("generated rollback SQL for statement %d failed to parse: %v", stmt.Ordinal, err)}
			}
		}
		artifact.Statements = append(artifact.Statements, *stmt)
		statementModifiesDB = append(statementModifiesDB, change.ModifiesDatabase())
	}

	// Governance-only statements carry a display comment in ForwardSQL but,
	// per §4.8, "do not emit into forward_sql" — they're excluded from the
	// joined Artifact.ForwardSQL/RollbackSQL the Orchestrator executes.
	var forward []string
	var rollback []string
	for i, stmt := range artifact.Statements {
		if !statementModifiesDB[i] {
			continue
		}
		if stmt.ForwardSQL != "" {
			forward = append(forward, stmt.ForwardSQL)
		}
		if stmt.RollbackSQL != "" {
			rollback = append(rollback, stmt.RollbackSQL)
		}
	}
	// Rollback statements are concatenated in reverse declaration order,
	// since later forward statements must be undone first.
	for i, j := 0, len(rollback)-1; i < j; i, j = i+1, j-1 {
		rollback[i], rollback[j] = rollback[j], rollback[i]
	}

	artifact.ForwardSQL = strings.Join(forward, "\n")
	artifact.RollbackSQL = strings.Join(rollback, "\n")
	return artifact, nil
}

func validateSQL(sql string) error {
	_, err := pgq.Parse(sql)
	return err
}

func schemaOrDefault(s string) string {
	if s == "" {
		return "public"
	}
	return s
}

func generateStatement(ordinal int, change schemachange.Change) (*Statement, error) {
	switch c := change.(type) {
	case schemachange.CreateTable:
		return generateCreateTable(ordinal, c), nil
	case schemachange.DropTable:
		return generateDropTable(ordinal, c), nil
	case schemachange.RenameTable:
		return generateRenameTable(ordinal, c), nil
	case schemachange.AddColumn:
		return generateAddColumn(ordinal, c), nil
	case schemachange.DropColumn:
		return generateDropColumn(ordinal, c), nil
	case schemachange.AlterColumn:
		return generateAlterColumn(ordinal, c), nil
	case schemachange.RenameColumn:
		return generateRenameColumn(ordinal, c), nil
	case schemachange.AddForeignKey:
		return generateAddForeignKey(ordinal, c), nil
	case schemachange.DropForeignKey:
		return generateDropForeignKey(ordinal, c), nil
	case schemachange.AddPrimaryKey:
		return generateAddPrimaryKey(ordinal, c), nil
	case schemachange.DropPrimaryKey:
		return generateDropPrimaryKey(ordinal, c), nil
	case schemachange.AddUniqueConstraint:
		return generateAddUniqueConstraint(ordinal, c), nil
	case schemachange.DropUniqueConstraint:
		return generateDropUniqueConstraint(ordinal, c), nil
	case schemachange.AddIndex:
		return generateAddIndex(ordinal, c), nil
	case schemachange.DropIndex:
		return generateDropIndex(ordinal, c), nil
	case schemachange.SetPiiClassification, schemachange.AddTag, schemachange.RemoveTag, schemachange.SetDescription:
		return &Statement{Ordinal: ordinal, ForwardSQL: "-- Governance metadata change (no SQL)"}, nil
	default:
		return nil, sferrors.Internal{Reason: fmt.Sprintf("unhandled schema change variant %T", change)}
	}
}

func columnClause(col schemachange.ColumnDef) string {
	parts := []string{quoteIdent(col.Name), col.DataType}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.DefaultValue != nil {
		parts = append(parts, "DEFAULT", *col.DefaultValue)
	}
	if col.Unique {
		parts = append(parts, "UNIQUE")
	}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	return strings.Join(parts, " ")
}

func generateCreateTable(ordinal int, c schemachange.CreateTable) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	cols := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		cols = append(cols, columnClause(col))
	}
	forward := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);", qualified, strings.Join(cols, ",\n\t"))
	rollback := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", qualified)
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RollbackSQL: rollback}
}

func generateDropTable(ordinal int, c schemachange.DropTable) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	cascade := ""
	if c.Cascade {
		cascade = " CASCADE"
	}
	forward := fmt.Sprintf("DROP TABLE %s%s;", qualified, cascade)
	return &Statement{
		Ordinal: ordinal, ForwardSQL: forward, IsDestructive: true,
		Warnings: []Warning{{Code: WarningDestructiveChange, Severity: SeverityCritical, Message: fmt.Sprintf("dropping table %s is irreversible", qualified)}},
	}
}

func generateRenameTable(ordinal int, c schemachange.RenameTable) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", qualified, quoteIdent(c.NewName))
	rollback := fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", qualifiedIdent(schemaOrDefault(c.Schema), c.NewName), quoteIdent(c.Table))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RollbackSQL: rollback}
}

func generateAddColumn(ordinal int, c schemachange.AddColumn) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", qualified, columnClause(c.Column))
	rollback := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", qualified, quoteIdent(c.Column.Name))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RollbackSQL: rollback, RequiresLock: true}
}

func generateDropColumn(ordinal int, c schemachange.DropColumn) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	cascade := ""
	if c.Cascade {
		cascade = " CASCADE"
	}
	forward := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s%s;", qualified, quoteIdent(c.Column), cascade)
	return &Statement{
		Ordinal: ordinal, ForwardSQL: forward, IsDestructive: true, RequiresLock: true,
		Warnings: []Warning{{Code: WarningDestructiveChange, Severity: SeverityCritical, Message: fmt.Sprintf("dropping column %s.%s is irreversible", qualified, c.Column)}},
	}
}

func generateAlterColumn(ordinal int, c schemachange.AlterColumn) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	col := quoteIdent(c.Column)
	var stmts []string
	var warnings []Warning

	if c.NewType != nil {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;", qualified, col, *c.NewType, col, *c.NewType))
		warnings = append(warnings, Warning{Code: WarningTypeChange, Severity: SeverityWarning, Message: fmt.Sprintf("%s.%s changes type to %s", qualified, c.Column, *c.NewType)})
	}
	if c.SetNullable != nil {
		if *c.SetNullable {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;", qualified, col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;", qualified, col))
			warnings = append(warnings, Warning{Code: WarningNotNullConstraint, Severity: SeverityWarning, Message: fmt.Sprintf("%s.%s becomes NOT NULL", qualified, c.Column)})
		}
	}
	if c.SetDefault != nil {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s;", qualified, col, *c.SetDefault))
	}
	if c.DropDefault {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT;", qualified, col))
	}

	return &Statement{
		Ordinal:      ordinal,
		ForwardSQL:   strings.Join(stmts, "\n"),
		RequiresLock: true,
		Warnings:     warnings,
		// RollbackSQL intentionally empty: the original type/constraint state
		// isn't persisted on the change, so no safe rollback can be derived.
	}
}

func generateRenameColumn(ordinal int, c schemachange.RenameColumn) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;", qualified, quoteIdent(c.Column), quoteIdent(c.NewName))
	rollback := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;", qualified, quoteIdent(c.NewName), quoteIdent(c.Column))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RollbackSQL: rollback}
}

func generateAddForeignKey(ordinal int, c schemachange.AddForeignKey) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	refQualified := qualifiedIdent(schemaOrDefault(c.ReferencedSchema), c.ReferencedTable)
	forward := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		qualified, quoteIdent(c.ConstraintName), quoteIdentList(c.Columns), refQualified, quoteIdentList(c.ReferencedColumns))
	if c.OnDelete != "" {
		forward += " ON DELETE " + c.OnDelete
	}
	if c.OnUpdate != "" {
		forward += " ON UPDATE " + c.OnUpdate
	}
	forward += ";"
	rollback := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", qualified, quoteIdent(c.ConstraintName))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RollbackSQL: rollback, RequiresLock: true}
}

func generateDropForeignKey(ordinal int, c schemachange.DropForeignKey) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", qualified, quoteIdent(c.ConstraintName))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, IsDestructive: true}
}

func generateAddPrimaryKey(ordinal int, c schemachange.AddPrimaryKey) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s);", qualified, quoteIdentList(c.Columns))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RequiresLock: true}
}

func generateDropPrimaryKey(ordinal int, c schemachange.DropPrimaryKey) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", qualified, quoteIdent(c.Table+"_pkey"))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, IsDestructive: true}
}

func generateAddUniqueConstraint(ordinal int, c schemachange.AddUniqueConstraint) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s);", qualified, quoteIdent(c.ConstraintName), quoteIdentList(c.Columns))
	rollback := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", qualified, quoteIdent(c.ConstraintName))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RollbackSQL: rollback, RequiresLock: true}
}

func generateDropUniqueConstraint(ordinal int, c schemachange.DropUniqueConstraint) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	forward := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", qualified, quoteIdent(c.ConstraintName))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, IsDestructive: true, RequiresLock: true}
}

func generateAddIndex(ordinal int, c schemachange.AddIndex) *Statement {
	qualified := qualifiedIdent(schemaOrDefault(c.Schema), c.Table)
	unique := ""
	if c.Unique {
		unique = "UNIQUE "
	}
	concurrent := ""
	if c.Concurrent {
		concurrent = "CONCURRENTLY "
	}
	using := ""
	if c.IndexType != "" {
		using = "USING " + c.IndexType + " "
	}
	forward := fmt.Sprintf("CREATE %sINDEX %s%s ON %s %s(%s);", unique, concurrent, quoteIdent(c.IndexName), qualified, using, quoteIdentList(c.Columns))
	rollback := fmt.Sprintf("DROP INDEX %s%s;", concurrent, quoteIdent(c.IndexName))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, RollbackSQL: rollback}
}

func generateDropIndex(ordinal int, c schemachange.DropIndex) *Statement {
	concurrent := ""
	if c.Concurrent {
		concurrent = "CONCURRENTLY "
	}
	forward := fmt.Sprintf("DROP INDEX %s%s;", concurrent, quoteIdent(c.IndexName))
	return &Statement{Ordinal: ordinal, ForwardSQL: forward, IsDestructive: true}
}

func quoteIdentList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
