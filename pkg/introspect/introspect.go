// SPDX-License-Identifier: Apache-2.0

// Package introspect reads a live PostgreSQL catalog into a schema.Snapshot
// (§4.1). The queries are adapted from pgroll's read_schema() catalog
// function: the same pg_catalog/information_schema joins, split into one
// query per concern instead of a single JSON-building statement, since the
// result feeds a typed Snapshot rather than a JSON column.
package introspect

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/schemaflow/schemaflow/pkg/db"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// Introspector reads a connection's current catalog state.
type Introspector struct {
	db db.DB
}

// New returns an Introspector bound to the given connection abstraction.
func New(conn db.DB) *Introspector {
	return &Introspector{db: conn}
}

// Capture reads every base table, column, primary key, foreign key and
// index in every non-catalog schema (the connection's search_path does not
// narrow it) and returns an unversioned Snapshot with a fresh ID (Version is
// left zero; the Snapshot Store assigns it on Save). CapturedAt and Checksum
// are always populated.
func (i *Introspector) Capture(ctx context.Context, connectionID uuid.UUID) (*schema.Snapshot, error) {
	tables, err := i.readTables(ctx)
	if err != nil {
		return nil, err
	}

	foreignKeys, err := i.readForeignKeys(ctx)
	if err != nil {
		return nil, err
	}

	indexes, err := i.readIndexes(ctx)
	if err != nil {
		return nil, err
	}

	snap := &schema.Snapshot{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		CapturedAt:   time.Now().UTC(),
		Tables:       tables,
		ForeignKeys:  foreignKeys,
		Indexes:      indexes,
	}
	snap.Checksum = schema.ComputeChecksum(snap.Tables, snap.ForeignKeys, snap.Indexes)
	return snap, nil
}

// FastChecksum reads only table/column metadata — skipping foreign keys and
// indexes — and computes the §4.10 pre-flight checksum used by the
// Orchestrator's drift check. It is cheaper than Capture and deliberately
// uses schema.FastChecksum rather than schema.ComputeChecksum; the two use
// different encodings, so the result is only comparable with
// schema.FastChecksum over the base snapshot's tables. A change that touches
// only FKs/indexes leaves it unchanged, by design (§4.10 only cares about
// column-shape drift for the fast path).
func (i *Introspector) FastChecksum(ctx context.Context) (string, error) {
	tables, err := i.readTables(ctx)
	if err != nil {
		return "", err
	}
	return schema.FastChecksum(tables), nil
}

const readTablesQuery = `
SELECT
	ns.nspname AS schema,
	t.relname AS table,
	attr.attname AS column,
	format_type(attr.atttypid, attr.atttypmod) AS data_type,
	NOT attr.attnotnull AS nullable,
	pg_get_expr(def.adbin, def.adrelid) AS default_value,
	attr.attnum AS ordinal_position,
	EXISTS (
		SELECT 1 FROM pg_index pi
		WHERE pi.indrelid = attr.attrelid
		AND pi.indisunique
		AND attr.attnum = ANY(pi.indkey)
		AND (SELECT count(*) FROM unnest(pi.indkey) k) = 1
	) AS is_unique,
	COALESCE((
		SELECT array_agg(pg_attribute.attname)
		FROM pg_index, pg_attribute
		WHERE pg_index.indrelid = t.oid
		AND pg_index.indisprimary
		AND pg_attribute.attrelid = t.oid
		AND pg_attribute.attnum = ANY(pg_index.indkey)
	), '{}') AS primary_key_columns
FROM pg_attribute attr
INNER JOIN pg_class t ON attr.attrelid = t.oid
INNER JOIN pg_namespace ns ON t.relnamespace = ns.oid
LEFT JOIN pg_attrdef def ON def.adrelid = attr.attrelid AND def.adnum = attr.attnum
WHERE t.relkind = 'r'
AND ns.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
AND attr.attnum > 0
AND NOT attr.attisdropped
ORDER BY ns.nspname, t.relname, attr.attnum`

func (i *Introspector) readTables(ctx context.Context) ([]schema.Table, error) {
	rows, err := i.db.QueryContext(ctx, readTablesQuery)
	if err != nil {
		return nil, sferrors.Database{Op: "introspect tables", Err: err}
	}
	defer rows.Close()

	byQualifiedName := map[string]*schema.Table{}
	var order []string

	for rows.Next() {
		var schemaName, tableName, columnName, dataType string
		var nullable, isUnique bool
		var defaultValue sql.NullString
		var ordinalPosition int
		var primaryKeyColumns pq.StringArray

		if err := rows.Scan(&schemaName, &tableName, &columnName, &dataType, &nullable,
			&defaultValue, &ordinalPosition, &isUnique, &primaryKeyColumns); err != nil {
			return nil, sferrors.Database{Op: "scan table row", Err: err}
		}

		qualified := schemaName + "." + tableName
		t, ok := byQualifiedName[qualified]
		if !ok {
			t = &schema.Table{Schema: schemaName, Name: tableName, PrimaryKey: []string(primaryKeyColumns)}
			byQualifiedName[qualified] = t
			order = append(order, qualified)
		}

		col := schema.Column{
			Name:            columnName,
			DataType:        dataType,
			Nullable:        nullable,
			OrdinalPosition: ordinalPosition,
			IsUnique:        isUnique,
			IsPrimaryKey:    containsString(primaryKeyColumns, columnName),
		}
		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.Database{Op: "iterate table rows", Err: err}
	}

	tables := make([]schema.Table, 0, len(order))
	for _, qualified := range order {
		tables = append(tables, *byQualifiedName[qualified])
	}
	return tables, nil
}

// readForeignKeysQuery zips conkey/confkey with unnest(...) WITH ORDINALITY
// rather than two independent ANY(...) joins with array_agg(DISTINCT ...):
// the latter alphabetizes each side and loses the positional pairing
// between source and referenced columns that multi-column FKs require
// (§3: "source_columns.len() == referenced_columns.len()", paired by
// position). Aggregating in ordinality order preserves both the catalog's
// conkey/confkey ordinal order and the source-to-referenced correspondence.
const readForeignKeysQuery = `
SELECT
	fk.conname AS constraint_name,
	src_ns.nspname AS source_schema,
	src_cl.relname AS source_table,
	array_agg(src_attr.attname ORDER BY ord.position) AS source_columns,
	ref_ns.nspname AS referenced_schema,
	ref_cl.relname AS referenced_table,
	array_agg(ref_attr.attname ORDER BY ord.position) AS referenced_columns,
	CASE fk.confupdtype WHEN 'a' THEN 'NO ACTION' WHEN 'r' THEN 'RESTRICT' WHEN 'c' THEN 'CASCADE' WHEN 'n' THEN 'SET NULL' WHEN 'd' THEN 'SET DEFAULT' END AS on_update,
	CASE fk.confdeltype WHEN 'a' THEN 'NO ACTION' WHEN 'r' THEN 'RESTRICT' WHEN 'c' THEN 'CASCADE' WHEN 'n' THEN 'SET NULL' WHEN 'd' THEN 'SET DEFAULT' END AS on_delete
FROM pg_constraint fk
INNER JOIN pg_class src_cl ON fk.conrelid = src_cl.oid
INNER JOIN pg_namespace src_ns ON src_cl.relnamespace = src_ns.oid
INNER JOIN pg_class ref_cl ON fk.confrelid = ref_cl.oid
INNER JOIN pg_namespace ref_ns ON ref_cl.relnamespace = ref_ns.oid
CROSS JOIN LATERAL unnest(fk.conkey, fk.confkey) WITH ORDINALITY AS ord(srcattnum, refattnum, position)
INNER JOIN pg_attribute src_attr ON src_attr.attrelid = fk.conrelid AND src_attr.attnum = ord.srcattnum
INNER JOIN pg_attribute ref_attr ON ref_attr.attrelid = fk.confrelid AND ref_attr.attnum = ord.refattnum
WHERE fk.contype = 'f'
AND src_ns.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
GROUP BY fk.conname, src_ns.nspname, src_cl.relname, ref_ns.nspname, ref_cl.relname, fk.confupdtype, fk.confdeltype`

func (i *Introspector) readForeignKeys(ctx context.Context) ([]schema.ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, readForeignKeysQuery)
	if err != nil {
		return nil, sferrors.Database{Op: "introspect foreign keys", Err: err}
	}
	defer rows.Close()

	var out []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		var sourceColumns, referencedColumns pq.StringArray
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceSchema, &fk.SourceTable, &sourceColumns,
			&fk.ReferencedSchema, &fk.ReferencedTable, &referencedColumns, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, sferrors.Database{Op: "scan foreign key row", Err: err}
		}
		fk.SourceColumns = []string(sourceColumns)
		fk.ReferencedColumns = []string(referencedColumns)
		out = append(out, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.Database{Op: "iterate foreign key rows", Err: err}
	}
	return out, nil
}

const readIndexesQuery = `
SELECT
	ns.nspname AS schema,
	t.relname AS table,
	replace(reverse(split_part(reverse(pi.indexrelid::regclass::text), '.', 1)), '"', '') AS name,
	pi.indisunique AS is_unique,
	pi.indisprimary AS is_primary,
	am.amname AS index_type,
	array_agg(a.attname ORDER BY a.attnum) AS columns
FROM pg_index pi
INNER JOIN pg_class t ON t.oid = pi.indrelid
INNER JOIN pg_namespace ns ON t.relnamespace = ns.oid
INNER JOIN pg_class ic ON ic.oid = pi.indexrelid
INNER JOIN pg_am am ON am.oid = ic.relam
INNER JOIN pg_attribute a ON a.attrelid = pi.indrelid AND a.attnum = ANY(pi.indkey)
WHERE ns.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
GROUP BY ns.nspname, t.relname, pi.indexrelid, pi.indisunique, pi.indisprimary, am.amname`

func (i *Introspector) readIndexes(ctx context.Context) ([]schema.Index, error) {
	rows, err := i.db.QueryContext(ctx, readIndexesQuery)
	if err != nil {
		return nil, sferrors.Database{Op: "introspect indexes", Err: err}
	}
	defer rows.Close()

	var out []schema.Index
	for rows.Next() {
		var idx schema.Index
		var columns pq.StringArray
		if err := rows.Scan(&idx.Schema, &idx.Table, &idx.Name, &idx.IsUnique, &idx.IsPrimary, &idx.IndexType, &columns); err != nil {
			return nil, sferrors.Database{Op: "scan index row", Err: err}
		}
		idx.Columns = []string(columns)
		out = append(out, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.Database{Op: "iterate index rows", Err: err}
	}
	return out, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
