// SPDX-License-Identifier: Apache-2.0

// Package semanticmap enriches a schema.Snapshot with the statistics and
// extra dependency-graph nodes the Glossary calls "the semantic map": table
// size/row-count/hot-spot activity, plus views, triggers and functions that
// sit outside the checksummed structural model (§4.1, §4.9). It is optional
// input: the Risk Analyser's lock-estimate formula and size/hot-spot factors
// consume its stats when present; the Blast-Radius Analyser does not read
// it. Every core computation still works from a bare Snapshot alone.
package semanticmap

import (
	"context"

	"github.com/schemaflow/schemaflow/pkg/db"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// TableStats carries the operational numbers the Risk Analyser's lock
// estimate formula needs per affected table (§4.9): size_bytes and
// row_count feed size_factor, IsHotSpot feeds the hot-spot penalty.
type TableStats struct {
	RowCount  int64 `json:"rowCount"`
	SizeBytes int64 `json:"sizeBytes"`
	IsHotSpot bool  `json:"isHotSpot"`
}

// DependencyNode is a non-structural dependency surfaced alongside the FK
// graph: a view, trigger or function that reads or writes a table. These
// never enter the checksum and never participate in the Diff Engine, and
// the Blast-Radius Analyser does not read them; they are collected on the
// Map alongside the stats.
type DependencyNode struct {
	Kind        string `json:"kind"` // "view" | "trigger" | "function"
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	OnTable     string `json:"onTable"`
	Description string `json:"description,omitempty"`
}

// Map is the semantic enrichment layer over one Snapshot.
type Map struct {
	Stats        map[string]TableStats // keyed by schema.table
	Dependencies []DependencyNode
}

// StatsFor returns the stats for a qualified table, or a zero-value (safe
// defaults: no rows, no size, not a hot spot) if the table was never
// profiled.
func (m *Map) StatsFor(qualifiedTable string) TableStats {
	if m == nil || m.Stats == nil {
		return TableStats{}
	}
	return m.Stats[qualifiedTable]
}

// Build reads table sizes, row-count estimates and hot-spot activity from
// the live catalog's statistics views (pg_class.reltuples, pg_total_relation_size,
// pg_stat_user_tables), plus every view, trigger and function in the
// non-catalog schemas; snap does not narrow either read. It never feeds into
// the checksum and is never required for the core diff/rules/risk
// computations to run.
func Build(ctx context.Context, conn db.DB, snap *schema.Snapshot) (*Map, error) {
	stats, err := readTableStats(ctx, conn)
	if err != nil {
		return nil, err
	}

	deps, err := readDependencyNodes(ctx, conn)
	if err != nil {
		return nil, err
	}

	return &Map{Stats: stats, Dependencies: deps}, nil
}

// hotSpotWriteThreshold is the tuples-written-per-analysis-window above
// which a table is flagged as a hot spot for the risk score's −20 penalty
// (§4.9). Chosen generously: this is a governance signal, not an alerting
// threshold.
const hotSpotWriteThreshold = 10000

const readTableStatsQuery = `
SELECT
	ns.nspname AS schema,
	c.relname AS table,
	GREATEST(c.reltuples, 0)::bigint AS row_count,
	pg_total_relation_size(c.oid) AS size_bytes,
	COALESCE(st.n_tup_ins + st.n_tup_upd + st.n_tup_del, 0) AS writes
FROM pg_class c
INNER JOIN pg_namespace ns ON c.relnamespace = ns.oid
LEFT JOIN pg_stat_user_tables st ON st.relid = c.oid
WHERE c.relkind = 'r'
AND ns.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')`

func readTableStats(ctx context.Context, conn db.DB) (map[string]TableStats, error) {
	rows, err := conn.QueryContext(ctx, readTableStatsQuery)
	if err != nil {
		return nil, sferrors.Database{Op: "read table stats", Err: err}
	}
	defer rows.Close()

	out := map[string]TableStats{}
	for rows.Next() {
		var schemaName, tableName string
		var rowCount, sizeBytes, writes int64
		if err := rows.Scan(&schemaName, &tableName, &rowCount, &sizeBytes, &writes); err != nil {
			return nil, sferrors.Database{Op: "scan table stats row", Err: err}
		}
		out[schemaName+"."+tableName] = TableStats{
			RowCount:  rowCount,
			SizeBytes: sizeBytes,
			IsHotSpot: writes > hotSpotWriteThreshold,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.Database{Op: "iterate table stats rows", Err: err}
	}
	return out, nil
}

const readViewsQuery = `
SELECT ns.nspname, v.relname
FROM pg_class v
INNER JOIN pg_namespace ns ON v.relnamespace = ns.oid
WHERE v.relkind IN ('v', 'm')
AND ns.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')`

const readTriggersQuery = `
SELECT ns.nspname, t.tgname, c.relname
FROM pg_trigger t
INNER JOIN pg_class c ON t.tgrelid = c.oid
INNER JOIN pg_namespace ns ON c.relnamespace = ns.oid
WHERE NOT t.tgisinternal
AND ns.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')`

const readFunctionsQuery = `
SELECT ns.nspname, p.proname
FROM pg_proc p
INNER JOIN pg_namespace ns ON p.pronamespace = ns.oid
WHERE ns.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')`

func readDependencyNodes(ctx context.Context, conn db.DB) ([]DependencyNode, error) {
	var out []DependencyNode

	viewRows, err := conn.QueryContext(ctx, readViewsQuery)
	if err != nil {
		return nil, sferrors.Database{Op: "read views", Err: err}
	}
	defer viewRows.Close()
	for viewRows.Next() {
		var schemaName, name string
		if err := viewRows.Scan(&schemaName, &name); err != nil {
			return nil, sferrors.Database{Op: "scan view row", Err: err}
		}
		out = append(out, DependencyNode{Kind: "view", Schema: schemaName, Name: name})
	}
	if err := viewRows.Err(); err != nil {
		return nil, sferrors.Database{Op: "iterate view rows", Err: err}
	}

	triggerRows, err := conn.QueryContext(ctx, readTriggersQuery)
	if err != nil {
		return nil, sferrors.Database{Op: "read triggers", Err: err}
	}
	defer triggerRows.Close()
	for triggerRows.Next() {
		var schemaName, name, onTable string
		if err := triggerRows.Scan(&schemaName, &name, &onTable); err != nil {
			return nil, sferrors.Database{Op: "scan trigger row", Err: err}
		}
		out = append(out, DependencyNode{Kind: "trigger", Schema: schemaName, Name: name, OnTable: schemaName + "." + onTable})
	}
	if err := triggerRows.Err(); err != nil {
		return nil, sferrors.Database{Op: "iterate trigger rows", Err: err}
	}

	funcRows, err := conn.QueryContext(ctx, readFunctionsQuery)
	if err != nil {
		return nil, sferrors.Database{Op: "read functions", Err: err}
	}
	defer funcRows.Close()
	for funcRows.Next() {
		var schemaName, name string
		if err := funcRows.Scan(&schemaName, &name); err != nil {
			return nil, sferrors.Database{Op: "scan function row", Err: err}
		}
		out = append(out, DependencyNode{Kind: "function", Schema: schemaName, Name: name})
	}
	if err := funcRows.Err(); err != nil {
		return nil, sferrors.Database{Op: "iterate function rows", Err: err}
	}

	return out, nil
}
