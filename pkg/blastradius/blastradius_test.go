// SPDX-License-Identifier: Apache-2.0

package blastradius_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/blastradius"
	"github.com/schemaflow/schemaflow/pkg/schema"
)

// users <- orders <- order_items, a two-hop referencing chain.
func chainSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Tables: []schema.Table{
			{Schema: "public", Name: "users"},
			{Schema: "public", Name: "orders"},
			{Schema: "public", Name: "order_items"},
		},
		ForeignKeys: []schema.ForeignKey{
			{
				ConstraintName:    "orders_user_id_fkey",
				SourceSchema:      "public",
				SourceTable:       "orders",
				SourceColumns:     []string{"user_id"},
				ReferencedSchema:  "public",
				ReferencedTable:   "users",
				ReferencedColumns: []string{"id"},
			},
			{
				ConstraintName:    "order_items_order_id_fkey",
				SourceSchema:      "public",
				SourceTable:       "order_items",
				SourceColumns:     []string{"order_id"},
				ReferencedSchema:  "public",
				ReferencedTable:   "orders",
				ReferencedColumns: []string{"id"},
			},
		},
	}
}

func TestAnalyzeTable_NoDependents(t *testing.T) {
	snap := &schema.Snapshot{Tables: []schema.Table{{Schema: "public", Name: "lonely"}}}
	result := blastradius.AnalyzeTable(snap, "public", "lonely")
	assert.Equal(t, blastradius.LevelNone, result.Level)
	assert.Empty(t, result.Impacts)
}

func TestAnalyzeTable_LeafTableHasNoImpact(t *testing.T) {
	snap := chainSnapshot()
	result := blastradius.AnalyzeTable(snap, "public", "order_items")
	assert.Equal(t, blastradius.LevelNone, result.Level)
}

func TestAnalyzeTable_TransitiveDependentsAreSpreading(t *testing.T) {
	snap := chainSnapshot()
	// An unrelated fourth table keeps the impact ratio at exactly half (2 of
	// 4), below the Pandemic threshold.
	snap.Tables = append(snap.Tables, schema.Table{Schema: "public", Name: "audit_log"})
	result := blastradius.AnalyzeTable(snap, "public", "users")

	require.Len(t, result.Impacts, 2)
	assert.Equal(t, blastradius.LevelSpreading, result.Level)

	var distances []int
	for _, imp := range result.Impacts {
		distances = append(distances, imp.Distance)
	}
	assert.Contains(t, distances, 1)
	assert.Contains(t, distances, 2)
}

func TestAnalyzeTable_OnlyDirectDependentsIsContained(t *testing.T) {
	snap := chainSnapshot()
	result := blastradius.AnalyzeTable(snap, "public", "orders")

	require.Len(t, result.Impacts, 1)
	assert.Equal(t, blastradius.LevelContained, result.Level)
	assert.True(t, result.Impacts[0].IsDirect)
}

func TestAnalyzeTable_PandemicWhenMajorityOfTablesImpacted(t *testing.T) {
	snap := &schema.Snapshot{
		Tables: []schema.Table{
			{Schema: "public", Name: "root"},
			{Schema: "public", Name: "a"},
			{Schema: "public", Name: "b"},
		},
		ForeignKeys: []schema.ForeignKey{
			{ConstraintName: "a_fk", SourceSchema: "public", SourceTable: "a", ReferencedSchema: "public", ReferencedTable: "root"},
			{ConstraintName: "b_fk", SourceSchema: "public", SourceTable: "b", ReferencedSchema: "public", ReferencedTable: "root"},
		},
	}

	result := blastradius.AnalyzeTable(snap, "public", "root")
	assert.Equal(t, blastradius.LevelPandemic, result.Level)
}

func TestAnalyzeColumn_OnlyConsidersFKsTouchingTheColumn(t *testing.T) {
	snap := &schema.Snapshot{
		Tables: []schema.Table{
			{Schema: "public", Name: "users", Columns: []schema.Column{{Name: "id"}, {Name: "email"}}},
			{Schema: "public", Name: "orders"},
		},
		ForeignKeys: []schema.ForeignKey{
			{
				ConstraintName:    "orders_user_id_fkey",
				SourceSchema:      "public",
				SourceTable:       "orders",
				SourceColumns:     []string{"user_id"},
				ReferencedSchema:  "public",
				ReferencedTable:   "users",
				ReferencedColumns: []string{"id"},
			},
		},
	}

	emailResult := blastradius.AnalyzeColumn(snap, "public", "users", "email")
	assert.Empty(t, emailResult.Impacts)

	idResult := blastradius.AnalyzeColumn(snap, "public", "users", "id")
	require.Len(t, idResult.Impacts, 1)
	assert.Equal(t, blastradius.RelationshipForeignKey, idResult.Impacts[0].Relationship)
}

func TestAnalyzeColumn_IncludesCoveringIndexesAtDistanceOne(t *testing.T) {
	snap := &schema.Snapshot{
		Tables:  []schema.Table{{Schema: "public", Name: "users", Columns: []schema.Column{{Name: "email"}}}},
		Indexes: []schema.Index{{Name: "users_email_idx", Schema: "public", Table: "users", Columns: []string{"email"}}},
	}

	result := blastradius.AnalyzeColumn(snap, "public", "users", "email")
	require.Len(t, result.Impacts, 1)
	assert.Equal(t, blastradius.RelationshipIndex, result.Impacts[0].Relationship)
	assert.Equal(t, 1, result.Impacts[0].Distance)
}

func TestAnalyzeTable_CyclesTerminate(t *testing.T) {
	snap := &schema.Snapshot{
		Tables: []schema.Table{{Schema: "public", Name: "a"}, {Schema: "public", Name: "b"}},
		ForeignKeys: []schema.ForeignKey{
			{ConstraintName: "a_to_b", SourceSchema: "public", SourceTable: "a", ReferencedSchema: "public", ReferencedTable: "b"},
			{ConstraintName: "b_to_a", SourceSchema: "public", SourceTable: "b", ReferencedSchema: "public", ReferencedTable: "a"},
		},
	}

	result := blastradius.AnalyzeTable(snap, "public", "a")
	assert.Len(t, result.Impacts, 1)
}
