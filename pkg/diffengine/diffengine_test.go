// SPDX-License-Identifier: Apache-2.0

package diffengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/diffengine"
	"github.com/schemaflow/schemaflow/pkg/schema"
)

func strPtr(s string) *string { return &s }

func baseSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Tables: []schema.Table{
			{
				Schema: "public",
				Name:   "users",
				Columns: []schema.Column{
					{Name: "id", DataType: "uuid", OrdinalPosition: 1, IsPrimaryKey: true},
					{Name: "email", DataType: "text", OrdinalPosition: 2},
				},
				PrimaryKey: []string{"id"},
			},
		},
	}
}

func TestDiff_AddedTable(t *testing.T) {
	from := baseSnapshot()
	to := baseSnapshot()
	to.Tables = append(to.Tables, schema.Table{Schema: "public", Name: "orders"})

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.Added, d.Items[0].ChangeType)
	assert.Equal(t, diffengine.KindTable, d.Items[0].ObjectKind)
	assert.Equal(t, diffengine.RiskSafe, d.Items[0].Risk)
	assert.False(t, d.HasBreakingChanges)
}

func TestDiff_RemovedTableIsCriticalAndBreaking(t *testing.T) {
	from := baseSnapshot()
	to := &schema.Snapshot{}

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.RiskCritical, d.Items[0].Risk)
	assert.True(t, d.Items[0].IsBreaking)
	assert.True(t, d.HasBreakingChanges)
	assert.Equal(t, diffengine.RiskCritical, d.OverallRisk)
}

func TestDiff_AddedNotNullColumnWithoutDefaultIsBreaking(t *testing.T) {
	from := baseSnapshot()
	to := baseSnapshot()
	to.Tables[0].Columns = append(to.Tables[0].Columns, schema.Column{
		Name: "tenant_id", DataType: "uuid", OrdinalPosition: 3, Nullable: false,
	})

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.RiskHigh, d.Items[0].Risk)
	assert.True(t, d.Items[0].IsBreaking)
}

func TestDiff_AddedNotNullColumnWithDefaultIsSafe(t *testing.T) {
	from := baseSnapshot()
	to := baseSnapshot()
	to.Tables[0].Columns = append(to.Tables[0].Columns, schema.Column{
		Name: "tenant_id", DataType: "uuid", OrdinalPosition: 3, Nullable: false, DefaultValue: strPtr("gen_random_uuid()"),
	})

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.RiskSafe, d.Items[0].Risk)
	assert.False(t, d.Items[0].IsBreaking)
}

func TestDiff_WideningTypeChangeIsLowRiskNonBreaking(t *testing.T) {
	from := baseSnapshot()
	to := baseSnapshot()
	to.Tables[0].Columns[0] = schema.Column{Name: "id", DataType: "uuid", OrdinalPosition: 1, IsPrimaryKey: true}
	from.Tables[0].Columns[1].DataType = "smallint"
	to.Tables[0].Columns[1] = schema.Column{Name: "email", DataType: "integer", OrdinalPosition: 2}

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.RiskLow, d.Items[0].Risk)
	assert.False(t, d.Items[0].IsBreaking)
}

func TestDiff_NarrowingTypeChangeIsHighRiskBreaking(t *testing.T) {
	from := baseSnapshot()
	to := baseSnapshot()
	to.Tables[0].Columns[1] = schema.Column{Name: "email", DataType: "smallint", OrdinalPosition: 2}
	from.Tables[0].Columns[1].DataType = "integer"

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.RiskHigh, d.Items[0].Risk)
	assert.True(t, d.Items[0].IsBreaking)
}

func TestDiff_PrimaryKeyColumnRemovedIsCritical(t *testing.T) {
	from := baseSnapshot()
	to := baseSnapshot()
	to.Tables[0].Columns[0].IsPrimaryKey = false

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.RiskCritical, d.Items[0].Risk)
	assert.True(t, d.Items[0].IsBreaking)
}

func TestDiff_UniqueIndexRemovalIsHighRisk(t *testing.T) {
	from := baseSnapshot()
	from.Indexes = []schema.Index{{Name: "users_email_idx", Schema: "public", Table: "users", Columns: []string{"email"}, IsUnique: true}}
	to := baseSnapshot()

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.KindIndex, d.Items[0].ObjectKind)
	assert.Equal(t, diffengine.RiskHigh, d.Items[0].Risk)
}

func TestDiff_NonUniqueIndexRemovalIsMediumNonBreaking(t *testing.T) {
	from := baseSnapshot()
	from.Indexes = []schema.Index{{Name: "users_email_idx", Schema: "public", Table: "users", Columns: []string{"email"}, IsUnique: false}}
	to := baseSnapshot()

	d := diffengine.Diff(from, to)

	require.Len(t, d.Items, 1)
	assert.Equal(t, diffengine.RiskMedium, d.Items[0].Risk)
	assert.False(t, d.Items[0].IsBreaking)
}

func TestDiff_NoChangesProducesSafeSummary(t *testing.T) {
	snap := baseSnapshot()
	d := diffengine.Diff(snap, snap)

	assert.Empty(t, d.Items)
	assert.Equal(t, diffengine.RiskSafe, d.OverallRisk)
	assert.False(t, d.HasBreakingChanges)
}

func TestIsWidening(t *testing.T) {
	assert.True(t, diffengine.IsWidening("smallint", "integer"))
	assert.True(t, diffengine.IsWidening("integer", "bigint"))
	assert.True(t, diffengine.IsWidening("real", "double precision"))
	assert.True(t, diffengine.IsWidening("char", "text"))
	assert.True(t, diffengine.IsWidening("text", "text"))
	assert.False(t, diffengine.IsWidening("bigint", "integer"))
	assert.False(t, diffengine.IsWidening("timestamp", "date"))
}
