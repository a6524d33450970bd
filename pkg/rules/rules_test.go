// SPDX-License-Identifier: Apache-2.0

package rules_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/diffengine"
	"github.com/schemaflow/schemaflow/pkg/rules"
	"github.com/schemaflow/schemaflow/pkg/schema"
)

func jsonOf(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestEvaluate_R001_DropColumnWithDependencies(t *testing.T) {
	snap := &schema.Snapshot{
		ForeignKeys: []schema.ForeignKey{
			{ConstraintName: "orders_user_id_fkey", SourceSchema: "public", SourceTable: "orders", SourceColumns: []string{"user_id"}},
		},
	}
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{ChangeType: diffengine.Removed, ObjectKind: diffengine.KindColumn, AffectedObject: "public.orders.user_id"},
	}}

	result := rules.Evaluate(diff, snap, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R001", result.Violations[0].RuleID)
	assert.True(t, result.HasBlockers)
	assert.False(t, result.CanProceed)
}

func TestEvaluate_R002_DropTableWithDependencies(t *testing.T) {
	snap := &schema.Snapshot{
		ForeignKeys: []schema.ForeignKey{
			{ConstraintName: "orders_user_id_fkey", SourceSchema: "public", SourceTable: "orders", ReferencedSchema: "public", ReferencedTable: "users"},
		},
	}
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{ChangeType: diffengine.Removed, ObjectKind: diffengine.KindTable, AffectedObject: "public.users"},
	}}

	result := rules.Evaluate(diff, snap, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R002", result.Violations[0].RuleID)
}

func TestEvaluate_R003_UniqueIndexRemoval(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{ChangeType: diffengine.Removed, ObjectKind: diffengine.KindIndex, AffectedObject: "public.users.users_email_idx", Risk: diffengine.RiskHigh},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R003", result.Violations[0].RuleID)
	assert.Equal(t, rules.SeverityBlock, result.Violations[0].Severity)
}

func TestEvaluate_R004_IndexRemovalPerformanceWarningForNonUnique(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{ChangeType: diffengine.Removed, ObjectKind: diffengine.KindIndex, AffectedObject: "public.users.users_name_idx", Risk: diffengine.RiskMedium},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R004", result.Violations[0].RuleID)
	assert.True(t, result.HasWarnings)
	assert.False(t, result.HasBlockers)
}

func TestEvaluate_R005_NarrowingTypeConversion(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{
			ChangeType:     diffengine.Modified,
			ObjectKind:     diffengine.KindColumn,
			AffectedObject: "public.events.created_at",
			Before:         jsonOf(t, schema.Column{Name: "created_at", DataType: "timestamp"}),
			After:          jsonOf(t, schema.Column{Name: "created_at", DataType: "date"}),
		},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R005", result.Violations[0].RuleID)
	assert.True(t, result.HasErrors)
	assert.True(t, result.CanProceed)
	assert.True(t, result.RequiresApproval)
}

func TestEvaluate_R006_NotNullWithoutDefault(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{
			ChangeType:     diffengine.Modified,
			ObjectKind:     diffengine.KindColumn,
			AffectedObject: "public.users.email",
			Before:         jsonOf(t, schema.Column{Name: "email", Nullable: true}),
			After:          jsonOf(t, schema.Column{Name: "email", Nullable: false}),
		},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R006", result.Violations[0].RuleID)
}

func TestEvaluate_R007_RenameWithoutAlias(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{ChangeType: diffengine.Renamed, ObjectKind: diffengine.KindColumn, AffectedObject: "public.users.email_address"},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R007", result.Violations[0].RuleID)
	assert.Equal(t, rules.SeverityWarning, result.Violations[0].Severity)
}

func TestEvaluate_R008_PrimaryKeyRemoval(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{
			ChangeType:     diffengine.Removed,
			ObjectKind:     diffengine.KindColumn,
			AffectedObject: "public.users.id",
			Before:         jsonOf(t, schema.Column{Name: "id", IsPrimaryKey: true}),
		},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R008", result.Violations[0].RuleID)
}

func TestEvaluate_R009_AddCascadeDelete(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{
			ChangeType:     diffengine.Added,
			ObjectKind:     diffengine.KindForeignKey,
			AffectedObject: "public.orders.orders_user_id_fkey",
			After:          jsonOf(t, schema.ForeignKey{ConstraintName: "orders_user_id_fkey", OnDelete: "CASCADE"}),
		},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "R009", result.Violations[0].RuleID)
	assert.Equal(t, rules.SeverityWarning, result.Violations[0].Severity)
}

func TestEvaluate_NoViolationsCanProceedWithoutApproval(t *testing.T) {
	diff := &diffengine.SchemaDiff{Items: []diffengine.DiffItem{
		{ChangeType: diffengine.Added, ObjectKind: diffengine.KindTable, AffectedObject: "public.widgets"},
	}}

	result := rules.Evaluate(diff, &schema.Snapshot{}, rules.DefaultRules())

	assert.Empty(t, result.Violations)
	assert.True(t, result.CanProceed)
	assert.False(t, result.RequiresApproval)
}
