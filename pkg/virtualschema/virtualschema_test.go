// SPDX-License-Identifier: Apache-2.0

package virtualschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/virtualschema"
)

func usersSnapshot() schema.Snapshot {
	return schema.Snapshot{
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

func TestApply_AddColumnAppendsToTable(t *testing.T) {
	base := usersSnapshot()
	col := schemachange.AddColumn{Column: schemachange.ColumnDef{Name: "name", DataType: "text", Nullable: true}}
	col.Schema, col.Table = "public", "users"

	out, err := virtualschema.Apply(base, []schemachange.Change{col})
	require.NoError(t, err)

	tbl := out.GetTable("public", "users")
	require.NotNil(t, tbl)
	require.Len(t, tbl.Columns, 3)
	assert.Equal(t, "name", tbl.Columns[2].Name)
	assert.NotEqual(t, base.Checksum, out.Checksum)
}

func TestApply_DropTableRemovesIt(t *testing.T) {
	base := usersSnapshot()
	drop := schemachange.DropTable{}
	drop.Schema, drop.Table = "public", "users"

	out, err := virtualschema.Apply(base, []schemachange.Change{drop})
	require.NoError(t, err)
	assert.Nil(t, out.GetTable("public", "users"))
}

func TestApply_CreateTableThenAddForeignKey(t *testing.T) {
	base := usersSnapshot()

	createOrders := schemachange.CreateTable{
		Columns: []schemachange.ColumnDef{
			{Name: "id", DataType: "uuid", PrimaryKey: true},
			{Name: "user_id", DataType: "uuid"},
		},
	}
	createOrders.Schema, createOrders.Table = "public", "orders"

	addFK := schemachange.AddForeignKey{
		ConstraintName:    "orders_user_id_fkey",
		Columns:           []string{"user_id"},
		ReferencedSchema:  "public",
		ReferencedTable:   "users",
		ReferencedColumns: []string{"id"},
		OnDelete:          "CASCADE",
	}
	addFK.Schema, addFK.Table = "public", "orders"

	out, err := virtualschema.Apply(base, []schemachange.Change{createOrders, addFK})
	require.NoError(t, err)

	require.NotNil(t, out.GetTable("public", "orders"))
	require.Len(t, out.ForeignKeys, 1)
	assert.Equal(t, "orders_user_id_fkey", out.ForeignKeys[0].ConstraintName)
	assert.Equal(t, "public.users", out.ForeignKeys[0].ReferencedQualifiedName())
}

func TestApply_AlterColumnTriStateDefault(t *testing.T) {
	base := usersSnapshot()
	val := "'unknown'"
	alter := schemachange.AlterColumn{Column: "email", SetDefault: &val}
	alter.Schema, alter.Table = "public", "users"

	out, err := virtualschema.Apply(base, []schemachange.Change{alter})
	require.NoError(t, err)

	col := out.GetTable("public", "users").GetColumn("email")
	require.NotNil(t, col)
	require.NotNil(t, col.DefaultValue)
	assert.Equal(t, val, *col.DefaultValue)
}

func TestApply_DropColumnOnMissingTableFails(t *testing.T) {
	base := usersSnapshot()
	drop := schemachange.DropColumn{Column: "email"}
	drop.Schema, drop.Table = "public", "does_not_exist"

	_, err := virtualschema.Apply(base, []schemachange.Change{drop})
	assert.Error(t, err)
}

func TestApply_AddTagIsIdempotent(t *testing.T) {
	base := usersSnapshot()
	tag := schemachange.AddTag{Tag: "pii-reviewed"}
	tag.Schema, tag.Table = "public", "users"

	out, err := virtualschema.Apply(base, []schemachange.Change{tag, tag})
	require.NoError(t, err)

	tbl := out.GetTable("public", "users")
	assert.Equal(t, []string{"pii-reviewed"}, tbl.Governance.Tags)
}

func TestApply_DoesNotMutateBaseSnapshot(t *testing.T) {
	base := usersSnapshot()
	col := schemachange.AddColumn{Column: schemachange.ColumnDef{Name: "name", DataType: "text"}}
	col.Schema, col.Table = "public", "users"

	_, err := virtualschema.Apply(base, []schemachange.Change{col})
	require.NoError(t, err)

	assert.Len(t, base.Tables[0].Columns, 2, "Apply must not mutate the caller's snapshot")
}
