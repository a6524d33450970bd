// SPDX-License-Identifier: Apache-2.0

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schemaflow/schemaflow/pkg/schema"
)

func usersTable() schema.Table {
	return schema.Table{
		Schema: "public",
		Name:   "users",
		Columns: []schema.Column{
			{Name: "id", DataType: "uuid", OrdinalPosition: 1, IsPrimaryKey: true},
			{Name: "email", DataType: "text", OrdinalPosition: 2},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestComputeChecksum_StableUnderInsertionOrder(t *testing.T) {
	orders := schema.Table{
		Schema: "public",
		Name:   "orders",
		Columns: []schema.Column{
			{Name: "id", DataType: "uuid", OrdinalPosition: 1, IsPrimaryKey: true},
		},
	}
	users := usersTable()

	a := schema.ComputeChecksum([]schema.Table{users, orders}, nil, nil)
	b := schema.ComputeChecksum([]schema.Table{orders, users}, nil, nil)

	assert.Equal(t, a, b)
}

func TestComputeChecksum_StableUnderColumnOrder(t *testing.T) {
	users := usersTable()
	shuffled := users
	shuffled.Columns = []schema.Column{users.Columns[1], users.Columns[0]}

	a := schema.ComputeChecksum([]schema.Table{users}, nil, nil)
	b := schema.ComputeChecksum([]schema.Table{shuffled}, nil, nil)

	assert.Equal(t, a, b)
}

func TestComputeChecksum_IgnoresPresentationAndGovernance(t *testing.T) {
	users := usersTable()
	decorated := users
	decorated.Governance = schema.Governance{Owner: "platform-team", Criticality: "high"}
	decorated.Presentation = &schema.Presentation{X: 120, Y: 40, Color: "#ff0000"}

	a := schema.ComputeChecksum([]schema.Table{users}, nil, nil)
	b := schema.ComputeChecksum([]schema.Table{decorated}, nil, nil)

	assert.Equal(t, a, b)
}

func TestComputeChecksum_ChangesWithStructure(t *testing.T) {
	users := usersTable()
	renamed := users
	renamed.Columns = append([]schema.Column(nil), users.Columns...)
	renamed.Columns[1].Name = "email_address"

	a := schema.ComputeChecksum([]schema.Table{users}, nil, nil)
	b := schema.ComputeChecksum([]schema.Table{renamed}, nil, nil)

	assert.NotEqual(t, a, b)
}

func TestComputeChecksum_IncludesForeignKeysAndIndexes(t *testing.T) {
	users := usersTable()
	fk := schema.ForeignKey{
		ConstraintName:   "orders_user_id_fkey",
		SourceSchema:     "public",
		SourceTable:      "orders",
		SourceColumns:    []string{"user_id"},
		ReferencedSchema: "public",
		ReferencedTable:  "users",
		ReferencedColumns: []string{"id"},
	}
	idx := schema.Index{Name: "users_email_idx", Schema: "public", Table: "users", Columns: []string{"email"}, IsUnique: true}

	base := schema.ComputeChecksum([]schema.Table{users}, nil, nil)
	withFK := schema.ComputeChecksum([]schema.Table{users}, []schema.ForeignKey{fk}, nil)
	withFKAndIdx := schema.ComputeChecksum([]schema.Table{users}, []schema.ForeignKey{fk}, []schema.Index{idx})

	assert.NotEqual(t, base, withFK)
	assert.NotEqual(t, withFK, withFKAndIdx)
}

func TestPiiClassification_RequiresSecurityApproval(t *testing.T) {
	assert.False(t, schema.PiiNone.RequiresSecurityApproval())
	assert.False(t, schema.PiiInternal.RequiresSecurityApproval())
	assert.True(t, schema.PiiConfidential.RequiresSecurityApproval())
	assert.True(t, schema.PiiRestricted.RequiresSecurityApproval())
	assert.True(t, schema.PiiSecret.RequiresSecurityApproval())
}

func TestSnapshot_GetTableAndIndexesForTable(t *testing.T) {
	s := &schema.Snapshot{
		Tables:  []schema.Table{usersTable()},
		Indexes: []schema.Index{{Name: "users_email_idx", Schema: "public", Table: "users", Columns: []string{"email"}}},
	}

	assert.NotNil(t, s.GetTable("public", "users"))
	assert.Nil(t, s.GetTable("public", "missing"))
	assert.Len(t, s.IndexesForTable("public", "users"), 1)
	assert.Empty(t, s.IndexesForTable("public", "orders"))
}
