// SPDX-License-Identifier: Apache-2.0

package changewire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/schemachange"
)

func TestDecodeJSON_AddColumn(t *testing.T) {
	raw := []byte(`{
		"kind": "AddColumn",
		"schema": "public",
		"table": "users",
		"columns": [{"name": "email", "dataType": "text", "nullable": true}]
	}`)

	c, err := DecodeJSON(raw)
	require.NoError(t, err)

	add, ok := c.(schemachange.AddColumn)
	require.True(t, ok)
	assert.Equal(t, "public", add.Schema)
	assert.Equal(t, "users", add.Table)
	assert.Equal(t, "email", add.Column.Name)
	assert.Nil(t, add.Column.DefaultValue)
}

func TestDecodeJSON_AlterColumnTriState(t *testing.T) {
	cases := []struct {
		name          string
		raw           string
		wantDrop      bool
		wantSetVal    *string
	}{
		{
			name:     "absent default leaves both unset",
			raw:      `{"kind":"AlterColumn","schema":"public","table":"users","column":"email"}`,
			wantDrop: false,
		},
		{
			name:     "explicit null drops the default",
			raw:      `{"kind":"AlterColumn","schema":"public","table":"users","column":"email","setDefault":null}`,
			wantDrop: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := DecodeJSON([]byte(tc.raw))
			require.NoError(t, err)
			ac, ok := c.(schemachange.AlterColumn)
			require.True(t, ok)
			assert.Equal(t, tc.wantDrop, ac.DropDefault)
		})
	}
}

func TestDecodeJSON_SetDefaultExplicitNullVsAbsent(t *testing.T) {
	// "setDefault" present but null -> DropDefault true.
	withNull := []byte(`{"kind":"AlterColumn","schema":"public","table":"users","column":"email","setDefault":null}`)
	c, err := DecodeJSON(withNull)
	require.NoError(t, err)
	ac := c.(schemachange.AlterColumn)
	assert.True(t, ac.DropDefault)
	assert.Nil(t, ac.SetDefault)

	// "setDefault" omitted entirely -> neither set.
	omitted := []byte(`{"kind":"AlterColumn","schema":"public","table":"users","column":"email"}`)
	c2, err := DecodeJSON(omitted)
	require.NoError(t, err)
	ac2 := c2.(schemachange.AlterColumn)
	assert.False(t, ac2.DropDefault)
	assert.Nil(t, ac2.SetDefault)

	// "setDefault" with a value -> SetDefault populated.
	withValue := []byte(`{"kind":"AlterColumn","schema":"public","table":"users","column":"email","setDefault":"'unknown'"}`)
	c3, err := DecodeJSON(withValue)
	require.NoError(t, err)
	ac3 := c3.(schemachange.AlterColumn)
	require.NotNil(t, ac3.SetDefault)
	assert.Equal(t, "'unknown'", *ac3.SetDefault)
	assert.False(t, ac3.DropDefault)
}

func TestDecodeJSON_RejectsUnknownKind(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"kind":"NotARealKind","schema":"public","table":"users"}`))
	assert.Error(t, err)
}

func TestDecodeJSON_RejectsMissingRequiredFields(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"kind":"AddColumn"}`))
	assert.Error(t, err)
}

func TestDecodeYAML_CreateTablePreservesColumnOrder(t *testing.T) {
	raw := []byte(`
kind: CreateTable
schema: public
table: orders
columns:
  - name: id
    dataType: integer
    primaryKey: true
  - name: user_id
    dataType: integer
  - name: total_cents
    dataType: integer
`)
	c, err := DecodeYAML(raw)
	require.NoError(t, err)
	ct, ok := c.(schemachange.CreateTable)
	require.True(t, ok)
	require.Len(t, ct.Columns, 3)
	assert.Equal(t, []string{"id", "user_id", "total_cents"}, []string{
		ct.Columns[0].Name, ct.Columns[1].Name, ct.Columns[2].Name,
	})
}
