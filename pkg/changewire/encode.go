// SPDX-License-Identifier: Apache-2.0

package changewire

import (
	"encoding/json"
	"fmt"

	"github.com/oapi-codegen/nullable"

	"github.com/schemaflow/schemaflow/pkg/schemachange"
)

// Encode renders a domain schemachange.Change back to the same wire shape
// DecodeJSON accepts, round-tripping through the Kind-tagged envelope. Used
// by the CLI's local proposal store to persist a Proposal's Changes across
// invocations without losing which concrete variant each one is.
func Encode(c schemachange.Change) ([]byte, error) {
	w := wireChange{Kind: string(c.Kind())}

	switch v := c.(type) {
	case schemachange.CreateTable:
		w.Schema, w.Table = v.Schema, v.Table
		w.Columns = encodeColumns(v.Columns)
	case schemachange.DropTable:
		w.Schema, w.Table, w.Cascade = v.Schema, v.Table, v.Cascade
	case schemachange.RenameTable:
		w.Schema, w.Table, w.NewName = v.Schema, v.Table, v.NewName
	case schemachange.AddColumn:
		w.Schema, w.Table = v.Schema, v.Table
		w.Columns = encodeColumns([]schemachange.ColumnDef{v.Column})
	case schemachange.DropColumn:
		w.Schema, w.Table, w.Column, w.Cascade = v.Schema, v.Table, v.Column, v.Cascade
	case schemachange.AlterColumn:
		w.Schema, w.Table, w.Column = v.Schema, v.Table, v.Column
		w.NewType, w.SetNullable = v.NewType, v.SetNullable
		switch {
		case v.DropDefault:
			w.SetDefault = nullable.NewNullNullable[string]()
		case v.SetDefault != nil:
			w.SetDefault = nullable.NewNullableWithValue(*v.SetDefault)
		}
	case schemachange.RenameColumn:
		w.Schema, w.Table, w.Column, w.NewName = v.Schema, v.Table, v.Column, v.NewName
	case schemachange.AddForeignKey:
		w.Schema, w.Table = v.Schema, v.Table
		w.ConstraintName = v.ConstraintName
		w.Columns = encodeColumnNames(v.Columns)
		w.ReferencedSchema, w.ReferencedTable = v.ReferencedSchema, v.ReferencedTable
		w.ReferencedColumns = v.ReferencedColumns
		w.OnDelete, w.OnUpdate = v.OnDelete, v.OnUpdate
	case schemachange.DropForeignKey:
		w.Schema, w.Table, w.ConstraintName = v.Schema, v.Table, v.ConstraintName
	case schemachange.AddPrimaryKey:
		w.Schema, w.Table = v.Schema, v.Table
		w.Columns = encodeColumnNames(v.Columns)
	case schemachange.DropPrimaryKey:
		w.Schema, w.Table = v.Schema, v.Table
	case schemachange.AddUniqueConstraint:
		w.Schema, w.Table, w.ConstraintName = v.Schema, v.Table, v.ConstraintName
		w.Columns = encodeColumnNames(v.Columns)
	case schemachange.DropUniqueConstraint:
		w.Schema, w.Table, w.ConstraintName = v.Schema, v.Table, v.ConstraintName
	case schemachange.AddIndex:
		w.Schema, w.Table = v.Schema, v.Table
		w.IndexName, w.Unique, w.Concurrent, w.IndexType = v.IndexName, v.Unique, v.Concurrent, v.IndexType
		w.Columns = encodeColumnNames(v.Columns)
	case schemachange.DropIndex:
		w.Schema, w.Table, w.IndexName, w.Concurrent = v.Schema, v.Table, v.IndexName, v.Concurrent
	case schemachange.SetPiiClassification:
		w.Schema, w.Table, w.Column, w.Classification = v.Schema, v.Table, v.Column, v.Classification
	case schemachange.AddTag:
		w.Schema, w.Table, w.Tag = v.Schema, v.Table, v.Tag
	case schemachange.RemoveTag:
		w.Schema, w.Table, w.Tag = v.Schema, v.Table, v.Tag
	case schemachange.SetDescription:
		w.Schema, w.Table, w.Column, w.Description = v.Schema, v.Table, v.Column, v.Description
	default:
		return nil, fmt.Errorf("changewire: no wire encoding registered for %T", c)
	}

	return json.Marshal(w)
}

func encodeColumns(cols []schemachange.ColumnDef) []wireColumn {
	out := make([]wireColumn, 0, len(cols))
	for _, c := range cols {
		wc := wireColumn{
			Name:       c.Name,
			DataType:   c.DataType,
			Nullable:   c.Nullable,
			Unique:     c.Unique,
			PrimaryKey: c.PrimaryKey,
		}
		if c.DefaultValue != nil {
			wc.DefaultValue = nullable.NewNullableWithValue(*c.DefaultValue)
		}
		if c.PiiClassification != "" {
			wc.PiiClassification = nullable.NewNullableWithValue(c.PiiClassification)
		}
		out = append(out, wc)
	}
	return out
}

// encodeColumnNames packs a plain column-name list into the shared
// wireColumn slice so constraint/index variants reuse the same "columns"
// wire field as CreateTable's full ColumnDef list.
func encodeColumnNames(names []string) []wireColumn {
	out := make([]wireColumn, 0, len(names))
	for _, n := range names {
		out = append(out, wireColumn{Name: n})
	}
	return out
}
