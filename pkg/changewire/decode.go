// SPDX-License-Identifier: Apache-2.0

// Package changewire decodes and validates the wire representation of a
// SchemaChange (§4.7) the way pgroll validates a RawMigration's Operations
// against schema.json before unmarshalling into a concrete migrations.Op*
// type: every incoming payload is checked against an embedded JSON Schema
// first, then converted into the closed schemachange.Change variant set.
//
// Tri-state fields — a PATCH-style payload distinguishing "field absent"
// from "field explicitly cleared" from "field set to a value" — are decoded
// with github.com/oapi-codegen/nullable rather than bare pointers, since a
// bare *string can't represent all three states once the wire form already
// uses `omitempty`.
package changewire

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/oapi-codegen/nullable"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

//go:embed schema.json
var schemaJSON []byte

var compiled *jsonschema.Schema

func compiledSchema() (*jsonschema.Schema, error) {
	if compiled != nil {
		return compiled, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("change.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("loading change.json schema: %w", err)
	}
	sch, err := c.Compile("change.json")
	if err != nil {
		return nil, fmt.Errorf("compiling change.json schema: %w", err)
	}
	compiled = sch
	return compiled, nil
}

// wireColumn mirrors schemachange.ColumnDef but with tri-state fields for
// the values that need to distinguish "omit" from "explicit null".
type wireColumn struct {
	Name              string                     `json:"name"`
	DataType          string                     `json:"dataType"`
	Nullable          bool                       `json:"nullable"`
	DefaultValue      nullable.Nullable[string]  `json:"defaultValue,omitempty"`
	Unique            bool                       `json:"unique"`
	PrimaryKey        bool                       `json:"primaryKey"`
	PiiClassification nullable.Nullable[string]  `json:"piiClassification,omitempty"`
}

func (w wireColumn) toDomain() schemachange.ColumnDef {
	col := schemachange.ColumnDef{
		Name:       w.Name,
		DataType:   w.DataType,
		Nullable:   w.Nullable,
		Unique:     w.Unique,
		PrimaryKey: w.PrimaryKey,
	}
	if w.DefaultValue.IsSpecified() && !w.DefaultValue.IsNull() {
		v, _ := w.DefaultValue.Get()
		col.DefaultValue = &v
	}
	if w.PiiClassification.IsSpecified() && !w.PiiClassification.IsNull() {
		v, _ := w.PiiClassification.Get()
		col.PiiClassification = v
	}
	return col
}

// wireChange is the superset envelope every incoming change payload
// unmarshals into before being narrowed to its concrete Kind.
type wireChange struct {
	Kind   string       `json:"kind"`
	Schema string       `json:"schema"`
	Table  string       `json:"table"`

	Column  string       `json:"column,omitempty"`
	Columns []wireColumn `json:"columns,omitempty"`

	NewName string `json:"newName,omitempty"`

	NewType     *string                   `json:"newType,omitempty"`
	SetNullable *bool                     `json:"setNullable,omitempty"`
	SetDefault  nullable.Nullable[string] `json:"setDefault,omitempty"`

	Cascade    bool `json:"cascade,omitempty"`
	Concurrent bool `json:"concurrent,omitempty"`
	Unique     bool `json:"unique,omitempty"`

	IndexName string `json:"indexName,omitempty"`
	IndexType string `json:"indexType,omitempty"`

	ConstraintName    string   `json:"constraintName,omitempty"`
	ReferencedSchema  string   `json:"referencedSchema,omitempty"`
	ReferencedTable   string   `json:"referencedTable,omitempty"`
	ReferencedColumns []string `json:"referencedColumns,omitempty"`
	OnDelete          string   `json:"onDelete,omitempty"`
	OnUpdate          string   `json:"onUpdate,omitempty"`

	Tag            string `json:"tag,omitempty"`
	Classification string `json:"classification,omitempty"`
	Description    string `json:"description,omitempty"`
}

// DecodeJSON validates `raw` against the embedded change.json schema, then
// converts it into the concrete schemachange.Change it names via `kind`.
func DecodeJSON(raw []byte) (schemachange.Change, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, sferrors.Internal{Reason: err.Error()}
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, sferrors.Validation{Reason: fmt.Sprintf("malformed change payload: %s", err)}
	}
	if err := sch.Validate(instance); err != nil {
		return nil, sferrors.Validation{Reason: fmt.Sprintf("change payload failed schema validation: %s", err)}
	}

	var w wireChange
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, sferrors.Validation{Reason: fmt.Sprintf("malformed change payload: %s", err)}
	}
	return w.toDomain()
}

func (w wireChange) columnDefs() []schemachange.ColumnDef {
	defs := make([]schemachange.ColumnDef, 0, len(w.Columns))
	for _, c := range w.Columns {
		defs = append(defs, c.toDomain())
	}
	return defs
}

func (w wireChange) toDomain() (schemachange.Change, error) {
	switch schemachange.Kind(w.Kind) {
	case schemachange.KindCreateTable:
		c := schemachange.CreateTable{Columns: w.columnDefs()}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindDropTable:
		c := schemachange.DropTable{Cascade: w.Cascade}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindRenameTable:
		c := schemachange.RenameTable{NewName: w.NewName}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindAddColumn:
		if len(w.Columns) != 1 {
			return nil, sferrors.Validation{Reason: "AddColumn requires exactly one entry in columns"}
		}
		c := schemachange.AddColumn{Column: w.columnDefs()[0]}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindDropColumn:
		c := schemachange.DropColumn{Column: w.Column, Cascade: w.Cascade}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindAlterColumn:
		c := schemachange.AlterColumn{Column: w.Column, NewType: w.NewType, SetNullable: w.SetNullable}
		if w.SetDefault.IsSpecified() {
			if w.SetDefault.IsNull() {
				c.DropDefault = true
			} else {
				v, _ := w.SetDefault.Get()
				c.SetDefault = &v
			}
		}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindRenameColumn:
		c := schemachange.RenameColumn{Column: w.Column, NewName: w.NewName}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindAddForeignKey:
		c := schemachange.AddForeignKey{
			ConstraintName:    w.ConstraintName,
			Columns:           w.Columns0(),
			ReferencedSchema:  w.ReferencedSchema,
			ReferencedTable:   w.ReferencedTable,
			ReferencedColumns: w.ReferencedColumns,
			OnDelete:          w.OnDelete,
			OnUpdate:          w.OnUpdate,
		}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindDropForeignKey:
		c := schemachange.DropForeignKey{ConstraintName: w.ConstraintName}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindAddPrimaryKey:
		c := schemachange.AddPrimaryKey{Columns: w.Columns0()}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindDropPrimaryKey:
		c := schemachange.DropPrimaryKey{}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindAddUniqueConstraint:
		c := schemachange.AddUniqueConstraint{ConstraintName: w.ConstraintName, Columns: w.Columns0()}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindDropUniqueConstraint:
		c := schemachange.DropUniqueConstraint{ConstraintName: w.ConstraintName}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindAddIndex:
		c := schemachange.AddIndex{
			IndexName:  w.IndexName,
			Columns:    w.Columns0(),
			Unique:     w.Unique,
			Concurrent: w.Concurrent,
			IndexType:  w.IndexType,
		}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindDropIndex:
		c := schemachange.DropIndex{IndexName: w.IndexName, Concurrent: w.Concurrent}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindSetPiiClassification:
		c := schemachange.SetPiiClassification{Column: w.Column, Classification: w.Classification}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindAddTag:
		c := schemachange.AddTag{Tag: w.Tag}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindRemoveTag:
		c := schemachange.RemoveTag{Tag: w.Tag}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	case schemachange.KindSetDescription:
		c := schemachange.SetDescription{Column: w.Column, Description: w.Description}
		c.Schema, c.Table = w.Schema, w.Table
		return c, nil
	default:
		return nil, sferrors.Validation{Reason: fmt.Sprintf("unknown change kind %q", w.Kind)}
	}
}

// Columns0 reinterprets the shared `columns` field as a plain name list,
// used by the constraint/index variants where columns are column names
// rather than full ColumnDef objects.
func (w wireChange) Columns0() []string {
	names := make([]string, 0, len(w.Columns))
	for _, c := range w.Columns {
		names = append(names, c.Name)
	}
	return names
}
