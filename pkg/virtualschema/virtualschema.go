// SPDX-License-Identifier: Apache-2.0

// Package virtualschema projects a proposal's changes onto a base snapshot
// to produce the "to" side of a proposal-vs-base diff, without touching a
// live database — the pure-computation counterpart of pgroll's
// Operation.Start, which mutates an in-memory *schema.Schema as each
// operation is applied, and of Migration.UpdateVirtualSchema, which runs
// every operation's Start against a schema.FakeDB so the in-memory schema
// advances but nothing physical happens.
//
// This is what lets the Risk Analyser and Rules Engine (§4.5, §4.9) see the
// proposal's effect before a migration ever runs: Apply(base, changes)
// produces the "to" snapshot that diffengine.Diff compares against "from".
package virtualschema

import (
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// Apply returns a copy of base with every change in order projected onto
// it. Governance-only changes (ModifiesDatabase()==false) mutate column/table
// metadata but never alter structure. The returned snapshot's Checksum is
// recomputed so callers can compare it against a live post-migration
// checksum once the real migration has run.
func Apply(base schema.Snapshot, changes []schemachange.Change) (schema.Snapshot, error) {
	working := cloneSnapshot(base)

	for i, c := range changes {
		if err := applyOne(&working, c); err != nil {
			return schema.Snapshot{}, fmt.Errorf("applying change %d (%s): %w", i, c.Kind(), err)
		}
	}

	working.Checksum = schema.ComputeChecksum(working.Tables, working.ForeignKeys, working.Indexes)
	return working, nil
}

func cloneSnapshot(s schema.Snapshot) schema.Snapshot {
	out := s
	out.Tables = append([]schema.Table(nil), s.Tables...)
	for i := range out.Tables {
		out.Tables[i].Columns = append([]schema.Column(nil), out.Tables[i].Columns...)
		out.Tables[i].PrimaryKey = append([]string(nil), out.Tables[i].PrimaryKey...)
	}
	out.ForeignKeys = append([]schema.ForeignKey(nil), s.ForeignKeys...)
	out.Indexes = append([]schema.Index(nil), s.Indexes...)
	return out
}

func applyOne(s *schema.Snapshot, c schemachange.Change) error {
	switch change := c.(type) {
	case schemachange.CreateTable:
		return applyCreateTable(s, change)
	case schemachange.DropTable:
		return applyDropTable(s, change)
	case schemachange.RenameTable:
		return applyRenameTable(s, change)
	case schemachange.AddColumn:
		return applyAddColumn(s, change)
	case schemachange.DropColumn:
		return applyDropColumn(s, change)
	case schemachange.AlterColumn:
		return applyAlterColumn(s, change)
	case schemachange.RenameColumn:
		return applyRenameColumn(s, change)
	case schemachange.AddForeignKey:
		return applyAddForeignKey(s, change)
	case schemachange.DropForeignKey:
		return applyDropForeignKey(s, change)
	case schemachange.AddPrimaryKey:
		return applyAddPrimaryKey(s, change)
	case schemachange.DropPrimaryKey:
		return applyDropPrimaryKey(s, change)
	case schemachange.AddUniqueConstraint:
		return applyAddUniqueConstraint(s, change)
	case schemachange.DropUniqueConstraint:
		return applyDropUniqueConstraint(s, change)
	case schemachange.AddIndex:
		return applyAddIndex(s, change)
	case schemachange.DropIndex:
		return applyDropIndex(s, change)
	case schemachange.SetPiiClassification:
		return applySetPii(s, change)
	case schemachange.AddTag:
		return applyAddTag(s, change)
	case schemachange.RemoveTag:
		return applyRemoveTag(s, change)
	case schemachange.SetDescription:
		return applySetDescription(s, change)
	default:
		return fmt.Errorf("virtualschema: no projection registered for %T", c)
	}
}

func findTable(s *schema.Snapshot, schemaName, table string) (int, error) {
	for i := range s.Tables {
		if s.Tables[i].Schema == schemaName && s.Tables[i].Name == table {
			return i, nil
		}
	}
	return -1, sferrors.NotFound{Resource: "table", ID: schemaName + "." + table}
}

func findColumn(t *schema.Table, name string) (int, error) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return i, nil
		}
	}
	return -1, sferrors.NotFound{Resource: "column", ID: t.QualifiedName() + "." + name}
}

func applyCreateTable(s *schema.Snapshot, c schemachange.CreateTable) error {
	if _, err := findTable(s, c.Schema, c.Table); err == nil {
		return sferrors.Conflict{Reason: "table already exists", Detail: c.Schema + "." + c.Table}
	}

	t := schema.Table{Schema: c.Schema, Name: c.Table}
	for i, col := range c.Columns {
		column := schema.Column{
			Name:            col.Name,
			DataType:        col.DataType,
			Nullable:        col.Nullable,
			DefaultValue:    col.DefaultValue,
			IsPrimaryKey:    col.PrimaryKey,
			IsUnique:        col.Unique,
			OrdinalPosition: i + 1,
		}
		if col.PiiClassification != "" {
			column.PiiClassification = schema.PiiClassification(col.PiiClassification)
		}
		t.Columns = append(t.Columns, column)
		if col.PrimaryKey {
			t.PrimaryKey = append(t.PrimaryKey, col.Name)
		}
	}
	s.Tables = append(s.Tables, t)
	return nil
}

func applyDropTable(s *schema.Snapshot, c schemachange.DropTable) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	s.Tables = append(s.Tables[:idx], s.Tables[idx+1:]...)
	return nil
}

func applyRenameTable(s *schema.Snapshot, c schemachange.RenameTable) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	s.Tables[idx].Name = c.NewName
	return nil
}

func applyAddColumn(s *schema.Snapshot, c schemachange.AddColumn) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	column := schema.Column{
		Name:            c.Column.Name,
		DataType:        c.Column.DataType,
		Nullable:        c.Column.Nullable,
		DefaultValue:    c.Column.DefaultValue,
		IsPrimaryKey:    c.Column.PrimaryKey,
		IsUnique:        c.Column.Unique,
		OrdinalPosition: len(t.Columns) + 1,
	}
	if c.Column.PiiClassification != "" {
		column.PiiClassification = schema.PiiClassification(c.Column.PiiClassification)
	}
	t.Columns = append(t.Columns, column)
	return nil
}

func applyDropColumn(s *schema.Snapshot, c schemachange.DropColumn) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	colIdx, err := findColumn(t, c.Column)
	if err != nil {
		return err
	}
	t.Columns = append(t.Columns[:colIdx], t.Columns[colIdx+1:]...)
	return nil
}

func applyAlterColumn(s *schema.Snapshot, c schemachange.AlterColumn) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	colIdx, err := findColumn(t, c.Column)
	if err != nil {
		return err
	}
	col := &t.Columns[colIdx]

	if c.NewType != nil {
		col.DataType = *c.NewType
	}
	if c.SetNullable != nil {
		col.Nullable = *c.SetNullable
	}
	if c.DropDefault {
		col.DefaultValue = nil
	} else if c.SetDefault != nil {
		v := *c.SetDefault
		col.DefaultValue = &v
	}
	return nil
}

func applyRenameColumn(s *schema.Snapshot, c schemachange.RenameColumn) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	colIdx, err := findColumn(t, c.Column)
	if err != nil {
		return err
	}
	t.Columns[colIdx].Name = c.NewName
	return nil
}

func applyAddForeignKey(s *schema.Snapshot, c schemachange.AddForeignKey) error {
	if _, err := findTable(s, c.Schema, c.Table); err != nil {
		return err
	}
	s.ForeignKeys = append(s.ForeignKeys, schema.ForeignKey{
		ConstraintName:    c.ConstraintName,
		SourceSchema:      c.Schema,
		SourceTable:       c.Table,
		SourceColumns:     c.Columns,
		ReferencedSchema:  c.ReferencedSchema,
		ReferencedTable:   c.ReferencedTable,
		ReferencedColumns: c.ReferencedColumns,
		OnUpdate:          c.OnUpdate,
		OnDelete:          c.OnDelete,
	})
	return nil
}

func applyDropForeignKey(s *schema.Snapshot, c schemachange.DropForeignKey) error {
	for i, fk := range s.ForeignKeys {
		if fk.SourceSchema == c.Schema && fk.SourceTable == c.Table && fk.ConstraintName == c.ConstraintName {
			s.ForeignKeys = append(s.ForeignKeys[:i], s.ForeignKeys[i+1:]...)
			return nil
		}
	}
	return sferrors.NotFound{Resource: "foreign key", ID: c.ConstraintName}
}

func applyAddPrimaryKey(s *schema.Snapshot, c schemachange.AddPrimaryKey) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	t.PrimaryKey = append([]string(nil), c.Columns...)
	for _, name := range c.Columns {
		if colIdx, err := findColumn(t, name); err == nil {
			t.Columns[colIdx].IsPrimaryKey = true
		}
	}
	return nil
}

func applyDropPrimaryKey(s *schema.Snapshot, c schemachange.DropPrimaryKey) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	for _, name := range t.PrimaryKey {
		if colIdx, err := findColumn(t, name); err == nil {
			t.Columns[colIdx].IsPrimaryKey = false
		}
	}
	t.PrimaryKey = nil
	return nil
}

func applyAddUniqueConstraint(s *schema.Snapshot, c schemachange.AddUniqueConstraint) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	for _, name := range c.Columns {
		if colIdx, err := findColumn(t, name); err == nil {
			t.Columns[colIdx].IsUnique = true
		}
	}
	s.Indexes = append(s.Indexes, schema.Index{
		Name: c.ConstraintName, Schema: c.Schema, Table: c.Table,
		Columns: c.Columns, IsUnique: true,
	})
	return nil
}

func applyDropUniqueConstraint(s *schema.Snapshot, c schemachange.DropUniqueConstraint) error {
	for i, idx := range s.Indexes {
		if idx.Schema == c.Schema && idx.Table == c.Table && idx.Name == c.ConstraintName {
			s.Indexes = append(s.Indexes[:i], s.Indexes[i+1:]...)
			return nil
		}
	}
	return sferrors.NotFound{Resource: "unique constraint", ID: c.ConstraintName}
}

func applyAddIndex(s *schema.Snapshot, c schemachange.AddIndex) error {
	if _, err := findTable(s, c.Schema, c.Table); err != nil {
		return err
	}
	s.Indexes = append(s.Indexes, schema.Index{
		Name: c.IndexName, Schema: c.Schema, Table: c.Table,
		Columns: c.Columns, IsUnique: c.Unique, IndexType: c.IndexType,
	})
	return nil
}

func applyDropIndex(s *schema.Snapshot, c schemachange.DropIndex) error {
	for i, idx := range s.Indexes {
		if idx.Schema == c.Schema && idx.Table == c.Table && idx.Name == c.IndexName {
			s.Indexes = append(s.Indexes[:i], s.Indexes[i+1:]...)
			return nil
		}
	}
	return sferrors.NotFound{Resource: "index", ID: c.IndexName}
}

func applySetPii(s *schema.Snapshot, c schemachange.SetPiiClassification) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	colIdx, err := findColumn(t, c.Column)
	if err != nil {
		return err
	}
	t.Columns[colIdx].PiiClassification = schema.PiiClassification(c.Classification)
	return nil
}

func applyAddTag(s *schema.Snapshot, c schemachange.AddTag) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	for _, tag := range t.Governance.Tags {
		if tag == c.Tag {
			return nil
		}
	}
	t.Governance.Tags = append(t.Governance.Tags, c.Tag)
	return nil
}

func applyRemoveTag(s *schema.Snapshot, c schemachange.RemoveTag) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	for i, tag := range t.Governance.Tags {
		if tag == c.Tag {
			t.Governance.Tags = append(t.Governance.Tags[:i], t.Governance.Tags[i+1:]...)
			return nil
		}
	}
	return nil
}

func applySetDescription(s *schema.Snapshot, c schemachange.SetDescription) error {
	idx, err := findTable(s, c.Schema, c.Table)
	if err != nil {
		return err
	}
	t := &s.Tables[idx]
	if c.Column == "" {
		return nil
	}
	colIdx, err := findColumn(t, c.Column)
	if err != nil {
		return err
	}
	desc := c.Description
	t.Columns[colIdx].Description = &desc
	return nil
}
