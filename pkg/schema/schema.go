// SPDX-License-Identifier: Apache-2.0

// Package schema is the data model for a point-in-time catalog capture
// (§3): tables, columns, foreign keys and indexes, plus the content-address
// checksum that lets the rest of the kernel detect drift without comparing
// full structures.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PiiClassification is a per-column sensitivity tag. Elevating a column to
// Confidential or above raises the proposal's approval requirements (§4.5).
type PiiClassification string

const (
	PiiNone         PiiClassification = "none"
	PiiInternal     PiiClassification = "internal"
	PiiConfidential PiiClassification = "confidential"
	PiiRestricted   PiiClassification = "restricted"
	PiiSecret       PiiClassification = "secret"
)

// RequiresSecurityApproval reports whether this classification triggers the
// security-team approval gate of §4.5/§4.6.
func (p PiiClassification) RequiresSecurityApproval() bool {
	switch p {
	case PiiConfidential, PiiRestricted, PiiSecret:
		return true
	default:
		return false
	}
}

// Column is one column of a table, in catalog ordinal order.
type Column struct {
	Name              string            `json:"name"`
	DataType          string            `json:"dataType"`
	Nullable          bool              `json:"nullable"`
	DefaultValue      *string           `json:"defaultValue,omitempty"`
	IsPrimaryKey      bool              `json:"isPrimaryKey"`
	IsUnique          bool              `json:"isUnique"`
	OrdinalPosition   int               `json:"ordinalPosition"`
	PiiClassification PiiClassification `json:"piiClassification,omitempty"`
	Description       *string           `json:"description,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
}

// Presentation holds the diagramming metadata the core treats as opaque:
// it never enters the checksum and is ignored by diff/risk/rules.
type Presentation struct {
	X, Y      float64 `json:"x,omitempty"`
	Color     string  `json:"color,omitempty"`
	Collapsed bool    `json:"collapsed,omitempty"`
}

// Governance is table-level metadata that informs rules and risk (ownership,
// criticality) without being part of the structural checksum.
type Governance struct {
	Owner       string   `json:"owner,omitempty"`
	Criticality string   `json:"criticality,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Table is one user table (BASE TABLE only, never a view — §4.1).
type Table struct {
	Schema       string        `json:"schema"`
	Name         string        `json:"name"`
	Columns      []Column      `json:"columns"`
	PrimaryKey   []string      `json:"primaryKey,omitempty"`
	Governance   Governance    `json:"governance,omitempty"`
	Presentation *Presentation `json:"presentation,omitempty"`
}

// QualifiedName returns "schema.name", used both for checksum sort order and
// as the map key callers use to look up a table.
func (t Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// GetColumn returns the named column, or nil if it doesn't exist.
func (t Table) GetColumn(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ForeignKey is a reference from one or more source columns to a referenced
// table's columns.
type ForeignKey struct {
	ConstraintName    string   `json:"constraintName"`
	SourceSchema      string   `json:"sourceSchema"`
	SourceTable       string   `json:"sourceTable"`
	SourceColumns     []string `json:"sourceColumns"`
	ReferencedSchema  string   `json:"referencedSchema"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
	OnUpdate          string   `json:"onUpdate"`
	OnDelete          string   `json:"onDelete"`
}

// QualifiedName is used for checksum sort order: the constraint lives on the
// source table, so it's keyed by source schema/table first.
func (fk ForeignKey) QualifiedName() string {
	return fk.SourceSchema + "." + fk.SourceTable + "." + fk.ConstraintName
}

// ReferencedQualifiedName identifies the table this FK points at, the node
// the blast-radius graph traverses to.
func (fk ForeignKey) ReferencedQualifiedName() string {
	return fk.ReferencedSchema + "." + fk.ReferencedTable
}

// Index is a btree/gin/gist/etc index on a table.
type Index struct {
	Name      string   `json:"name"`
	Schema    string   `json:"schema"`
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"isUnique"`
	IsPrimary bool     `json:"isPrimary"`
	IndexType string   `json:"indexType"`
}

func (i Index) QualifiedName() string {
	return i.Schema + "." + i.Table + "." + i.Name
}

// Snapshot is an immutable point-in-time catalog capture (§3). Never
// mutated after Introspector produces it; the Snapshot Store assigns
// Version and persists it.
type Snapshot struct {
	ID           uuid.UUID    `json:"id"`
	ConnectionID uuid.UUID    `json:"connectionId"`
	Version      int          `json:"version"`
	CapturedAt   time.Time    `json:"capturedAt"`
	Checksum     string       `json:"checksum"`
	Tables       []Table      `json:"tables"`
	ForeignKeys  []ForeignKey `json:"foreignKeys"`
	Indexes      []Index      `json:"indexes"`
}

// GetTable looks up a table by schema-qualified name.
func (s *Snapshot) GetTable(schema, name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Schema == schema && s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// IndexesForTable returns every index defined on the given table.
func (s *Snapshot) IndexesForTable(schemaName, tableName string) []Index {
	var out []Index
	for _, idx := range s.Indexes {
		if idx.Schema == schemaName && idx.Table == tableName {
			out = append(out, idx)
		}
	}
	return out
}

// ForeignKeysReferencing returns every FK whose ReferencedTable is the given
// qualified table, the edge set the blast-radius BFS walks.
func (s *Snapshot) ForeignKeysReferencing(qualifiedTable string) []ForeignKey {
	var out []ForeignKey
	for _, fk := range s.ForeignKeys {
		if fk.ReferencedSchema+"."+fk.ReferencedTable == qualifiedTable {
			out = append(out, fk)
		}
	}
	return out
}

// ComputeChecksum implements the canonical encoding invariant of §3: sort
// tables and FKs lexicographically by qualified name, emit columns in
// ordinal_position order, concatenate schema.table then per-column
// "name:data_type:nullable", then per-FK "constraint_name→referenced_table",
// then per-index "schema.table.name:unique:col,col,...". Two snapshots with identical
// schema content produce identical checksums regardless of insertion order
// or of Presentation/Governance metadata, which never enter the encoding.
func ComputeChecksum(tables []Table, foreignKeys []ForeignKey, indexes []Index) string {
	h := sha256.New()

	sortedTables := append([]Table(nil), tables...)
	sort.Slice(sortedTables, func(i, j int) bool {
		return sortedTables[i].QualifiedName() < sortedTables[j].QualifiedName()
	})

	for _, t := range sortedTables {
		fmt.Fprintf(h, "%s\n", t.QualifiedName())

		cols := append([]Column(nil), t.Columns...)
		sort.Slice(cols, func(i, j int) bool {
			return cols[i].OrdinalPosition < cols[j].OrdinalPosition
		})
		for _, c := range cols {
			fmt.Fprintf(h, "%s:%s:%t\n", c.Name, c.DataType, c.Nullable)
		}
	}

	sortedFKs := append([]ForeignKey(nil), foreignKeys...)
	sort.Slice(sortedFKs, func(i, j int) bool {
		return sortedFKs[i].QualifiedName() < sortedFKs[j].QualifiedName()
	})
	for _, fk := range sortedFKs {
		fmt.Fprintf(h, "%s→%s.%s\n", fk.ConstraintName, fk.ReferencedSchema, fk.ReferencedTable)
	}

	sortedIdx := append([]Index(nil), indexes...)
	sort.Slice(sortedIdx, func(i, j int) bool {
		return sortedIdx[i].QualifiedName() < sortedIdx[j].QualifiedName()
	})
	for _, idx := range sortedIdx {
		fmt.Fprintf(h, "%s:%t:%s\n", idx.QualifiedName(), idx.IsUnique, strings.Join(idx.Columns, ","))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// FastChecksum is the lightweight pre-flight variant used by the
// Orchestrator (§4.10): "table:col:type:nullable" concatenation over live
// catalog rows, without the full Snapshot structure. Both use SHA-256, but
// the encodings differ (no FKs or indexes here, one line per column), so a
// FastChecksum is only comparable with another FastChecksum, never with
// ComputeChecksum. It needs only the tables, not a fully-built Snapshot.
func FastChecksum(tables []Table) string {
	h := sha256.New()

	sortedTables := append([]Table(nil), tables...)
	sort.Slice(sortedTables, func(i, j int) bool {
		return sortedTables[i].QualifiedName() < sortedTables[j].QualifiedName()
	})

	for _, t := range sortedTables {
		cols := append([]Column(nil), t.Columns...)
		sort.Slice(cols, func(i, j int) bool {
			return cols[i].OrdinalPosition < cols[j].OrdinalPosition
		})
		for _, c := range cols {
			fmt.Fprintf(h, "%s:%s:%s:%t\n", t.QualifiedName(), c.Name, c.DataType, c.Nullable)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
