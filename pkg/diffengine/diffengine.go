// SPDX-License-Identifier: Apache-2.0

// Package diffengine computes the structural diff between two schema
// snapshots (§4.3): added/removed items for tables, columns, foreign keys
// and indexes, plus modified items for columns, each carrying a per-item
// risk classification. A foreign key or index present on both sides under
// the same name is not compared field by field and yields no modified item.
package diffengine

import (
	"encoding/json"
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/schema"
)

// ChangeType is the kind of structural change a DiffItem represents.
type ChangeType string

const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
	Renamed  ChangeType = "renamed"
)

// ObjectKind identifies what a DiffItem is about.
type ObjectKind string

const (
	KindTable      ObjectKind = "table"
	KindColumn     ObjectKind = "column"
	KindForeignKey ObjectKind = "foreign_key"
	KindIndex      ObjectKind = "index"
)

// RiskLevel is the per-item or aggregate severity of a structural change.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskOrder = map[RiskLevel]int{
	RiskSafe:     0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// higherRisk returns whichever of a, b ranks higher.
func higherRisk(a, b RiskLevel) RiskLevel {
	if riskOrder[b] > riskOrder[a] {
		return b
	}
	return a
}

// DiffItem is one structural change between two snapshots.
type DiffItem struct {
	ChangeType     ChangeType      `json:"changeType"`
	ObjectKind     ObjectKind      `json:"objectKind"`
	AffectedObject string          `json:"affectedObject"`
	Description    string          `json:"description"`
	Before         json.RawMessage `json:"before,omitempty"`
	After          json.RawMessage `json:"after,omitempty"`
	Risk           RiskLevel       `json:"risk"`
	IsBreaking     bool            `json:"isBreaking"`
}

// Summary is the aggregate view over a SchemaDiff's items.
type Summary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

// SchemaDiff is the result of diffing two snapshots.
type SchemaDiff struct {
	Items             []DiffItem `json:"items"`
	Summary           Summary    `json:"summary"`
	OverallRisk       RiskLevel  `json:"overallRisk"`
	HasBreakingChanges bool      `json:"hasBreakingChanges"`
}

// widening is the allow-list of non-breaking type widenings (§4.3); its
// inverse is the narrowing list the Rules Engine's R005 consults.
var widening = map[string][]string{
	"smallint":    {"integer", "bigint"},
	"integer":     {"bigint"},
	"real":        {"double precision"},
	"char":        {"varchar", "text"},
	"varchar":     {"text"},
}

// IsWidening reports whether converting a column from `from` to `to` is a
// non-breaking widening per the §4.3 allow-list.
func IsWidening(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range widening[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Diff computes the structural diff of `to` relative to `from`.
func Diff(from, to *schema.Snapshot) *SchemaDiff {
	d := &SchemaDiff{}

	diffTables(from, to, d)
	diffForeignKeys(from, to, d)
	diffIndexes(from, to, d)

	d.OverallRisk = RiskSafe
	for _, item := range d.Items {
		d.OverallRisk = higherRisk(d.OverallRisk, item.Risk)
		if item.IsBreaking {
			d.HasBreakingChanges = true
		}
		switch item.ChangeType {
		case Added:
			d.Summary.Added++
		case Removed:
			d.Summary.Removed++
		case Modified, Renamed:
			d.Summary.Modified++
		}
	}
	return d
}

func diffTables(from, to *schema.Snapshot, d *SchemaDiff) {
	fromByName := indexTables(from)
	toByName := indexTables(to)

	for name, t := range toByName {
		if _, ok := fromByName[name]; !ok {
			d.Items = append(d.Items, DiffItem{
				ChangeType:     Added,
				ObjectKind:     KindTable,
				AffectedObject: name,
				Description:    fmt.Sprintf("table %s added", name),
				After:          marshal(t),
				Risk:           RiskSafe,
			})
			for _, col := range t.Columns {
				diffNewColumn(name, col, d)
			}
		}
	}

	for name, t := range fromByName {
		if _, ok := toByName[name]; !ok {
			d.Items = append(d.Items, DiffItem{
				ChangeType:     Removed,
				ObjectKind:     KindTable,
				AffectedObject: name,
				Description:    fmt.Sprintf("table %s removed", name),
				Before:         marshal(t),
				Risk:           RiskCritical,
				IsBreaking:     true,
			})
		}
	}

	for name, fromTable := range fromByName {
		toTable, ok := toByName[name]
		if !ok {
			continue
		}
		diffColumns(name, fromTable, toTable, d)
	}
}

func diffNewColumn(tableName string, col schema.Column, d *SchemaDiff) {
	risk := RiskSafe
	breaking := false
	if !col.Nullable && col.DefaultValue == nil {
		risk = RiskHigh
		breaking = true
	}
	d.Items = append(d.Items, DiffItem{
		ChangeType:     Added,
		ObjectKind:     KindColumn,
		AffectedObject: fmt.Sprintf("%s.%s", tableName, col.Name),
		Description:    fmt.Sprintf("column %s added to %s", col.Name, tableName),
		After:          marshal(col),
		Risk:           risk,
		IsBreaking:     breaking,
	})
}

func diffColumns(tableName string, from, to *schema.Table, d *SchemaDiff) {
	fromByName := map[string]schema.Column{}
	for _, c := range from.Columns {
		fromByName[c.Name] = c
	}
	toByName := map[string]schema.Column{}
	for _, c := range to.Columns {
		toByName[c.Name] = c
	}

	for name, col := range toByName {
		if _, ok := fromByName[name]; !ok {
			diffNewColumn(tableName, col, d)
		}
	}

	for name, col := range fromByName {
		if _, ok := toByName[name]; !ok {
			risk := RiskHigh
			if col.IsPrimaryKey {
				risk = RiskCritical
			}
			d.Items = append(d.Items, DiffItem{
				ChangeType:     Removed,
				ObjectKind:     KindColumn,
				AffectedObject: fmt.Sprintf("%s.%s", tableName, name),
				Description:    fmt.Sprintf("column %s removed from %s", name, tableName),
				Before:         marshal(col),
				Risk:           risk,
				IsBreaking:     true,
			})
		}
	}

	for name, fromCol := range fromByName {
		toCol, ok := toByName[name]
		if !ok || columnsEqual(fromCol, toCol) {
			continue
		}

		risk, breaking := classifyColumnChange(fromCol, toCol)
		d.Items = append(d.Items, DiffItem{
			ChangeType:     Modified,
			ObjectKind:     KindColumn,
			AffectedObject: fmt.Sprintf("%s.%s", tableName, name),
			Description:    fmt.Sprintf("column %s on %s changed", name, tableName),
			Before:         marshal(fromCol),
			After:          marshal(toCol),
			Risk:           risk,
			IsBreaking:     breaking,
		})
	}
}

func classifyColumnChange(from, to schema.Column) (RiskLevel, bool) {
	risk := RiskSafe
	breaking := false

	if from.DataType != to.DataType {
		if IsWidening(from.DataType, to.DataType) {
			risk = higherRisk(risk, RiskLow)
		} else {
			risk = higherRisk(risk, RiskHigh)
			breaking = true
		}
	}

	if !from.Nullable && to.Nullable {
		risk = higherRisk(risk, RiskLow)
	} else if from.Nullable && !to.Nullable {
		if to.DefaultValue == nil {
			risk = higherRisk(risk, RiskHigh)
			breaking = true
		} else {
			risk = higherRisk(risk, RiskMedium)
		}
	}

	if from.IsPrimaryKey && !to.IsPrimaryKey {
		risk = RiskCritical
		breaking = true
	}

	if from.PiiClassification != to.PiiClassification {
		risk = higherRisk(risk, RiskLow)
	}

	return risk, breaking
}

func columnsEqual(a, b schema.Column) bool {
	return a.DataType == b.DataType &&
		a.Nullable == b.Nullable &&
		a.IsPrimaryKey == b.IsPrimaryKey &&
		a.IsUnique == b.IsUnique &&
		a.PiiClassification == b.PiiClassification &&
		stringPtrEqual(a.DefaultValue, b.DefaultValue)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func diffForeignKeys(from, to *schema.Snapshot, d *SchemaDiff) {
	fromByName := map[string]schema.ForeignKey{}
	for _, fk := range from.ForeignKeys {
		fromByName[fk.ConstraintName] = fk
	}
	toByName := map[string]schema.ForeignKey{}
	for _, fk := range to.ForeignKeys {
		toByName[fk.ConstraintName] = fk
	}

	for name, fk := range toByName {
		if _, ok := fromByName[name]; !ok {
			risk := RiskLow
			if fk.OnDelete == "CASCADE" {
				risk = RiskLow
			}
			d.Items = append(d.Items, DiffItem{
				ChangeType:     Added,
				ObjectKind:     KindForeignKey,
				AffectedObject: fmt.Sprintf("%s.%s", fk.SourceTable, name),
				Description:    fmt.Sprintf("foreign key %s added on %s", name, fk.SourceTable),
				After:          marshal(fk),
				Risk:           risk,
			})
		}
	}

	for name, fk := range fromByName {
		if _, ok := toByName[name]; !ok {
			d.Items = append(d.Items, DiffItem{
				ChangeType:     Removed,
				ObjectKind:     KindForeignKey,
				AffectedObject: fmt.Sprintf("%s.%s", fk.SourceTable, name),
				Description:    fmt.Sprintf("foreign key %s removed from %s", name, fk.SourceTable),
				Before:         marshal(fk),
				Risk:           RiskMedium,
			})
		}
	}
}

func diffIndexes(from, to *schema.Snapshot, d *SchemaDiff) {
	fromByName := map[string]schema.Index{}
	for _, idx := range from.Indexes {
		fromByName[idx.QualifiedName()] = idx
	}
	toByName := map[string]schema.Index{}
	for _, idx := range to.Indexes {
		toByName[idx.QualifiedName()] = idx
	}

	for name, idx := range toByName {
		if _, ok := fromByName[name]; !ok {
			d.Items = append(d.Items, DiffItem{
				ChangeType:     Added,
				ObjectKind:     KindIndex,
				AffectedObject: name,
				Description:    fmt.Sprintf("index %s added", idx.Name),
				After:          marshal(idx),
				Risk:           RiskSafe,
			})
		}
	}

	for name, idx := range fromByName {
		if _, ok := toByName[name]; !ok {
			risk := RiskMedium
			breaking := false
			if idx.IsUnique {
				risk = RiskHigh
			}
			d.Items = append(d.Items, DiffItem{
				ChangeType:     Removed,
				ObjectKind:     KindIndex,
				AffectedObject: name,
				Description:    fmt.Sprintf("index %s removed", idx.Name),
				Before:         marshal(idx),
				Risk:           risk,
				IsBreaking:     breaking,
			})
		}
	}
}

func indexTables(s *schema.Snapshot) map[string]*schema.Table {
	out := make(map[string]*schema.Table, len(s.Tables))
	for i := range s.Tables {
		out[s.Tables[i].QualifiedName()] = &s.Tables[i]
	}
	return out
}

func marshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
