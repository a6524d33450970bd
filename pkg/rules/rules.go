// SPDX-License-Identifier: Apache-2.0

// Package rules evaluates a computed diff against the default governance
// rule set (§4.5): nine stable-ID rules, each a pure function over a diff
// item and the base snapshot.
package rules

import (
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/diffengine"
	"github.com/schemaflow/schemaflow/pkg/schema"
)

// Severity is how strongly a violation constrains the proposal lifecycle.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityBlock   Severity = "block"
)

// Violation is one rule firing against one diff item.
type Violation struct {
	RuleID         string   `json:"ruleId"`
	Name           string   `json:"name"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	AffectedObject string   `json:"affectedObject"`
	Suggestion     string   `json:"suggestion,omitempty"`
}

// Result is the outcome of evaluating every rule against a diff.
type Result struct {
	Violations       []Violation `json:"violations"`
	HasBlockers      bool        `json:"hasBlockers"`
	HasErrors        bool        `json:"hasErrors"`
	HasWarnings      bool        `json:"hasWarnings"`
	CanProceed       bool        `json:"canProceed"`
	RequiresApproval bool        `json:"requiresApproval"`
}

// Rule is a pure function over one diff item and the base snapshot. It
// returns a Violation and true if it fires, or false if it does not apply.
type Rule struct {
	ID       string
	Name     string
	Severity Severity
	Check    func(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool)
}

// narrowing is the inverse of diffengine's widening allow-list, plus the
// timestamp→date narrowing §4.5/R005 calls out explicitly.
var narrowing = map[string][]string{
	"bigint":           {"integer", "smallint"},
	"integer":          {"smallint"},
	"double precision": {"real"},
	"text":             {"varchar", "char"},
	"varchar":          {"char"},
	"timestamp":        {"date"},
}

func isNarrowing(from, to string) bool {
	for _, narrowed := range narrowing[from] {
		if narrowed == to {
			return true
		}
	}
	return false
}

// DefaultRules returns the §4.5 default rule set, in stable R001..R009
// order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID: "R001", Name: "DropColumnWithDependencies", Severity: SeverityBlock,
			Check: dropColumnWithDependencies,
		},
		{
			ID: "R002", Name: "DropTableWithDependencies", Severity: SeverityBlock,
			Check: dropTableWithDependencies,
		},
		{
			ID: "R003", Name: "UniqueIndexRemoval", Severity: SeverityBlock,
			Check: uniqueIndexRemoval,
		},
		{
			ID: "R004", Name: "IndexRemovalPerformance", Severity: SeverityWarning,
			Check: indexRemovalPerformance,
		},
		{
			ID: "R005", Name: "NarrowingTypeConversion", Severity: SeverityError,
			Check: narrowingTypeConversion,
		},
		{
			ID: "R006", Name: "NotNullWithoutDefault", Severity: SeverityBlock,
			Check: notNullWithoutDefault,
		},
		{
			ID: "R007", Name: "RenameWithoutAlias", Severity: SeverityWarning,
			Check: renameWithoutAlias,
		},
		{
			ID: "R008", Name: "PrimaryKeyRemoval", Severity: SeverityBlock,
			Check: primaryKeyRemoval,
		},
		{
			ID: "R009", Name: "AddCascadeDelete", Severity: SeverityWarning,
			Check: addCascadeDelete,
		},
	}
}

// Evaluate runs every rule in `rules` over every item in `diff.Items`.
func Evaluate(diff *diffengine.SchemaDiff, snapshot *schema.Snapshot, rules []Rule) *Result {
	result := &Result{}

	for _, item := range diff.Items {
		for _, rule := range rules {
			v, fires := rule.Check(item, snapshot)
			if !fires {
				continue
			}
			v.RuleID = rule.ID
			v.Name = rule.Name
			v.Severity = rule.Severity
			result.Violations = append(result.Violations, v)

			switch rule.Severity {
			case SeverityBlock:
				result.HasBlockers = true
			case SeverityError:
				result.HasErrors = true
			case SeverityWarning:
				result.HasWarnings = true
			}
		}
	}

	result.CanProceed = !result.HasBlockers
	result.RequiresApproval = result.HasErrors || result.HasWarnings
	return result
}

// OverrideRecord is an explicit, audited bypass of one Block violation
// (§9 decision (b)): the Rules Engine itself never grants bypass, so a
// caller wanting to proceed past a Block verdict must supply one of these
// per blocking rule, naming who authorized it and why.
type OverrideRecord struct {
	RuleID        string `json:"ruleId"`
	OverriddenBy  string `json:"overriddenBy"`
	Justification string `json:"justification"`
}

// CanProceedWithOverrides reports whether every Block-severity violation in
// result has a matching override. A Result with no blockers trivially
// proceeds regardless of overrides supplied.
func CanProceedWithOverrides(result *Result, overrides []OverrideRecord) bool {
	if result.CanProceed {
		return true
	}
	overridden := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		if o.Justification == "" || o.OverriddenBy == "" {
			continue
		}
		overridden[o.RuleID] = true
	}
	for _, v := range result.Violations {
		if v.Severity == SeverityBlock && !overridden[v.RuleID] {
			return false
		}
	}
	return true
}

func dropColumnWithDependencies(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Removed || item.ObjectKind != diffengine.KindColumn {
		return Violation{}, false
	}
	table, column, ok := splitQualified(item.AffectedObject)
	if !ok {
		return Violation{}, false
	}
	for _, fk := range snapshot.ForeignKeys {
		qualifiedSource := fk.SourceSchema + "." + fk.SourceTable
		if qualifiedSource != table {
			continue
		}
		if containsString(fk.SourceColumns, column) {
			return Violation{
				Message:        fmt.Sprintf("column %s is referenced by foreign key %s and cannot be dropped", item.AffectedObject, fk.ConstraintName),
				AffectedObject: item.AffectedObject,
				Suggestion:     "drop the foreign key constraint first",
			}, true
		}
	}
	return Violation{}, false
}

func dropTableWithDependencies(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Removed || item.ObjectKind != diffengine.KindTable {
		return Violation{}, false
	}
	for _, fk := range snapshot.ForeignKeys {
		if fk.ReferencedQualifiedName() == item.AffectedObject {
			return Violation{
				Message:        fmt.Sprintf("table %s is referenced by %s.%s and cannot be dropped", item.AffectedObject, fk.SourceTable, fk.ConstraintName),
				AffectedObject: item.AffectedObject,
				Suggestion:     "drop dependent foreign keys first",
			}, true
		}
	}
	return Violation{}, false
}

func uniqueIndexRemoval(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Removed || item.ObjectKind != diffengine.KindIndex {
		return Violation{}, false
	}
	if item.Risk != diffengine.RiskHigh {
		return Violation{}, false
	}
	return Violation{
		Message:        fmt.Sprintf("%s is a unique index and cannot be removed directly", item.AffectedObject),
		AffectedObject: item.AffectedObject,
		Suggestion:     "add a replacement constraint before removing this index",
	}, true
}

func indexRemovalPerformance(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Removed || item.ObjectKind != diffengine.KindIndex {
		return Violation{}, false
	}
	if item.Risk == diffengine.RiskHigh {
		return Violation{}, false
	}
	return Violation{
		Message:        fmt.Sprintf("removing index %s may degrade query performance", item.AffectedObject),
		AffectedObject: item.AffectedObject,
	}, true
}

func narrowingTypeConversion(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Modified || item.ObjectKind != diffengine.KindColumn {
		return Violation{}, false
	}
	from, to, ok := columnTypeChange(item)
	if !ok || !isNarrowing(from, to) {
		return Violation{}, false
	}
	return Violation{
		Message:        fmt.Sprintf("%s narrows from %s to %s, which may truncate data", item.AffectedObject, from, to),
		AffectedObject: item.AffectedObject,
		Suggestion:     "verify no existing values would overflow the narrower type",
	}, true
}

func notNullWithoutDefault(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Modified || item.ObjectKind != diffengine.KindColumn {
		return Violation{}, false
	}
	before, after, ok := decodeColumns(item)
	if !ok {
		return Violation{}, false
	}
	if before.Nullable && !after.Nullable && after.DefaultValue == nil {
		return Violation{
			Message:        fmt.Sprintf("%s becomes NOT NULL without a default and will fail on existing rows", item.AffectedObject),
			AffectedObject: item.AffectedObject,
			Suggestion:     "backfill the column and supply a default before tightening the constraint",
		}, true
	}
	return Violation{}, false
}

func renameWithoutAlias(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Renamed {
		return Violation{}, false
	}
	return Violation{
		Message:        fmt.Sprintf("%s is renamed without a compatibility alias", item.AffectedObject),
		AffectedObject: item.AffectedObject,
		Suggestion:     "consider a view or alias for callers still using the old name",
	}, true
}

func primaryKeyRemoval(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ObjectKind != diffengine.KindColumn {
		return Violation{}, false
	}
	if item.ChangeType == diffengine.Modified {
		before, after, ok := decodeColumns(item)
		if ok && before.IsPrimaryKey && !after.IsPrimaryKey {
			return Violation{
				Message:        fmt.Sprintf("%s leaves the primary key", item.AffectedObject),
				AffectedObject: item.AffectedObject,
			}, true
		}
	}
	if item.ChangeType == diffengine.Removed {
		var col schema.Column
		if decodeInto(item.Before, &col) && col.IsPrimaryKey {
			return Violation{
				Message:        fmt.Sprintf("%s is a primary key column and cannot be dropped directly", item.AffectedObject),
				AffectedObject: item.AffectedObject,
			}, true
		}
	}
	return Violation{}, false
}

func addCascadeDelete(item diffengine.DiffItem, snapshot *schema.Snapshot) (Violation, bool) {
	if item.ChangeType != diffengine.Added || item.ObjectKind != diffengine.KindForeignKey {
		return Violation{}, false
	}
	var fk schema.ForeignKey
	if !decodeInto(item.After, &fk) || fk.OnDelete != "CASCADE" {
		return Violation{}, false
	}
	return Violation{
		Message:        fmt.Sprintf("%s adds ON DELETE CASCADE, which can silently remove dependent rows", item.AffectedObject),
		AffectedObject: item.AffectedObject,
		Suggestion:     "confirm cascading deletes are intentional for this relationship",
	}, true
}
