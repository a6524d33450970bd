// SPDX-License-Identifier: Apache-2.0

package proposal

import (
	"strings"

	"github.com/schemaflow/schemaflow/pkg/blastradius"
	"github.com/schemaflow/schemaflow/pkg/migrationgen"
	"github.com/schemaflow/schemaflow/pkg/risk"
	"github.com/schemaflow/schemaflow/pkg/rules"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/semanticmap"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
	"github.com/schemaflow/schemaflow/pkg/virtualschema"

	"github.com/schemaflow/schemaflow/pkg/diffengine"
)

// Analyze runs the full proposal-vs-base pipeline described in §4 of the
// data flow ("Migration Generator -> Diff Engine + Blast-Radius + Rules ->
// Risk Analyser"): it projects the proposal's changes onto base with
// virtualschema.Apply to get the "to" schema, diffs that against base,
// evaluates the rule set, walks blast-radius for every affected table, and
// finally synthesizes the risk report. The results are cached on the
// Proposal (Diff, RulesResult, Migration, RiskReport) the same way AddChange
// invalidates them — any subsequent AddChange wipes Migration and RiskReport
// again, forcing a re-Analyze before the next approval/execution step.
//
// Analyze is pure: it never touches a live database. The caller is
// responsible for keeping `base` fresh relative to BaseChecksum; a stale
// base produces a stale diff, not an error, since drift detection is the
// Orchestrator's job at execution pre-flight (§4.10), not Analyze's.
func (p *Proposal) Analyze(base *schema.Snapshot, semantics *semanticmap.Map, activeRules []rules.Rule) error {
	if base == nil {
		return sferrors.Validation{Reason: "analyze requires a base snapshot"}
	}
	if len(p.Changes) == 0 {
		return sferrors.Validation{Reason: "cannot analyze a proposal with no changes"}
	}

	toSnapshot, err := virtualschema.Apply(*base, p.Changes)
	if err != nil {
		return err
	}

	diff := diffengine.Diff(base, &toSnapshot)
	rulesResult := rules.Evaluate(diff, base, activeRules)

	migration, err := migrationgen.Generate(p.Changes)
	if err != nil {
		return err
	}

	blastRadii := make(map[string]*blastradius.BlastRadius)
	for _, table := range affectedQualifiedTables(p.Changes) {
		schemaName, tableName, ok := splitQualified(table)
		if !ok {
			continue
		}
		blastRadii[table] = blastradius.AnalyzeTable(base, schemaName, tableName)
	}

	report := risk.Analyze(risk.Input{
		Snapshot:    base,
		Changes:     p.Changes,
		Diff:        diff,
		RulesResult: rulesResult,
		BlastRadii:  blastRadii,
		SemanticMap: semantics,
	})

	p.Diff = diff
	p.RulesResult = rulesResult
	p.Migration = migration
	p.RiskReport = report
	p.UpdatedAt = nowFunc()
	return nil
}

func affectedQualifiedTables(changes []schemachange.Change) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range changes {
		t := c.TargetTable()
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func splitQualified(qualified string) (schemaName, table string, ok bool) {
	idx := strings.LastIndex(qualified, ".")
	if idx < 0 {
		return "", "", false
	}
	return qualified[:idx], qualified[idx+1:], true
}
