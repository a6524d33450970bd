// SPDX-License-Identifier: Apache-2.0

package orchestrator_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/schemaflow/schemaflow/pkg/db"
	"github.com/schemaflow/schemaflow/pkg/logging"
	"github.com/schemaflow/schemaflow/pkg/migrationgen"
	"github.com/schemaflow/schemaflow/pkg/orchestrator"
	"github.com/schemaflow/schemaflow/pkg/proposal"
	"github.com/schemaflow/schemaflow/pkg/rules"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

func baseProposal(status proposal.Status) *proposal.Proposal {
	p := proposal.New(uuid.New(), uuid.New(), "checksum", "test proposal")
	p.Status = status
	return p
}

func TestExecute_RejectsNonApprovedProposal(t *testing.T) {
	o := orchestrator.New(logging.NewNoop(), nil)
	p := baseProposal(proposal.StatusDraft)

	_, err := o.Execute(context.Background(), &db.FakeDB{}, p, &schema.Snapshot{}, true, nil)
	assert.ErrorAs(t, err, &sferrors.State{})
}

func TestExecute_RejectsProposalWithNoMigration(t *testing.T) {
	o := orchestrator.New(logging.NewNoop(), nil)
	p := baseProposal(proposal.StatusApproved)

	_, err := o.Execute(context.Background(), &db.FakeDB{}, p, &schema.Snapshot{}, true, nil)
	assert.ErrorAs(t, err, &sferrors.Validation{})
}

// Execute's Block-violation rejection only fires once pre-flight succeeds
// (S2: the pre-flight pass still runs before execution is refused), which
// needs a real catalog to check drift against — see
// TestExecute_BlockViolationRejectedAfterSuccessfulPreflight in
// orchestrator_container_test.go.

func TestCanProceedWithOverrides_OverriddenBlockViolationProceeds(t *testing.T) {
	p := baseProposal(proposal.StatusApproved)
	p.Migration = &migrationgen.Artifact{}
	p.RulesResult = &rules.Result{
		CanProceed: false,
		Violations: []rules.Violation{{RuleID: "R002", Severity: rules.SeverityBlock}},
	}

	overrides := []rules.OverrideRecord{{RuleID: "R002", OverriddenBy: "alice", Justification: "approved by on-call lead"}}
	assert.True(t, rules.CanProceedWithOverrides(p.RulesResult, overrides))
}

func TestRollback_RejectsNonMergedProposal(t *testing.T) {
	o := orchestrator.New(logging.NewNoop(), nil)
	p := baseProposal(proposal.StatusApproved)

	_, err := o.Rollback(context.Background(), &db.FakeDB{}, p)
	assert.ErrorAs(t, err, &sferrors.State{})
}

func TestRollback_RejectsMergedProposalWithNoRollbackSQL(t *testing.T) {
	o := orchestrator.New(logging.NewNoop(), nil)
	p := baseProposal(proposal.StatusMerged)
	p.Migration = &migrationgen.Artifact{}

	_, err := o.Rollback(context.Background(), &db.FakeDB{}, p)
	assert.ErrorAs(t, err, &sferrors.Validation{})
}
