// SPDX-License-Identifier: Apache-2.0

package proposal_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/migrationgen"
	"github.com/schemaflow/schemaflow/pkg/proposal"
	"github.com/schemaflow/schemaflow/pkg/risk"
	"github.com/schemaflow/schemaflow/pkg/rules"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

func newDraft(t *testing.T) *proposal.Proposal {
	t.Helper()
	return proposal.New(uuid.New(), uuid.New(), "deadbeef", "add email column")
}

func TestSubmitForReview_RequiresChanges(t *testing.T) {
	p := newDraft(t)
	err := p.SubmitForReview()
	assert.Error(t, err)
	assert.Equal(t, proposal.StatusDraft, p.Status)
}

func TestSubmitForReview_Succeeds(t *testing.T) {
	p := newDraft(t)
	col := schemachange.AddColumn{Column: schemachange.ColumnDef{Name: "email", DataType: "text", Nullable: true}}
	require.NoError(t, p.AddChange(col))

	require.NoError(t, p.SubmitForReview())
	assert.Equal(t, proposal.StatusOpen, p.Status)
}

func TestAddChange_InvalidatesCachedDerivedState(t *testing.T) {
	p := newDraft(t)
	p.Migration = nil // already nil, but exercise the invalidation path below
	col := schemachange.AddColumn{Column: schemachange.ColumnDef{Name: "email", DataType: "text", Nullable: true}}
	require.NoError(t, p.AddChange(col))

	p.Migration = &migrationgen.Artifact{}
	p.RiskReport = &risk.Report{}
	require.NoError(t, p.AddChange(schemachange.AddTag{Tag: "reviewed"}))
	assert.Nil(t, p.Migration)
	assert.Nil(t, p.RiskReport)
}

func TestApprove_DraftCannotBeApproved(t *testing.T) {
	p := newDraft(t)
	err := p.Approve("alice", false, proposal.DefaultApprovalPolicy())
	assert.Error(t, err)
}

func TestApprove_SatisfiesDefaultPolicy(t *testing.T) {
	p := newDraft(t)
	require.NoError(t, p.AddChange(schemachange.AddTag{Tag: "x"}))
	require.NoError(t, p.SubmitForReview())

	require.NoError(t, p.Approve("alice", false, proposal.DefaultApprovalPolicy()))
	assert.Equal(t, proposal.StatusApproved, p.Status)
}

func TestApprove_DuplicateApprovalIsConflict(t *testing.T) {
	p := newDraft(t)
	require.NoError(t, p.AddChange(schemachange.AddTag{Tag: "x"}))
	require.NoError(t, p.SubmitForReview())

	require.NoError(t, p.Approve("alice", false, proposal.ApprovalPolicy{MinApprovals: 2}))
	assert.ErrorAs(t, p.Approve("alice", false, proposal.ApprovalPolicy{MinApprovals: 2}), &sferrors.Conflict{})
	assert.Len(t, p.Approvals, 1)
	assert.Equal(t, proposal.StatusOpen, p.Status)
}

func TestApprove_SecurityGateBlocksUntilSecurityApproval(t *testing.T) {
	p := newDraft(t)
	col := schemachange.AddColumn{Column: schemachange.ColumnDef{
		Name: "ssn", DataType: "text", PiiClassification: "restricted",
	}}
	require.NoError(t, p.AddChange(col))
	require.NoError(t, p.SubmitForReview())

	require.NoError(t, p.Approve("alice", false, proposal.DefaultApprovalPolicy()))
	assert.Equal(t, proposal.StatusOpen, p.Status, "non-security approval alone must not satisfy the PII gate")

	require.NoError(t, p.Approve("bob", true, proposal.DefaultApprovalPolicy()))
	assert.Equal(t, proposal.StatusApproved, p.Status)
}

func TestReject_RequiresReason(t *testing.T) {
	p := newDraft(t)
	require.NoError(t, p.AddChange(schemachange.AddTag{Tag: "x"}))
	require.NoError(t, p.SubmitForReview())

	assert.Error(t, p.Reject(""))
	require.NoError(t, p.Reject("not ready"))
	assert.Equal(t, proposal.StatusRejected, p.Status)
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	p := newDraft(t)
	require.NoError(t, p.AddChange(schemachange.AddTag{Tag: "x"}))
	require.NoError(t, p.SubmitForReview())
	require.NoError(t, p.Reject("nope"))

	assert.True(t, p.IsTerminal())
	assert.Error(t, p.Approve("alice", false, proposal.DefaultApprovalPolicy()))
	assert.Error(t, p.Close())
}

func TestMarshalJSON_RoundTripsChangesWithKind(t *testing.T) {
	p := newDraft(t)
	addCol := schemachange.AddColumn{Column: schemachange.ColumnDef{Name: "email", DataType: "text", Nullable: true}}
	addCol.Schema, addCol.Table = "public", "users"
	require.NoError(t, p.AddChange(addCol))

	dropTbl := schemachange.DropTable{Cascade: true}
	dropTbl.Schema, dropTbl.Table = "public", "legacy_events"
	require.NoError(t, p.AddChange(dropTbl))

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var roundTripped proposal.Proposal
	require.NoError(t, json.Unmarshal(raw, &roundTripped))

	require.Len(t, roundTripped.Changes, 2)
	add, ok := roundTripped.Changes[0].(schemachange.AddColumn)
	require.True(t, ok)
	assert.Equal(t, "email", add.Column.Name)

	drop, ok := roundTripped.Changes[1].(schemachange.DropTable)
	require.True(t, ok)
	assert.True(t, drop.Cascade)

	assert.Equal(t, p.ID, roundTripped.ID)
	assert.Equal(t, p.Title, roundTripped.Title)
}

func baseUsersSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Tables: []schema.Table{
			{
				Schema: "public",
				Name:   "users",
				Columns: []schema.Column{
					{Name: "id", DataType: "uuid", OrdinalPosition: 1, IsPrimaryKey: true},
					{Name: "email", DataType: "text", OrdinalPosition: 2},
				},
				PrimaryKey: []string{"id"},
			},
		},
	}
}

func TestAnalyze_PopulatesDerivedStateFromChanges(t *testing.T) {
	p := newDraft(t)
	col := schemachange.AddColumn{Column: schemachange.ColumnDef{Name: "name", DataType: "text", Nullable: true}}
	col.Schema, col.Table = "public", "users"
	require.NoError(t, p.AddChange(col))

	base := baseUsersSnapshot()
	require.NoError(t, p.Analyze(base, nil, rules.DefaultRules()))

	require.NotNil(t, p.Diff)
	require.NotNil(t, p.RulesResult)
	require.NotNil(t, p.Migration)
	require.NotNil(t, p.RiskReport)
	assert.Len(t, p.Diff.Items, 1)
}

func TestAnalyze_RequiresChanges(t *testing.T) {
	p := newDraft(t)
	err := p.Analyze(baseUsersSnapshot(), nil, rules.DefaultRules())
	assert.Error(t, err)
}

func TestAnalyze_RequiresBaseSnapshot(t *testing.T) {
	p := newDraft(t)
	require.NoError(t, p.AddChange(schemachange.AddTag{Tag: "x"}))
	assert.Error(t, p.Analyze(nil, nil, rules.DefaultRules()))
}
