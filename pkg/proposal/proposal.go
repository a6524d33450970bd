// SPDX-License-Identifier: Apache-2.0

// Package proposal implements the Proposal aggregate and its state machine
// (§4.6): Draft → Open → {Approved | Rejected} → Merged | Closed, plus the
// comment thread and PII-gated approval policy the distillation left
// implicit.
package proposal

import (
	"time"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/pkg/diffengine"
	"github.com/schemaflow/schemaflow/pkg/migrationgen"
	"github.com/schemaflow/schemaflow/pkg/risk"
	"github.com/schemaflow/schemaflow/pkg/rules"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// Status is one state of the proposal lifecycle.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusOpen     Status = "open"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusMerged   Status = "merged"
	StatusClosed   Status = "closed"
)

// Approval records one reviewer's sign-off. Approvals are unique by user.
type Approval struct {
	User       string    `json:"user"`
	ApprovedAt time.Time `json:"approvedAt"`
	IsSecurity bool      `json:"isSecurity"`
}

// Comment is one entry in a proposal's discussion thread.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Proposal is the aggregate root for one schema-change proposal.
type Proposal struct {
	ID              uuid.UUID               `json:"id"`
	ConnectionID    uuid.UUID               `json:"connectionId"`
	Title           string                  `json:"title"`
	Status          Status                  `json:"status"`
	Changes         []schemachange.Change   `json:"changes"`
	BaseSnapshotID  uuid.UUID               `json:"baseSnapshotId"`
	BaseChecksum    string                  `json:"baseChecksum"`
	Approvals       []Approval              `json:"approvals,omitempty"`
	RejectionReason string                  `json:"rejectionReason,omitempty"`
	Comments        []Comment               `json:"comments,omitempty"`
	Diff            *diffengine.SchemaDiff  `json:"diff,omitempty"`
	RulesResult     *rules.Result           `json:"rulesResult,omitempty"`
	Migration       *migrationgen.Artifact  `json:"migration,omitempty"`
	RiskReport      *risk.Report            `json:"riskReport,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// ApprovalPolicy decides whether a proposal has satisfied its approval
// requirements. The default requires one approval from any reviewer, plus
// a security-team approval whenever the proposal touches a gated column.
type ApprovalPolicy struct {
	MinApprovals int
}

// DefaultApprovalPolicy is the §4.6 default: one approval from any
// reviewer.
func DefaultApprovalPolicy() ApprovalPolicy {
	return ApprovalPolicy{MinApprovals: 1}
}

// SecurityTeamApprovalRequired reports whether any change in the proposal
// touches a column whose PII classification requires the security-team
// approval gate.
func SecurityTeamApprovalRequired(changes []schemachange.Change) bool {
	for _, c := range changes {
		switch change := c.(type) {
		case schemachange.SetPiiClassification:
			if schema.PiiClassification(change.Classification).RequiresSecurityApproval() {
				return true
			}
		case schemachange.AddColumn:
			if schema.PiiClassification(change.Column.PiiClassification).RequiresSecurityApproval() {
				return true
			}
		case schemachange.CreateTable:
			for _, col := range change.Columns {
				if schema.PiiClassification(col.PiiClassification).RequiresSecurityApproval() {
					return true
				}
			}
		}
	}
	return false
}

// Satisfied reports whether the policy is met given the proposal's current
// approvals and changes.
func (p ApprovalPolicy) Satisfied(changes []schemachange.Change, approvals []Approval) bool {
	if len(approvals) < p.MinApprovals {
		return false
	}
	if !SecurityTeamApprovalRequired(changes) {
		return true
	}
	for _, a := range approvals {
		if a.IsSecurity {
			return true
		}
	}
	return false
}

// New creates a Draft proposal against a frozen base snapshot. BaseChecksum
// and BaseSnapshotID never change for the life of the proposal.
func New(connectionID, baseSnapshotID uuid.UUID, baseChecksum, title string) *Proposal {
	now := nowFunc()
	return &Proposal{
		ID:             uuid.New(),
		ConnectionID:   connectionID,
		Title:          title,
		Status:         StatusDraft,
		BaseSnapshotID: baseSnapshotID,
		BaseChecksum:   baseChecksum,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// nowFunc is a seam for tests; production code always calls time.Now.
var nowFunc = time.Now

// AddChange appends a change to the proposal. Per §4.6's invariant, any
// mutation to Changes invalidates any previously computed migration and
// risk report, since both are only valid for the change set they were
// computed from.
func (p *Proposal) AddChange(c schemachange.Change) error {
	if p.Status != StatusDraft && p.Status != StatusOpen {
		return sferrors.State{From: string(p.Status), To: string(p.Status), Action: "add change"}
	}
	p.Changes = append(p.Changes, c)
	p.invalidateDerived()
	return nil
}

func (p *Proposal) invalidateDerived() {
	p.Migration = nil
	p.RiskReport = nil
	p.UpdatedAt = nowFunc()
}

// SubmitForReview transitions Draft → Open. Requires a non-empty change
// set.
func (p *Proposal) SubmitForReview() error {
	if p.Status != StatusDraft {
		return sferrors.State{From: string(p.Status), To: string(StatusOpen), Action: "submit for review"}
	}
	if len(p.Changes) == 0 {
		return sferrors.Validation{Reason: "cannot submit a proposal with no changes"}
	}
	p.Status = StatusOpen
	p.UpdatedAt = nowFunc()
	return nil
}

// Approve records an approval from `user` and, if the policy is now
// satisfied, transitions Open → Approved. Approvals are unique by user; a
// second approval from the same user is a Conflict and changes nothing.
func (p *Proposal) Approve(user string, isSecurity bool, policy ApprovalPolicy) error {
	if p.Status != StatusOpen {
		return sferrors.State{From: string(p.Status), To: string(StatusApproved), Action: "approve"}
	}
	for _, a := range p.Approvals {
		if a.User == user {
			return sferrors.Conflict{Reason: "duplicate approval", Detail: user}
		}
	}
	p.Approvals = append(p.Approvals, Approval{User: user, ApprovedAt: nowFunc(), IsSecurity: isSecurity})
	p.UpdatedAt = nowFunc()

	if policy.Satisfied(p.Changes, p.Approvals) {
		p.Status = StatusApproved
	}
	return nil
}

// Reject transitions Open → Rejected with a mandatory reason.
func (p *Proposal) Reject(reason string) error {
	if p.Status != StatusOpen {
		return sferrors.State{From: string(p.Status), To: string(StatusRejected), Action: "reject"}
	}
	if reason == "" {
		return sferrors.Validation{Reason: "rejection requires a reason"}
	}
	p.Status = StatusRejected
	p.RejectionReason = reason
	p.UpdatedAt = nowFunc()
	return nil
}

// MarkMerged transitions Approved → Merged. The CLI's `proposal execute`
// calls this after a successful non-dry-run execution.
func (p *Proposal) MarkMerged() error {
	if p.Status != StatusApproved {
		return sferrors.State{From: string(p.Status), To: string(StatusMerged), Action: "merge"}
	}
	p.Status = StatusMerged
	p.UpdatedAt = nowFunc()
	return nil
}

// Close transitions any non-terminal status to Closed.
func (p *Proposal) Close() error {
	if p.IsTerminal() {
		return sferrors.State{From: string(p.Status), To: string(StatusClosed), Action: "close"}
	}
	p.Status = StatusClosed
	p.UpdatedAt = nowFunc()
	return nil
}

// IsTerminal reports whether the proposal is in a state with no further
// transitions (Rejected, Merged, Closed).
func (p *Proposal) IsTerminal() bool {
	switch p.Status {
	case StatusRejected, StatusMerged, StatusClosed:
		return true
	default:
		return false
	}
}

// AddComment appends a comment to the discussion thread. Comments are
// allowed in any status, including terminal ones, since post-mortems on a
// closed proposal are a normal workflow.
func (p *Proposal) AddComment(author, body string) Comment {
	c := Comment{ID: uuid.New(), Author: author, Body: body, CreatedAt: nowFunc()}
	p.Comments = append(p.Comments, c)
	p.UpdatedAt = nowFunc()
	return c
}
