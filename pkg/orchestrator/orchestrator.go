// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the Orchestrator (§4.10): pre-flight
// drift verification against the live catalog, dry-run statement
// validation, transactional execution with automatic rollback, and manual
// rollback of a merged proposal. It is the one component that performs real
// I/O against the governed database, as distinct from the pure diff/rules/
// risk computations.
package orchestrator

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/schemaflow/schemaflow/pkg/auditstore"
	"github.com/schemaflow/schemaflow/pkg/db"
	"github.com/schemaflow/schemaflow/pkg/introspect"
	"github.com/schemaflow/schemaflow/pkg/logging"
	"github.com/schemaflow/schemaflow/pkg/proposal"
	"github.com/schemaflow/schemaflow/pkg/rules"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// ExecutionResult is the outcome of an execute or rollback call (§3's
// `execution_result`).
type ExecutionResult struct {
	Success            bool   `json:"success"`
	DryRun             bool   `json:"dryRun"`
	WasRolledBack      bool   `json:"wasRolledBack"`
	Error              string `json:"error,omitempty"`
	RollbackSQL        string `json:"rollbackSql,omitempty"`
	ExecutedStatements int    `json:"executedStatements"`
	DurationMS         int64  `json:"durationMs"`
	Cancelled          bool   `json:"cancelled"`
}

// Orchestrator executes approved proposals against a live connection.
type Orchestrator struct {
	logger logging.Logger
	audit  *auditstore.Store
}

// New returns an Orchestrator that logs via logger and writes every
// execution/rollback to audit.
func New(logger logging.Logger, audit *auditstore.Store) *Orchestrator {
	return &Orchestrator{logger: logger, audit: audit}
}

// nowFunc is a seam for tests; production code always calls time.Now.
var nowFunc = time.Now

// Execute runs the pre-flight drift check, then either a dry-run
// validation pass or the real transactional apply, per §4.10. baseSnapshot
// must be the snapshot the proposal was created against — callers
// re-fetch it themselves so the Orchestrator observes one consistent read
// (§5) rather than trusting a possibly-stale copy embedded in p.
func (o *Orchestrator) Execute(ctx context.Context, conn db.DB, p *proposal.Proposal, baseSnapshot *schema.Snapshot, dryRun bool, overrides []rules.OverrideRecord) (*ExecutionResult, error) {
	if p.Status != proposal.StatusApproved {
		return nil, sferrors.State{From: string(p.Status), To: "executed", Action: "execute"}
	}
	if p.Migration == nil {
		return nil, sferrors.Validation{Reason: "proposal has no generated migration"}
	}

	o.logger.LogExecutionStart(p.ID.String(), dryRun)

	// The pre-flight drift check always runs before execution is refused on
	// rules grounds (S2): a Block-severity violation fails the request, but
	// the caller still learns whether the proposal needs rebasing first.
	if err := o.preflight(ctx, conn, p, baseSnapshot); err != nil {
		return nil, err
	}
	if p.RulesResult != nil && !rules.CanProceedWithOverrides(p.RulesResult, overrides) {
		return nil, sferrors.Validation{Reason: "proposal has unresolved Block-severity rule violations"}
	}

	start := nowFunc()
	var result *ExecutionResult
	var err error
	if dryRun {
		result, err = o.dryRun(ctx, conn, p)
	} else {
		result, err = o.apply(ctx, conn, p)
	}
	if result != nil {
		result.DryRun = dryRun
		result.DurationMS = nowFunc().Sub(start).Milliseconds()
	}

	o.recordExecution(p, result, err, overrides)
	if err != nil {
		return result, err
	}
	o.logger.LogExecutionComplete(p.ID.String())
	return result, nil
}

// preflight computes the live fast checksum and compares it against the
// base snapshot's — the §4.10 step that forces a rebase if the database
// moved under the proposal. FastChecksum deliberately omits FK/index data
// (§4.10's "canonical table:col:type:nullable concatenation"), so both
// sides of the comparison are computed the same way, never mixed with the
// full ComputeChecksum the Snapshot Store persists.
func (o *Orchestrator) preflight(ctx context.Context, conn db.DB, p *proposal.Proposal, baseSnapshot *schema.Snapshot) error {
	live, err := introspect.New(conn).FastChecksum(ctx)
	if err != nil {
		if db.IsPoolExhausted(err) {
			return sferrors.PoolExhausted{}
		}
		return sferrors.Database{Op: "pre-flight checksum", Err: err}
	}

	expected := schema.FastChecksum(baseSnapshot.Tables)
	if live != expected {
		return sferrors.SchemaDrift{Expected: expected, Actual: live}
	}
	return nil
}

// dryRun validates every statement against the live connection without
// ever opening a write transaction: EXPLAIN for statements that look like
// DML, PREPARE immediately followed by DEALLOCATE for DDL, which Postgres
// cannot EXPLAIN (§4.10, §5: "dry-run never holds a write transaction").
func (o *Orchestrator) dryRun(ctx context.Context, conn db.DB, p *proposal.Proposal) (*ExecutionResult, error) {
	for i, stmt := range p.Migration.Statements {
		if err := ctx.Err(); err != nil {
			return &ExecutionResult{Success: false, Cancelled: true}, sferrors.Internal{Reason: "dry run cancelled", Cancelled: true}
		}

		if isDMLStatement(stmt.ForwardSQL) {
			rows, err := conn.QueryContext(ctx, "EXPLAIN "+stmt.ForwardSQL)
			if err != nil {
				return &ExecutionResult{Success: false, ExecutedStatements: i}, sferrors.Database{Op: "dry-run EXPLAIN", Err: err}
			}
			rows.Close()
			continue
		}

		const prepName = "schemaflow_dry_run"
		if _, err := conn.ExecContext(ctx, "PREPARE "+prepName+" AS "+stmt.ForwardSQL); err != nil {
			return &ExecutionResult{Success: false, ExecutedStatements: i}, sferrors.Database{Op: "dry-run PREPARE", Err: err}
		}
		if _, err := conn.ExecContext(ctx, "DEALLOCATE "+prepName); err != nil {
			return &ExecutionResult{Success: false, ExecutedStatements: i}, sferrors.Database{Op: "dry-run DEALLOCATE", Err: err}
		}
	}
	return &ExecutionResult{Success: true, ExecutedStatements: len(p.Migration.Statements)}, nil
}

func isDMLStatement(sql string) bool {
	trimmed := strings.TrimSpace(strings.ToUpper(sql))
	for _, prefix := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// apply runs every statement in a single transaction. Any failure rolls the
// whole transaction back and returns the original error unchanged,
// alongside the generated rollback SQL for manual use (§4.10).
func (o *Orchestrator) apply(ctx context.Context, conn db.DB, p *proposal.Proposal) (*ExecutionResult, error) {
	executed := 0
	var execErr error

	txErr := conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for i, stmt := range p.Migration.Statements {
			if cerr := ctx.Err(); cerr != nil {
				execErr = sferrors.Internal{Reason: "execution cancelled", Cancelled: true}
				return execErr
			}
			if _, err := tx.ExecContext(ctx, stmt.ForwardSQL); err != nil {
				execErr = err
				return err
			}
			executed = i + 1
		}
		return nil
	})

	if txErr != nil {
		if execErr == nil {
			execErr = txErr
		}
		if db.IsPoolExhausted(txErr) {
			return &ExecutionResult{Success: false, WasRolledBack: true, ExecutedStatements: executed, RollbackSQL: p.Migration.RollbackSQL, Error: txErr.Error()}, sferrors.PoolExhausted{}
		}
		return &ExecutionResult{
			Success:            false,
			WasRolledBack:      true,
			ExecutedStatements: executed,
			RollbackSQL:        p.Migration.RollbackSQL,
			Error:              txErr.Error(),
		}, execErr
	}

	return &ExecutionResult{Success: true, ExecutedStatements: len(p.Migration.Statements)}, nil
}

// Rollback manually re-applies a merged proposal's rollback SQL in its own
// transaction (§4.10). Only permitted when Merged and rollback_sql is
// non-empty. Generate's RollbackSQL joins the rollbacks of the reversible
// statements only; a destructive statement contributes nothing, so for a
// proposal that mixes both, this undoes the reversible part alone.
func (o *Orchestrator) Rollback(ctx context.Context, conn db.DB, p *proposal.Proposal) (*ExecutionResult, error) {
	if p.Status != proposal.StatusMerged {
		return nil, sferrors.State{From: string(p.Status), To: string(p.Status), Action: "rollback"}
	}
	if p.Migration == nil || p.Migration.RollbackSQL == "" {
		return nil, sferrors.Validation{Reason: "proposal has no rollback SQL available"}
	}

	start := nowFunc()
	txErr := conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, p.Migration.RollbackSQL)
		return err
	})

	result := &ExecutionResult{WasRolledBack: txErr == nil, Success: txErr == nil, DurationMS: nowFunc().Sub(start).Milliseconds()}
	if txErr != nil {
		result.Error = txErr.Error()
	}

	o.audit.Append(auditstore.Entry{
		Action:       auditstore.ActionProposalRolledBack,
		ResourceType: auditstore.ResourceProposal,
		ResourceID:   p.ID.String(),
		Details:      map[string]interface{}{"success": result.Success},
	})
	if txErr != nil {
		o.logger.LogExecutionRollback(p.ID.String(), txErr.Error())
		return result, txErr
	}
	o.logger.LogExecutionRollback(p.ID.String(), "manual rollback requested")
	return result, nil
}

func (o *Orchestrator) recordExecution(p *proposal.Proposal, result *ExecutionResult, err error, overrides []rules.OverrideRecord) {
	details := map[string]interface{}{}
	if result != nil {
		details["success"] = result.Success
		details["dryRun"] = result.DryRun
		details["executedStatements"] = result.ExecutedStatements
		details["durationMs"] = result.DurationMS
	}
	if err != nil {
		details["error"] = err.Error()
	}

	o.audit.Append(auditstore.Entry{
		Action:       auditstore.ActionProposalExecuted,
		ResourceType: auditstore.ResourceProposal,
		ResourceID:   p.ID.String(),
		Details:      details,
	})

	for _, ov := range overrides {
		o.audit.Append(auditstore.Entry{
			Action:       auditstore.ActionRuleOverridden,
			ResourceType: auditstore.ResourceProposal,
			ResourceID:   p.ID.String(),
			User:         ov.OverriddenBy,
			Details:      map[string]interface{}{"ruleId": ov.RuleID, "justification": ov.Justification},
		})
	}
}
