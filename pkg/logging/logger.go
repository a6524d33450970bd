// SPDX-License-Identifier: Apache-2.0

// Package logging provides the structured logger the governance kernel uses
// for the proposal lifecycle, adapted from pgroll's pterm-backed migration
// logger.
package logging

import "github.com/pterm/pterm"

// Logger is responsible for logging every step of a proposal's lifecycle,
// from creation through execution or rollback.
type Logger interface {
	LogProposalCreated(id, title string)
	LogProposalTransition(id, from, to string)
	LogMigrationGenerated(proposalID string, statementCount int)
	LogExecutionStart(proposalID string, dryRun bool)
	LogExecutionComplete(proposalID string)
	LogExecutionRollback(proposalID string, reason string)

	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type kernelLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

// New returns a Logger backed by pterm's default structured logger.
func New() Logger {
	return &kernelLogger{logger: pterm.DefaultLogger}
}

// NewNoop returns a Logger that discards everything, for tests and for pure
// computations like Proposal.UpdateVirtualSchema-style dry runs.
func NewNoop() Logger {
	return &noopLogger{}
}

func (l *kernelLogger) LogProposalCreated(id, title string) {
	l.logger.Info("proposal created", l.logger.Args("id", id, "title", title))
}

func (l *kernelLogger) LogProposalTransition(id, from, to string) {
	l.logger.Info("proposal transitioned", l.logger.Args("id", id, "from", from, "to", to))
}

func (l *kernelLogger) LogMigrationGenerated(proposalID string, statementCount int) {
	l.logger.Info("migration generated", l.logger.Args("proposal_id", proposalID, "statement_count", statementCount))
}

func (l *kernelLogger) LogExecutionStart(proposalID string, dryRun bool) {
	l.logger.Info("execution starting", l.logger.Args("proposal_id", proposalID, "dry_run", dryRun))
}

func (l *kernelLogger) LogExecutionComplete(proposalID string) {
	l.logger.Info("execution complete", l.logger.Args("proposal_id", proposalID))
}

func (l *kernelLogger) LogExecutionRollback(proposalID string, reason string) {
	l.logger.Warn("execution rolled back", l.logger.Args("proposal_id", proposalID, "reason", reason))
}

func (l *kernelLogger) Info(msg string, args ...any)  { l.logger.Info(msg, l.logger.Args(args...)) }
func (l *kernelLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, l.logger.Args(args...)) }
func (l *kernelLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.logger.Args(args...)) }

func (l *noopLogger) LogProposalCreated(id, title string)                       {}
func (l *noopLogger) LogProposalTransition(id, from, to string)                 {}
func (l *noopLogger) LogMigrationGenerated(proposalID string, statementCount int) {}
func (l *noopLogger) LogExecutionStart(proposalID string, dryRun bool)          {}
func (l *noopLogger) LogExecutionComplete(proposalID string)                    {}
func (l *noopLogger) LogExecutionRollback(proposalID string, reason string)     {}
func (l *noopLogger) Info(msg string, args ...any)                             {}
func (l *noopLogger) Warn(msg string, args ...any)                             {}
func (l *noopLogger) Error(msg string, args ...any)                            {}
