// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/cmd/flags"
	"github.com/schemaflow/schemaflow/internal/cliaudit"
	"github.com/schemaflow/schemaflow/internal/cliio"
	"github.com/schemaflow/schemaflow/internal/rulesregistry"
	"github.com/schemaflow/schemaflow/pkg/auditstore"
	"github.com/schemaflow/schemaflow/pkg/changewire"
	"github.com/schemaflow/schemaflow/pkg/logging"
	"github.com/schemaflow/schemaflow/pkg/orchestrator"
	"github.com/schemaflow/schemaflow/pkg/proposal"
	"github.com/schemaflow/schemaflow/pkg/rules"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/schemachange"
	"github.com/schemaflow/schemaflow/pkg/semanticmap"
)

func proposalCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "proposal",
		Short: "Create, review and execute schema-change proposals",
	}
	c.AddCommand(proposalCreateCmd())
	c.AddCommand(proposalAddChangeCmd())
	c.AddCommand(proposalSubmitCmd())
	c.AddCommand(proposalApproveCmd())
	c.AddCommand(proposalRejectCmd())
	c.AddCommand(proposalAnalyzeCmd())
	c.AddCommand(proposalExecuteCmd())
	c.AddCommand(proposalRollbackCmd())
	return c
}

func proposalCreateCmd() *cobra.Command {
	var base, title, out string

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a new Draft proposal against a base snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := cliio.ReadSnapshot(base)
			if err != nil {
				return err
			}

			p := proposal.New(snap.ConnectionID, snap.ID, snap.Checksum, title)
			if err := cliio.WriteProposal(out, p); err != nil {
				return err
			}

			logAudit(auditstore.ActionProposalCreated, auditstore.ResourceProposal, p.ID.String(), "", map[string]interface{}{"title": title})
			pterm.Success.Printfln("created draft proposal %s -> %s", p.ID, out)
			return nil
		},
	}
	c.Flags().StringVar(&base, "base", "snapshot.json", "Path to the base snapshot")
	c.Flags().StringVar(&title, "title", "", "Proposal title")
	c.Flags().StringVar(&out, "out", "proposal.json", "Path to write the proposal")
	_ = c.MarkFlagRequired("title")
	return c
}

func proposalAddChangeCmd() *cobra.Command {
	var path, changeFile string

	c := &cobra.Command{
		Use:   "add-change",
		Short: "Append a SchemaChange (JSON or YAML) to a proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliio.ReadProposal(path)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(changeFile)
			if err != nil {
				return err
			}

			decoded, err := decodeChangeFile(changeFile, raw)
			if err != nil {
				return err
			}

			if err := p.AddChange(decoded); err != nil {
				return err
			}
			if err := cliio.WriteProposal(path, p); err != nil {
				return err
			}

			logAudit(auditstore.ActionChangeAdded, auditstore.ResourceProposal, p.ID.String(), "", map[string]interface{}{"kind": string(decoded.Kind())})
			pterm.Success.Printfln("added %s to %s (%d changes total)", decoded.Kind(), p.Title, len(p.Changes))
			return nil
		},
	}
	c.Flags().StringVar(&path, "proposal", "proposal.json", "Path to the proposal file")
	c.Flags().StringVar(&changeFile, "change", "", "Path to a change.json or change.yaml file")
	_ = c.MarkFlagRequired("change")
	return c
}

func proposalSubmitCmd() *cobra.Command {
	var path string
	c := &cobra.Command{
		Use:   "submit",
		Short: "Transition a Draft proposal to Open for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliio.ReadProposal(path)
			if err != nil {
				return err
			}
			from := p.Status
			if err := p.SubmitForReview(); err != nil {
				return err
			}
			if err := cliio.WriteProposal(path, p); err != nil {
				return err
			}
			logAudit(auditstore.ActionProposalTransition, auditstore.ResourceProposal, p.ID.String(), "", map[string]interface{}{"from": string(from), "to": string(p.Status)})
			pterm.Success.Printfln("%s is now %s", p.ID, p.Status)
			return nil
		},
	}
	c.Flags().StringVar(&path, "proposal", "proposal.json", "Path to the proposal file")
	return c
}

func proposalApproveCmd() *cobra.Command {
	var path, user string
	var isSecurity bool
	var minApprovals int

	c := &cobra.Command{
		Use:   "approve",
		Short: "Record an approval against an Open proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliio.ReadProposal(path)
			if err != nil {
				return err
			}
			policy := proposal.ApprovalPolicy{MinApprovals: minApprovals}
			if err := p.Approve(user, isSecurity, policy); err != nil {
				return err
			}
			if err := cliio.WriteProposal(path, p); err != nil {
				return err
			}
			logAudit(auditstore.ActionProposalTransition, auditstore.ResourceProposal, p.ID.String(), user, map[string]interface{}{"to": string(p.Status), "isSecurity": isSecurity})
			pterm.Success.Printfln("%s is now %s", p.ID, p.Status)
			return nil
		},
	}
	c.Flags().StringVar(&path, "proposal", "proposal.json", "Path to the proposal file")
	c.Flags().StringVar(&user, "user", "", "Approving user")
	c.Flags().BoolVar(&isSecurity, "security", false, "This approval counts as the security-team sign-off")
	c.Flags().IntVar(&minApprovals, "min-approvals", flags.DefaultApprovals(), "Approvals required before the proposal auto-approves")
	_ = c.MarkFlagRequired("user")
	return c
}

func proposalRejectCmd() *cobra.Command {
	var path, reason string
	c := &cobra.Command{
		Use:   "reject",
		Short: "Reject an Open proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliio.ReadProposal(path)
			if err != nil {
				return err
			}
			if err := p.Reject(reason); err != nil {
				return err
			}
			if err := cliio.WriteProposal(path, p); err != nil {
				return err
			}
			logAudit(auditstore.ActionProposalTransition, auditstore.ResourceProposal, p.ID.String(), "", map[string]interface{}{"to": string(p.Status), "reason": reason})
			pterm.Warning.Printfln("%s rejected: %s", p.ID, reason)
			return nil
		},
	}
	c.Flags().StringVar(&path, "proposal", "proposal.json", "Path to the proposal file")
	c.Flags().StringVar(&reason, "reason", "", "Rejection reason")
	_ = c.MarkFlagRequired("reason")
	return c
}

func proposalAnalyzeCmd() *cobra.Command {
	var path, base string

	c := &cobra.Command{
		Use:   "analyze",
		Short: "Compute diff, rule violations, generated migration and risk report for a proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliio.ReadProposal(path)
			if err != nil {
				return err
			}
			snap, err := cliio.ReadSnapshot(base)
			if err != nil {
				return err
			}

			reg, err := rulesregistry.Load(flags.RulesRegistryPath())
			if err != nil {
				return err
			}
			activeRules := reg.Apply(rules.DefaultRules())

			sm := buildSemanticMapBestEffort(cmd.Context(), snap)

			if err := p.Analyze(snap, sm, activeRules); err != nil {
				return err
			}
			if err := cliio.WriteProposal(path, p); err != nil {
				return err
			}

			logAudit(auditstore.ActionRiskAnalyzed, auditstore.ResourceProposal, p.ID.String(), "", map[string]interface{}{"score": p.RiskReport.Score, "level": string(p.RiskReport.Level)})
			logAudit(auditstore.ActionMigrationGenerated, auditstore.ResourceProposal, p.ID.String(), "", map[string]interface{}{"statementCount": len(p.Migration.Statements)})

			pterm.Info.Printfln("risk score %.1f (%s), %d rule violations, %d statements generated",
				p.RiskReport.Score, p.RiskReport.Level, len(p.RulesResult.Violations), len(p.Migration.Statements))
			if p.RulesResult.HasBlockers {
				pterm.Warning.Println("proposal has Block-severity rule violations; execute will require overrides")
			}
			return nil
		},
	}
	c.Flags().StringVar(&path, "proposal", "proposal.json", "Path to the proposal file")
	c.Flags().StringVar(&base, "base", "snapshot.json", "Path to the base snapshot")
	return c
}

// buildSemanticMapBestEffort enriches the risk report with table size and
// hot-spot stats when a live connection is configured, so the CLI's risk
// scores reflect §4.9's size/lock-duration factors instead of always
// degrading to the zero-value floor. A missing or unreachable connection is
// not an error here: Analyze treats a nil Map as safe-default stats, and
// `analyze` is documented as a pure, offline step that works from snapshot
// files alone.
func buildSemanticMapBestEffort(ctx context.Context, snap *schema.Snapshot) *semanticmap.Map {
	conn, err := openDB("")
	if err != nil {
		return nil
	}
	defer conn.Close()

	sm, err := semanticmap.Build(ctx, conn, snap)
	if err != nil {
		return nil
	}
	return sm
}

func proposalExecuteCmd() *cobra.Command {
	var path, base string
	var dryRun bool
	var overrideFlags []string

	c := &cobra.Command{
		Use:   "execute",
		Short: "Execute an Approved proposal's generated migration against the live catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliio.ReadProposal(path)
			if err != nil {
				return err
			}
			snap, err := cliio.ReadSnapshot(base)
			if err != nil {
				return err
			}
			overrides, err := parseOverrides(overrideFlags)
			if err != nil {
				return err
			}

			conn, err := openDB("")
			if err != nil {
				return err
			}
			defer conn.Close()

			audit := auditstore.New()
			orch := orchestrator.New(logging.New(), audit)

			result, err := orch.Execute(cmd.Context(), conn, p, snap, dryRun, overrides)
			_ = cliaudit.AppendAll(flags.AuditLogFile(), audit)
			if err != nil {
				return err
			}

			if !dryRun && result.Success {
				if mergeErr := p.MarkMerged(); mergeErr != nil {
					return mergeErr
				}
			}
			if err := cliio.WriteProposal(path, p); err != nil {
				return err
			}

			raw, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(raw))
			return nil
		},
	}
	c.Flags().StringVar(&path, "proposal", "proposal.json", "Path to the proposal file")
	c.Flags().StringVar(&base, "base", "snapshot.json", "Path to the base snapshot")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Validate statements without opening a write transaction")
	c.Flags().StringArrayVar(&overrideFlags, "override", nil, "ruleID:user:justification, repeatable, to bypass a Block-severity violation")
	return c
}

func proposalRollbackCmd() *cobra.Command {
	var path string

	c := &cobra.Command{
		Use:   "rollback",
		Short: "Manually roll back a Merged proposal's migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliio.ReadProposal(path)
			if err != nil {
				return err
			}

			conn, err := openDB("")
			if err != nil {
				return err
			}
			defer conn.Close()

			audit := auditstore.New()
			orch := orchestrator.New(logging.New(), audit)

			result, err := orch.Rollback(cmd.Context(), conn, p)
			_ = cliaudit.AppendAll(flags.AuditLogFile(), audit)
			if err != nil {
				return err
			}

			raw, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(raw))
			return nil
		},
	}
	c.Flags().StringVar(&path, "proposal", "proposal.json", "Path to the proposal file")
	return c
}

func parseOverrides(flagValues []string) ([]rules.OverrideRecord, error) {
	out := make([]rules.OverrideRecord, 0, len(flagValues))
	for _, v := range flagValues {
		parts := strings.SplitN(v, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid --override %q, expected ruleID:user:justification", v)
		}
		out = append(out, rules.OverrideRecord{RuleID: parts[0], OverriddenBy: parts[1], Justification: parts[2]})
	}
	return out, nil
}

func decodeChangeFile(path string, raw []byte) (schemachange.Change, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return changewire.DecodeYAML(raw)
	}
	return changewire.DecodeJSON(raw)
}

func logAudit(action auditstore.Action, resourceType auditstore.ResourceType, resourceID, user string, details map[string]interface{}) {
	store := auditstore.New()
	store.Append(auditstore.Entry{Action: action, ResourceType: resourceType, ResourceID: resourceID, User: user, Details: details})
	_ = cliaudit.AppendAll(flags.AuditLogFile(), store)
}
