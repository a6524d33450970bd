// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/cmd/flags"
	"github.com/schemaflow/schemaflow/internal/rulesregistry"
	"github.com/schemaflow/schemaflow/pkg/rules"
)

func rulesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and export the active governance rule set",
	}
	c.AddCommand(rulesListCmd())
	c.AddCommand(rulesExportCmd())
	return c
}

// ruleSummary is the JSON-printable projection of a rules.Rule: Rule.Check
// is a function value and can't be marshalled, so listing rules means
// printing this instead of the rule itself.
type ruleSummary struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Severity rules.Severity `json:"severity"`
}

func rulesListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List the governance rules active after applying the rules registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := rulesregistry.Load(flags.RulesRegistryPath())
			if err != nil {
				return err
			}
			active := reg.Apply(rules.DefaultRules())

			summaries := make([]ruleSummary, len(active))
			for i, r := range active {
				summaries[i] = ruleSummary{ID: r.ID, Name: r.Name, Severity: r.Severity}
			}

			raw, err := json.MarshalIndent(summaries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	return c
}

func rulesExportCmd() *cobra.Command {
	var out string

	c := &cobra.Command{
		Use:   "export",
		Short: "Write a rules.yaml seeded from the built-in rule defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := rulesregistry.Registry{}
			for _, r := range rules.DefaultRules() {
				enabled := true
				reg[r.ID] = rulesregistry.Entry{Enabled: &enabled, Severity: r.Severity}
			}

			raw, err := rulesregistry.Marshal(reg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, raw, 0o644); err != nil {
				return err
			}
			pterm.Success.Printfln("wrote %d rule overrides to %s", len(reg), out)
			return nil
		},
	}
	c.Flags().StringVar(&out, "out", "rules.yaml", "Path to write the rules registry file")
	return c
}
