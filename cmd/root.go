// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/internal/config"
)

// Version is the schemaflow CLI version, overridable at link time the way
// pgroll overrides cmd.Version.
var Version = "development"

func init() {
	config.Init()
	config.BindFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "schemaflow",
	Short:        "Database-change governance for PostgreSQL-compatible catalogs",
	SilenceUsage: true,
	Version:      Version,
}

// Execute runs the schemaflow CLI's root command.
func Execute() error {
	rootCmd.AddCommand(introspectCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(auditLogCmd())

	return rootCmd.Execute()
}
