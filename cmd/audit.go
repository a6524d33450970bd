// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/cmd/flags"
	"github.com/schemaflow/schemaflow/internal/cliaudit"
	"github.com/schemaflow/schemaflow/pkg/auditstore"
)

func auditLogCmd() *cobra.Command {
	var resourceType, resourceID string
	var limit int

	c := &cobra.Command{
		Use:   "audit-log",
		Short: "Show entries recorded in the CLI's durable audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := cliaudit.ReadAll(flags.AuditLogFile())
			if err != nil {
				return err
			}

			filtered := entries
			if resourceType != "" || resourceID != "" {
				filtered = filterEntries(entries, auditstore.ResourceType(resourceType), resourceID)
			}
			if limit > 0 && len(filtered) > limit {
				filtered = filtered[len(filtered)-limit:]
			}

			raw, err := json.MarshalIndent(filtered, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	c.Flags().StringVar(&resourceType, "resource-type", "", "Filter by resource type (proposal, snapshot, rule)")
	c.Flags().StringVar(&resourceID, "resource-id", "", "Filter by resource ID")
	c.Flags().IntVar(&limit, "limit", 0, "Show only the N most recent matching entries (0 = all)")
	return c
}

func filterEntries(entries []auditstore.Entry, resourceType auditstore.ResourceType, resourceID string) []auditstore.Entry {
	out := make([]auditstore.Entry, 0, len(entries))
	for _, e := range entries {
		if resourceType != "" && e.ResourceType != resourceType {
			continue
		}
		if resourceID != "" && e.ResourceID != resourceID {
			continue
		}
		out = append(out, e)
	}
	return out
}
