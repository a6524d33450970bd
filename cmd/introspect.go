// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/internal/cliio"
	"github.com/schemaflow/schemaflow/pkg/introspect"
)

func introspectCmd() *cobra.Command {
	var connectionID string
	var out string
	var schemaName string

	c := &cobra.Command{
		Use:   "introspect",
		Short: "Capture a point-in-time schema snapshot from a live catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDB(schemaName)
			if err != nil {
				return err
			}
			defer conn.Close()

			connID := uuid.New()
			if connectionID != "" {
				connID, err = uuid.Parse(connectionID)
				if err != nil {
					return fmt.Errorf("invalid --connection-id: %w", err)
				}
			}

			snap, err := introspect.New(conn).Capture(cmd.Context(), connID)
			if err != nil {
				return err
			}

			if err := cliio.WriteSnapshot(out, *snap); err != nil {
				return err
			}
			pterm.Success.Printfln("captured snapshot %s (checksum %s) -> %s", snap.ID, snap.Checksum, out)
			return nil
		},
	}

	c.Flags().StringVar(&connectionID, "connection-id", "", "Connection UUID this snapshot belongs to (defaults to a new one)")
	c.Flags().StringVar(&out, "out", "snapshot.json", "Path to write the captured snapshot")
	c.Flags().StringVar(&schemaName, "schema", "", "Set search_path to this schema on the connection (introspection still reads all non-catalog schemas)")
	return c
}
