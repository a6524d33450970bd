// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/internal/cliio"
	"github.com/schemaflow/schemaflow/pkg/diffengine"
	"github.com/schemaflow/schemaflow/pkg/introspect"
	"github.com/schemaflow/schemaflow/pkg/snapshotstore"
)

func snapshotCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage versioned schema snapshots for a connection",
	}
	c.AddCommand(snapshotCreateCmd())
	c.AddCommand(snapshotListCmd())
	c.AddCommand(snapshotDiffCmd())
	c.AddCommand(snapshotBaselineCmd())
	return c
}

func snapshotCreateCmd() *cobra.Command {
	var connectionID, history, label string

	c := &cobra.Command{
		Use:   "create",
		Short: "Capture a new schema snapshot and append it to a connection's version history",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDB("")
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

			store := snapshotstore.New()
			if existing, loadErr := cliio.ReadHistory(history); loadErr == nil {
				store.Import(connID, existing.Snapshots, existing.BaselineID)
			}

			saved, err := store.Save(*snap, label)
			if err != nil {
				return err
			}

			entries, baselineID := store.Export(connID)
			if err := cliio.WriteHistory(history, connID, baselineID, entries); err != nil {
				return err
			}

			pterm.Success.Printfln("saved snapshot %s as version %d (checksum %s)", saved.ID, saved.Version, saved.Checksum)
			return nil
		},
	}

	c.Flags().StringVar(&connectionID, "connection-id", "", "Connection UUID (defaults to a new one on first snapshot)")
	c.Flags().StringVar(&history, "history", "snapshot-history.json", "Path to the connection's version history file")
	c.Flags().StringVar(&label, "label", "", "Optional human label for this snapshot")
	return c
}

func snapshotListCmd() *cobra.Command {
	var history string

	c := &cobra.Command{
		Use:   "list",
		Short: "List every snapshot version recorded in a history file",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cliio.ReadHistory(history)
			if err != nil {
				return err
			}

			store := snapshotstore.New()
			store.Import(h.ConnectionID, h.Snapshots, h.BaselineID)

			meta := store.List(h.ConnectionID)
			raw, err := json.MarshalIndent(meta, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	c.Flags().StringVar(&history, "history", "snapshot-history.json", "Path to the connection's version history file")
	return c
}

func snapshotDiffCmd() *cobra.Command {
	var from, to string

	c := &cobra.Command{
		Use:   "diff",
		Short: "Diff two snapshot files",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromSnap, err := cliio.ReadSnapshot(from)
			if err != nil {
				return err
			}
			toSnap, err := cliio.ReadSnapshot(to)
			if err != nil {
				return err
			}

			d := diffengine.Diff(fromSnap, toSnap)
			raw, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	c.Flags().StringVar(&from, "from", "", "Path to the base snapshot")
	c.Flags().StringVar(&to, "to", "", "Path to the comparison snapshot")
	_ = c.MarkFlagRequired("from")
	_ = c.MarkFlagRequired("to")
	return c
}

func snapshotBaselineCmd() *cobra.Command {
	var history, snapshotID string

	c := &cobra.Command{
		Use:   "baseline",
		Short: "Set the baseline snapshot a connection's drift checks compare against",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cliio.ReadHistory(history)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(snapshotID)
			if err != nil {
				return fmt.Errorf("invalid --snapshot-id: %w", err)
			}

			store := snapshotstore.New()
			store.Import(h.ConnectionID, h.Snapshots, h.BaselineID)
			if err := store.SetBaseline(h.ConnectionID, id); err != nil {
				return err
			}

			entries, baselineID := store.Export(h.ConnectionID)
			if err := cliio.WriteHistory(history, h.ConnectionID, baselineID, entries); err != nil {
				return err
			}
			pterm.Success.Printfln("baseline set to %s", id)
			return nil
		},
	}
	c.Flags().StringVar(&history, "history", "snapshot-history.json", "Path to the connection's version history file")
	c.Flags().StringVar(&snapshotID, "snapshot-id", "", "Snapshot UUID to set as baseline")
	_ = c.MarkFlagRequired("snapshot-id")
	return c
}
