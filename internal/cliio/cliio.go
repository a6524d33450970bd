// SPDX-License-Identifier: Apache-2.0

// Package cliio reads and writes the JSON files the CLI passes schema
// snapshots and proposals through between invocations — the CLI's
// replacement for pgroll's Postgres-backed state package, since SchemaFlow's
// stores are in-memory and scoped to one long-running service (§5).
package cliio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/pkg/proposal"
	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/snapshotstore"
)

// History is the on-disk shape of a connection's snapshot version history,
// the file `snapshot list`/`snapshot baseline` read and write to survive
// across CLI invocations.
type History struct {
	ConnectionID uuid.UUID                    `json:"connectionId"`
	BaselineID   uuid.UUID                    `json:"baselineId,omitempty"`
	Snapshots    []snapshotstore.StoredSnapshot `json:"snapshots"`
}

func WriteHistory(path string, connectionID, baselineID uuid.UUID, entries []snapshotstore.StoredSnapshot) error {
	return writeJSON(path, History{ConnectionID: connectionID, BaselineID: baselineID, Snapshots: entries})
}

func ReadHistory(path string) (*History, error) {
	var h History
	if err := readJSON(path, &h); err != nil {
		return nil, fmt.Errorf("reading snapshot history %s: %w", path, err)
	}
	return &h, nil
}

func WriteSnapshot(path string, snap schema.Snapshot) error {
	return writeJSON(path, snap)
}

func ReadSnapshot(path string) (*schema.Snapshot, error) {
	var snap schema.Snapshot
	if err := readJSON(path, &snap); err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return &snap, nil
}

func WriteProposal(path string, p *proposal.Proposal) error {
	return writeJSON(path, p)
}

func ReadProposal(path string) (*proposal.Proposal, error) {
	var p proposal.Proposal
	if err := readJSON(path, &p); err != nil {
		return nil, fmt.Errorf("reading proposal %s: %w", path, err)
	}
	return &p, nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
