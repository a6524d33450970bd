// SPDX-License-Identifier: Apache-2.0

// Package snapshotstore implements the Snapshot Store (§4.2): version
// assignment, retrieval, baseline tracking and retention pruning for a
// connection's schema snapshots. Writes (Save, SetBaseline, Prune, Import)
// take the exclusive lock; reads take a shared lock so concurrent readers
// never block each other (§5).
package snapshotstore

import (
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/pkg/schema"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// Metadata is the lightweight listing entry returned by List, cheaper to
// produce than a full Snapshot when a caller just wants to see what exists.
type Metadata struct {
	ID         uuid.UUID `json:"id"`
	Version    int       `json:"version"`
	Checksum   string    `json:"checksum"`
	Label      string    `json:"label,omitempty"`
	CapturedAt string    `json:"capturedAt"`
}

type entry struct {
	snapshot schema.Snapshot
	label    string
}

// Store is the in-memory Snapshot Store. The zero value is not usable; use
// New.
type Store struct {
	mu sync.RWMutex

	// byConnection holds every stored snapshot, version-ordered, per
	// connection. Append-only except for Prune.
	byConnection map[uuid.UUID][]entry
	baseline     map[uuid.UUID]uuid.UUID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byConnection: make(map[uuid.UUID][]entry),
		baseline:     make(map[uuid.UUID]uuid.UUID),
	}
}

// Save assigns the next monotonic version for the snapshot's connection and
// persists it. Per §4.2, storing an identical-checksum snapshot still gets a
// new version — the store never deduplicates. Version assignment happens
// under the exclusive lock; nothing here suspends on I/O, so
// holding the write lock for the whole call is safe (§5's "never hold a
// write lock across an I/O suspension" only forbids blocking *calls*, not
// this in-memory bookkeeping).
func (s *Store) Save(snap schema.Snapshot, label string) (schema.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byConnection[snap.ConnectionID]
	snap.Version = len(existing) + 1
	s.byConnection[snap.ConnectionID] = append(existing, entry{snapshot: snap, label: label})
	return snap, nil
}

// Latest returns the highest-versioned snapshot for a connection, or
// NotFound if none has ever been stored.
func (s *Store) Latest(connectionID uuid.UUID) (schema.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.byConnection[connectionID]
	if len(entries) == 0 {
		return schema.Snapshot{}, sferrors.NotFound{Resource: "snapshot", ID: connectionID.String()}
	}
	return entries[len(entries)-1].snapshot, nil
}

// Get returns a specific version for a connection.
func (s *Store) Get(connectionID uuid.UUID, version int) (schema.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.byConnection[connectionID] {
		if e.snapshot.Version == version {
			return e.snapshot, nil
		}
	}
	return schema.Snapshot{}, sferrors.NotFound{Resource: "snapshot", ID: versionID(connectionID, version)}
}

// GetByID returns the snapshot with the given ID, regardless of connection.
// Proposals carry BaseSnapshotID without also carrying a connection, so
// lookups by snapshot ID alone must be supported.
func (s *Store) GetByID(snapshotID uuid.UUID) (schema.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entries := range s.byConnection {
		for _, e := range entries {
			if e.snapshot.ID == snapshotID {
				return e.snapshot, nil
			}
		}
	}
	return schema.Snapshot{}, sferrors.NotFound{Resource: "snapshot", ID: snapshotID.String()}
}

// List returns every stored snapshot's metadata for a connection, newest
// version first.
func (s *Store) List(connectionID uuid.UUID) []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.byConnection[connectionID]
	out := make([]Metadata, len(entries))
	for i, e := range entries {
		out[i] = Metadata{
			ID:         e.snapshot.ID,
			Version:    e.snapshot.Version,
			Checksum:   e.snapshot.Checksum,
			Label:      e.label,
			CapturedAt: e.snapshot.CapturedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out
}

// SetBaseline records which snapshot a connection's drift checks compare
// against. The snapshot must already exist and belong to this connection.
func (s *Store) SetBaseline(connectionID, snapshotID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.byConnection[connectionID] {
		if e.snapshot.ID == snapshotID {
			s.baseline[connectionID] = snapshotID
			return nil
		}
	}
	return sferrors.NotFound{Resource: "snapshot", ID: snapshotID.String()}
}

// GetBaseline returns the connection's current baseline snapshot.
func (s *Store) GetBaseline(connectionID uuid.UUID) (schema.Snapshot, error) {
	s.mu.RLock()
	baselineID, ok := s.baseline[connectionID]
	s.mu.RUnlock()
	if !ok {
		return schema.Snapshot{}, sferrors.NotFound{Resource: "baseline", ID: connectionID.String()}
	}
	return s.GetByID(baselineID)
}

// Prune retains only the keepN newest versions for a connection, discarding
// the rest. The baseline ID is not cleared: if its snapshot is pruned out,
// GetBaseline returns NotFound, since GetByID only scans retained entries.
func (s *Store) Prune(connectionID uuid.UUID, keepN int) error {
	if keepN < 0 {
		return sferrors.Validation{Reason: "keep_n must be non-negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.byConnection[connectionID]
	if len(entries) <= keepN {
		return nil
	}
	s.byConnection[connectionID] = append([]entry(nil), entries[len(entries)-keepN:]...)
	return nil
}

func versionID(connectionID uuid.UUID, version int) string {
	return connectionID.String() + "@v" + strconv.Itoa(version)
}

// StoredSnapshot pairs a Snapshot with its label, the unit cliio persists to
// disk so a CLI invocation can rebuild a connection's version history
// in-process (§5's in-memory store model assumes one long-running service;
// the CLI is a fresh process per command and needs an explicit file to carry
// that history across invocations).
type StoredSnapshot struct {
	Snapshot schema.Snapshot `json:"snapshot"`
	Label    string          `json:"label,omitempty"`
}

// Export returns every stored snapshot for a connection in version order,
// plus the connection's baseline snapshot ID if one is set.
func (s *Store) Export(connectionID uuid.UUID) (entries []StoredSnapshot, baselineID uuid.UUID) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.byConnection[connectionID] {
		entries = append(entries, StoredSnapshot{Snapshot: e.snapshot, Label: e.label})
	}
	return entries, s.baseline[connectionID]
}

// Import rebuilds a connection's version history from a previously exported
// entry list, preserving each snapshot's original Version rather than
// reassigning it the way Save does. Existing entries for the connection are
// replaced.
func (s *Store) Import(connectionID uuid.UUID, entries []StoredSnapshot, baselineID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := make([]entry, len(entries))
	for i, se := range entries {
		restored[i] = entry{snapshot: se.Snapshot, label: se.Label}
	}
	s.byConnection[connectionID] = restored
	if baselineID != uuid.Nil {
		s.baseline[connectionID] = baselineID
	}
}
