// SPDX-License-Identifier: Apache-2.0

// Package auditstore implements the append-only Metadata/Audit Store (§3,
// §4 data flow: "Audit Store records every transition"). Entries are never
// updated or deleted; every core mutation — snapshot save, proposal
// transition, execution, rule override — appends exactly one entry.
package auditstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action names the mutation an AuditEntry records. The set mirrors every
// state-changing operation the kernel exposes; new actions are added here,
// never inferred from free text.
type Action string

const (
	ActionSnapshotSaved      Action = "snapshot_saved"
	ActionBaselineSet        Action = "baseline_set"
	ActionProposalCreated    Action = "proposal_created"
	ActionProposalTransition Action = "proposal_transitioned"
	ActionChangeAdded        Action = "change_added"
	ActionRiskAnalyzed       Action = "risk_analyzed"
	ActionMigrationGenerated Action = "migration_generated"
	ActionProposalExecuted   Action = "proposal_executed"
	ActionProposalRolledBack Action = "proposal_rolled_back"
	ActionRuleOverridden     Action = "rule_overridden"
)

// ResourceType names what kind of object an entry's ResourceID refers to.
type ResourceType string

const (
	ResourceSnapshot ResourceType = "snapshot"
	ResourceProposal ResourceType = "proposal"
	ResourceRule     ResourceType = "rule"
)

// Entry is one append-only audit record (§3's AuditEntry).
type Entry struct {
	ID           uuid.UUID              `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	User         string                 `json:"user,omitempty"`
	Action       Action                 `json:"action"`
	ResourceType ResourceType           `json:"resourceType"`
	ResourceID   string                 `json:"resourceId,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	IP           string                 `json:"ip,omitempty"`
}

// Store is the in-memory, append-only audit log. Guarded by a single
// reader-writer lock per §5; Append is the only mutator and never blocks on
// I/O while holding the lock.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// nowFunc is a seam for tests; production code always calls time.Now.
var nowFunc = time.Now

// Append records a new entry, stamping ID and Timestamp.
func (s *Store) Append(e Entry) Entry {
	e.ID = uuid.New()
	e.Timestamp = nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return e
}

// Query filters the log by resource type and/or resource ID (either may be
// left zero-valued to mean "any"), returning at most `limit` entries
// newest-first. limit <= 0 means unbounded.
func (s *Store) Query(resourceType ResourceType, resourceID string, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for _, e := range s.entries {
		if resourceType != "" && e.ResourceType != resourceType {
			continue
		}
		if resourceID != "" && e.ResourceID != resourceID {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first; per §5, entries sharing a timestamp break the tie by id
	// so ordering is deterministic regardless of insertion order.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// All returns every entry, newest-first. Equivalent to an unfiltered Query.
func (s *Store) All() []Entry {
	return s.Query("", "", 0)
}
