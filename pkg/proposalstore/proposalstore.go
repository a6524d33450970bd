// SPDX-License-Identifier: Apache-2.0

// Package proposalstore holds the Proposal aggregate in memory, guarded by
// a single reader-writer lock per §5's shared-mutable-state model. Every
// state transition goes through Mutate, an atomic read-mutate-write that
// holds the write lock only across the in-memory call — callers must never
// perform I/O inside the mutator function.
package proposalstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/pkg/proposal"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

// Store is the in-memory Proposal aggregate store.
type Store struct {
	mu        sync.RWMutex
	proposals map[uuid.UUID]*proposal.Proposal
}

// New creates an empty Store.
func New() *Store {
	return &Store{proposals: make(map[uuid.UUID]*proposal.Proposal)}
}

// Create inserts a new proposal. Conflict if a proposal with the same ID
// already exists — callers always pass a freshly minted proposal.New()
// result, so this only fires on a UUID collision or a caller bug.
func (s *Store) Create(p *proposal.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.proposals[p.ID]; exists {
		return sferrors.Conflict{Reason: "proposal already exists", Detail: p.ID.String()}
	}
	s.proposals[p.ID] = p
	return nil
}

// Get returns a snapshot copy of the proposal as it stood at the instant of
// the call. Per §5, "the Orchestrator observes a single, consistent read of
// proposal at entry" — returning a copy rather than the live pointer means
// the caller's subsequent logic can't race a concurrent Mutate.
func (s *Store) Get(id uuid.UUID) (*proposal.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, sferrors.NotFound{Resource: "proposal", ID: id.String()}
	}
	cp := *p
	return &cp, nil
}

// List returns a snapshot copy of every proposal for a connection.
func (s *Store) List(connectionID uuid.UUID) []*proposal.Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*proposal.Proposal
	for _, p := range s.proposals {
		if p.ConnectionID == connectionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// Mutate applies fn to the stored proposal under the store's exclusive
// lock, so the read-check-write the state machine performs (e.g. "only
// transition if currently Open") is atomic with respect to every other
// caller. fn must not perform I/O or block: holding the write lock across a
// suspension point is forbidden by §5. Last writer wins — there is no
// optimistic-concurrency version check here, matching the in-memory model
// §5 describes for the proposal store.
func (s *Store) Mutate(id uuid.UUID, fn func(p *proposal.Proposal) error) (*proposal.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, sferrors.NotFound{Resource: "proposal", ID: id.String()}
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}
