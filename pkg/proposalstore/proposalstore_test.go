// SPDX-License-Identifier: Apache-2.0

package proposalstore_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/proposal"
	"github.com/schemaflow/schemaflow/pkg/proposalstore"
	"github.com/schemaflow/schemaflow/pkg/sferrors"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := proposalstore.New()
	connID, snapID := uuid.New(), uuid.New()
	p := proposal.New(connID, snapID, "checksum", "add column")

	require.NoError(t, store.Create(p))

	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, proposal.StatusDraft, got.Status)
}

func TestStore_CreateRejectsDuplicateID(t *testing.T) {
	store := proposalstore.New()
	p := proposal.New(uuid.New(), uuid.New(), "c", "t")

	require.NoError(t, store.Create(p))
	err := store.Create(p)
	assert.ErrorAs(t, err, &sferrors.Conflict{})
}

func TestStore_GetReturnsACopyNotTheLivePointer(t *testing.T) {
	store := proposalstore.New()
	p := proposal.New(uuid.New(), uuid.New(), "c", "t")
	require.NoError(t, store.Create(p))

	got, err := store.Get(p.ID)
	require.NoError(t, err)
	got.Title = "mutated locally"

	again, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Title)
}

func TestStore_MutateAppliesAtomically(t *testing.T) {
	store := proposalstore.New()
	p := proposal.New(uuid.New(), uuid.New(), "c", "t")
	require.NoError(t, store.Create(p))

	_, err := store.Mutate(p.ID, func(stored *proposal.Proposal) error {
		return stored.SubmitForReview()
	})
	assert.Error(t, err, "submit should fail: no changes were ever added")

	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusDraft, got.Status)
}

func TestStore_MutateNotFound(t *testing.T) {
	store := proposalstore.New()
	_, err := store.Mutate(uuid.New(), func(p *proposal.Proposal) error { return nil })
	assert.ErrorAs(t, err, &sferrors.NotFound{})
}

func TestStore_ListFiltersByConnection(t *testing.T) {
	store := proposalstore.New()
	connA, connB := uuid.New(), uuid.New()
	require.NoError(t, store.Create(proposal.New(connA, uuid.New(), "c", "a1")))
	require.NoError(t, store.Create(proposal.New(connA, uuid.New(), "c", "a2")))
	require.NoError(t, store.Create(proposal.New(connB, uuid.New(), "c", "b1")))

	assert.Len(t, store.List(connA), 2)
	assert.Len(t, store.List(connB), 1)
}

func TestStore_ConcurrentMutateIsSerialised(t *testing.T) {
	store := proposalstore.New()
	p := proposal.New(uuid.New(), uuid.New(), "c", "t")
	require.NoError(t, store.Create(p))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Mutate(p.ID, func(stored *proposal.Proposal) error {
				stored.AddComment("tester", "concurrent comment")
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Comments, 50)
}
