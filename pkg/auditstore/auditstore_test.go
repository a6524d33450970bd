// SPDX-License-Identifier: Apache-2.0

package auditstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/pkg/auditstore"
)

func TestStore_AppendStampsIDAndTimestamp(t *testing.T) {
	store := auditstore.New()

	e := store.Append(auditstore.Entry{
		Action:       auditstore.ActionProposalCreated,
		ResourceType: auditstore.ResourceProposal,
		ResourceID:   "prop-1",
		User:         "alice",
	})

	assert.NotEqual(t, "", e.ID.String())
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, auditstore.ActionProposalCreated, e.Action)
}

func TestStore_QueryFiltersByResourceTypeAndID(t *testing.T) {
	store := auditstore.New()
	store.Append(auditstore.Entry{Action: auditstore.ActionProposalCreated, ResourceType: auditstore.ResourceProposal, ResourceID: "prop-1"})
	store.Append(auditstore.Entry{Action: auditstore.ActionSnapshotSaved, ResourceType: auditstore.ResourceSnapshot, ResourceID: "snap-1"})
	store.Append(auditstore.Entry{Action: auditstore.ActionProposalTransition, ResourceType: auditstore.ResourceProposal, ResourceID: "prop-2"})

	proposals := store.Query(auditstore.ResourceProposal, "", 0)
	require.Len(t, proposals, 2)

	specific := store.Query(auditstore.ResourceProposal, "prop-1", 0)
	require.Len(t, specific, 1)
	assert.Equal(t, "prop-1", specific[0].ResourceID)
}

func TestStore_QueryReturnsNewestFirst(t *testing.T) {
	store := auditstore.New()
	store.Append(auditstore.Entry{Action: auditstore.ActionProposalCreated, ResourceType: auditstore.ResourceProposal, ResourceID: "p"})
	time.Sleep(time.Millisecond)
	store.Append(auditstore.Entry{Action: auditstore.ActionProposalTransition, ResourceType: auditstore.ResourceProposal, ResourceID: "p"})
	time.Sleep(time.Millisecond)
	latest := store.Append(auditstore.Entry{Action: auditstore.ActionProposalExecuted, ResourceType: auditstore.ResourceProposal, ResourceID: "p"})

	all := store.Query(auditstore.ResourceProposal, "p", 0)
	require.Len(t, all, 3)
	assert.Equal(t, latest.ID, all[0].ID)
}

func TestStore_QueryRespectsLimit(t *testing.T) {
	store := auditstore.New()
	for i := 0; i < 5; i++ {
		store.Append(auditstore.Entry{Action: auditstore.ActionChangeAdded, ResourceType: auditstore.ResourceProposal, ResourceID: "p"})
	}

	limited := store.Query(auditstore.ResourceProposal, "p", 2)
	assert.Len(t, limited, 2)
}

func TestStore_AllReturnsEverything(t *testing.T) {
	store := auditstore.New()
	store.Append(auditstore.Entry{Action: auditstore.ActionSnapshotSaved, ResourceType: auditstore.ResourceSnapshot, ResourceID: "s1"})
	store.Append(auditstore.Entry{Action: auditstore.ActionRuleOverridden, ResourceType: auditstore.ResourceRule, ResourceID: "R003"})

	assert.Len(t, store.All(), 2)
}
