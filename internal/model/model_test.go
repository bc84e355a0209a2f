// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_Active(t *testing.T) {
	assert.True(t, Pending.Active())
	assert.True(t, Allocating.Active())
	assert.True(t, Deleting.Active())
	assert.True(t, Teardown.Active())
	assert.False(t, StagedIn.Active())
	assert.False(t, Complete.Active())
}

func TestState_Ordering(t *testing.T) {
	assert.Less(t, int(Pending), int(StagingIn))
	assert.GreaterOrEqual(t, int(Running), int(StagedIn))
}

func TestBufferPlan_PersistentCreateSize(t *testing.T) {
	p := &BufferPlan{
		PersistentOps: []PersistentOp{
			{Name: "a", Op: OpCreate, Size: 100},
			{Name: "b", Op: OpDestroy, Size: 999},
			{Name: "c", Op: OpCreate, Size: 50},
		},
	}
	assert.Equal(t, uint64(150), p.PersistentCreateSize())
}

func TestBufferPlan_ActiveSubOps(t *testing.T) {
	p := &BufferPlan{PersistentOps: []PersistentOp{{State: Complete}}}
	assert.False(t, p.ActiveSubOps())

	p.PersistentOps = append(p.PersistentOps, PersistentOp{State: Allocating})
	assert.True(t, p.ActiveSubOps())
}

func TestBufferPlan_SetState(t *testing.T) {
	p := &BufferPlan{}
	now := time.Now()
	p.SetState(StagingIn, now)
	assert.Equal(t, StagingIn, p.State)
	assert.Equal(t, now, p.StateEnteredAt)
}

func TestAllocation_Association(t *testing.T) {
	a := &Allocation{JobID: 0}
	assert.True(t, a.IsPersistent())

	a.SetAssociation("key1", "handle")
	key, h := a.Association()
	assert.Equal(t, "key1", key)
	assert.Equal(t, "handle", h)

	a.InvalidateAssociation()
	_, h = a.Association()
	assert.Nil(t, h)
}
