// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninotreve/slurm/internal/model"
)

func TestStore_AddAndRemoveAllocation(t *testing.T) {
	s := New()
	alloc := &model.Allocation{UserID: 5, JobID: 10, Account: "a", Partition: "p", QoS: "normal", Size: 100}

	s.AddAllocation(alloc)
	_, _, used, _ := s.Capacity()
	assert.Equal(t, uint64(100), used)
	assert.Equal(t, uint64(100), s.UserUsage(5))

	found := s.FindByUserToken(5, "")
	require.NotNil(t, found)
	assert.Same(t, alloc, found)

	s.RemoveAllocation(alloc)
	_, _, used, _ = s.Capacity()
	assert.Equal(t, uint64(0), used)
	assert.Equal(t, uint64(0), s.UserUsage(5))
}

func TestStore_FindPersistentByName(t *testing.T) {
	s := New()
	persistent := &model.Allocation{UserID: 1, Name: "mybuf", Size: 10}
	jobScratch := &model.Allocation{UserID: 1, JobID: 4, Size: 20}

	s.AddAllocation(persistent)
	s.AddAllocation(jobScratch)

	found := s.FindPersistentByName(1, "mybuf")
	require.NotNil(t, found)
	assert.Same(t, persistent, found)

	assert.Nil(t, s.FindPersistentByName(1, "nope"))
}

func TestStore_AllocationsForJob(t *testing.T) {
	s := New()
	s.AddAllocation(&model.Allocation{UserID: 1, JobID: 7, Size: 1})
	s.AddAllocation(&model.Allocation{UserID: 2, JobID: 7, Size: 1})
	s.AddAllocation(&model.Allocation{UserID: 3, JobID: 8, Size: 1})

	got := s.AllocationsForJob(7)
	assert.Len(t, got, 2)
}

func TestStore_PlanLifecycle(t *testing.T) {
	s := New()
	plan := &model.BufferPlan{JobID: 42, TotalSize: 1 << 20}
	s.PutPlan(plan)

	got := s.GetPlan(42)
	require.NotNil(t, got)
	assert.Equal(t, uint64(1<<20), got.TotalSize)

	s.DeletePlan(42)
	assert.Nil(t, s.GetPlan(42))
}

func TestStore_RoundUpToGranularity(t *testing.T) {
	s := New()
	s.SetCapacity(1<<30, 100<<30, 0)

	assert.Equal(t, uint64(1<<30), s.RoundUpToGranularity(1))
	assert.Equal(t, uint64(2<<30), s.RoundUpToGranularity(1<<30+1))
	assert.Equal(t, uint64(1<<30), s.RoundUpToGranularity(1<<30))
}

func TestStore_GenericResourcePool(t *testing.T) {
	s := New()
	s.SetGenericResourcePool("flash", GenericResourcePool{Avail: 10, Used: 2, Reserved: 1})

	pool, ok := s.GenericResourcePool("flash")
	require.True(t, ok)
	assert.Equal(t, uint64(10), pool.Avail)

	_, ok = s.GenericResourcePool("missing")
	assert.False(t, ok)
}
