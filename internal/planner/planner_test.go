// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninotreve/slurm/internal/hostiface"
	"github.com/ninotreve/slurm/internal/model"
	"github.com/ninotreve/slurm/internal/store"
)

type fakeReservations struct {
	byName map[string][]hostiface.Reservation
}

func (f *fakeReservations) Reservations(name string) []hostiface.Reservation {
	return f.byName[name]
}

func TestPlanner_AdmitsWhenCapacityAvailable(t *testing.T) {
	st := store.New()
	st.SetCapacity(1, 100, 0)

	p := New(st, nil, Config{})
	plan := &model.BufferPlan{TotalSize: 10}

	d := p.Evaluate(1, plan, time.Now())
	assert.Equal(t, VerdictAdmit, d.Verdict)
}

func TestPlanner_HaltsWhenOverCapacityAndNoPreemptionCandidates(t *testing.T) {
	st := store.New()
	st.SetCapacity(1, 100, 95)

	p := New(st, nil, Config{})
	plan := &model.BufferPlan{TotalSize: 10}

	d := p.Evaluate(1, plan, time.Now())
	assert.Equal(t, VerdictHalt, d.Verdict)
}

func TestPlanner_SkipsOnUndefinedGenericResource(t *testing.T) {
	st := store.New()
	st.SetCapacity(1, 100, 0)

	p := New(st, nil, Config{})
	plan := &model.BufferPlan{GenericResources: []model.GenericResourceRequest{{Name: "gpu", Count: 1}}}

	d := p.Evaluate(1, plan, time.Now())
	assert.Equal(t, VerdictSkip, d.Verdict)
}

func TestPlanner_SkipsWhenGenericResourceRequestExceedsAvail(t *testing.T) {
	st := store.New()
	st.SetCapacity(1, 100, 0)
	st.SetGenericResourcePool("flash", store.GenericResourcePool{Avail: 4})

	p := New(st, nil, Config{})
	plan := &model.BufferPlan{GenericResources: []model.GenericResourceRequest{{Name: "flash", Count: 10}}}

	d := p.Evaluate(1, plan, time.Now())
	assert.Equal(t, VerdictSkip, d.Verdict)
}

func TestPlanner_HaltsOnUserLimitExceededWithNoPreemptionCandidates(t *testing.T) {
	st := store.New()
	st.SetCapacity(1, 1000, 0)

	p := New(st, nil, Config{UserSizeLimit: 5})
	plan := &model.BufferPlan{TotalSize: 10}

	d := p.Evaluate(1, plan, time.Now())
	// A user-quota overrun still attempts preemption before giving up; with
	// no preemptable allocations the deficit goes uncovered and the
	// decision halts queue iteration (spec.md §4.3).
	assert.Equal(t, VerdictHalt, d.Verdict)
}

func TestPlanner_PreemptsOwnAllocationsFirst(t *testing.T) {
	st := store.New()
	st.SetCapacity(1, 100, 90)

	now := time.Now()
	candidateStart := now.Add(time.Hour)

	ownVictim := &model.Allocation{UserID: 1, JobID: 5, Size: 20, UseTime: now.Add(2 * time.Hour)}
	otherVictim := &model.Allocation{UserID: 2, JobID: 6, Size: 20, UseTime: now.Add(2 * time.Hour)}
	st.AddAllocation(ownVictim)
	st.AddAllocation(otherVictim)
	// Re-set used space to reflect only the capacity counter, since
	// AddAllocation double-charges usedSpace for this synthetic test.
	st.SetCapacity(1, 100, 90)

	p := New(st, nil, Config{})
	plan := &model.BufferPlan{TotalSize: 15, StartTime: candidateStart}

	d := p.Evaluate(1, plan, now)
	require.Equal(t, VerdictAdmit, d.Verdict)
	require.NotEmpty(t, d.PreemptedVictims)
	assert.Same(t, ownVictim, d.PreemptedVictims[0])
}

func TestPlanner_ResvSpaceCountsTowardTotalDeficit(t *testing.T) {
	st := store.New()
	st.SetCapacity(1, 100, 50)

	resv := &fakeReservations{byName: map[string][]hostiface.Reservation{
		"bb": {{Name: "bb", UsedSpace: 40}},
	}}

	p := New(st, resv, Config{BurstBufferName: "bb"})
	plan := &model.BufferPlan{TotalSize: 20}

	d := p.Evaluate(1, plan, time.Now())
	assert.Equal(t, VerdictHalt, d.Verdict)
}
