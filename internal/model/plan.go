// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package model

import "time"

// PersistentOpKind is the operation requested against a named persistent
// buffer.
type PersistentOpKind string

const (
	OpCreate  PersistentOpKind = "create"
	OpDestroy PersistentOpKind = "destroy"
	OpUse     PersistentOpKind = "use"
)

// PersistentOp is one persistent-buffer create/destroy/use sub-operation
// embedded in a BufferPlan (spec.md §3 BufferPlan.PersistentOp).
type PersistentOp struct {
	Name       string
	Op         PersistentOpKind
	Size       uint64
	AccessMode string
	Type       string
	Hurry      bool
	State      State
}

// GenericResourceRequest is one {name, count} generic-resource request.
type GenericResourceRequest struct {
	Name  string
	Count uint64
}

// BufferPlan is the per-job burst-buffer plan described in spec.md §3.
type BufferPlan struct {
	JobID uint32

	Account   string
	Partition string
	QoS       string

	TotalSize     uint64 // job-scratch byte size, after swap rollup
	SwapGiB       uint64
	SwapNodeCount uint32

	GenericResources []GenericResourceRequest
	PersistentOps    []PersistentOp

	State State

	// Canonical is the stable SLURM_* string spec.md §4.1 defines as "the
	// durable representation; all later processing re-reads it rather
	// than the raw directive."
	Canonical string

	// StateEnteredAt records when State last changed, for the agent's
	// stage-in/out timeout enforcement (spec.md §4.4).
	StateEnteredAt time.Time

	StateReason string
	StateDesc   string

	// Priority is zeroed by lifecycle.Manager when a destroy-persistent
	// request is refused for lack of ownership (spec.md §4.2).
	Priority uint32

	StartTime time.Time // projected start time, used by the planner

	// EndTime is the host scheduler's projected completion time for this
	// job (e.g. submit time plus walltime limit), supplied alongside
	// StartTime. The lifecycle manager stamps it onto the job-scratch
	// Allocation's UseTime when stage-in begins, so the planner's
	// preemption walk (spec.md §4.3) has a genuine forward-looking
	// use_time to compare against, rather than a sync-freshness timestamp.
	EndTime time.Time
}

// PersistentCreateSize sums the requested size of every create PersistentOp,
// the `plan.persistent_create.size` term in spec.md §4.3's add_space formula.
func (p *BufferPlan) PersistentCreateSize() uint64 {
	var total uint64
	for _, op := range p.PersistentOps {
		if op.Op == OpCreate {
			total += op.Size
		}
	}
	return total
}

// HasScratchRequest reports whether plan asked for a job-scratch buffer
// (jobdw/swap, or a generic-resource request) of its own, as opposed to
// carrying only persistent-buffer sub-operations with nothing to stage in
// for this job itself.
func (p *BufferPlan) HasScratchRequest() bool {
	return p.TotalSize > 0 || len(p.GenericResources) > 0
}

// ActiveSubOps reports whether any embedded PersistentOp is still in the
// active set, which blocks the plan from leaving allocating/deleting
// (spec.md §4.2).
func (p *BufferPlan) ActiveSubOps() bool {
	for _, op := range p.PersistentOps {
		if op.State.Active() {
			return true
		}
	}
	return false
}

// SetState transitions the plan to a new state and stamps the entry time.
func (p *BufferPlan) SetState(s State, now time.Time) {
	p.State = s
	p.StateEnteredAt = now
}
