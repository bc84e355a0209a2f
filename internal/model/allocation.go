// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package model

import "time"

// Allocation is a live buffer, job-scratch or persistent (spec.md §3).
type Allocation struct {
	UserID uint32

	// JobID is 0 for a persistent buffer not tied to any single job.
	JobID uint32

	// Name is non-empty only for a user-created persistent buffer; spec.md
	// §3 forbids a numeric-leading name for those.
	Name string

	Size uint64

	Account   string
	Partition string
	QoS       string

	CreateTime time.Time
	LastSeen   time.Time

	// UseTime is the projected time this allocation's owning job will still
	// be using it, supplied by the host scheduler (spec.md §4.3's
	// "use_time"). It is the forward-looking quantity the planner's
	// preemption walk compares against now and a candidate's start time; it
	// is unrelated to LastSeen, which only tracks agent-sync freshness and
	// is always stamped with the current wall clock. Zero means unknown,
	// i.e. never a preemption victim.
	UseTime time.Time

	State State

	// Token is the external subsystem's session token, used to match
	// sessions to allocations during agent sync (spec.md §4.4).
	Token string

	// associationKey is a lookup key into the accounting subsystem; the
	// cached handle itself is non-owning and invalidated on every agent
	// pass (Design Note: "Cyclic/back references").
	associationKey string
	associationPtr any
}

// IsPersistent reports whether this allocation is a named persistent
// buffer rather than job-scratch.
func (a *Allocation) IsPersistent() bool {
	return a.JobID == 0
}

// SetAssociation caches a non-owning handle into the accounting subsystem,
// keyed by associationKey. The cache is invalidated by InvalidateAssociation
// at the start of every agent pass.
func (a *Allocation) SetAssociation(key string, handle any) {
	a.associationKey = key
	a.associationPtr = handle
}

// Association returns the cached accounting handle, or nil if it was never
// set or has since been invalidated.
func (a *Allocation) Association() (string, any) {
	return a.associationKey, a.associationPtr
}

// InvalidateAssociation drops the cached accounting handle without
// affecting ownership of the underlying accounting record (spec.md §3:
// "ownership stays with accounting").
func (a *Allocation) InvalidateAssociation() {
	a.associationPtr = nil
}
