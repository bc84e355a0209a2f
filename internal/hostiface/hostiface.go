// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package hostiface declares the collaborator interfaces the host scheduler
// provides: candidate job iteration, reservation queries, accounting
// defaults, and the job-write lock (spec.md §1's "externalized
// collaborators" stance, so this plugin never assumes a concrete scheduler
// implementation). The facade and planner depend only on these interfaces.
package hostiface

import (
	"time"

	"github.com/ninotreve/slurm/internal/model"
)

// Candidate is one pending job the planner considers for admission,
// carrying just what the planner's computations need.
type Candidate struct {
	JobID     uint32
	UserID    uint32
	Plan      *model.BufferPlan
	StartTime time.Time

	// EndTime is the host's projected completion time for this job,
	// mirrored onto Plan.EndTime (spec.md §4.3's "use_time" source).
	EndTime time.Time
}

// Reservation is a host-scheduler reservation whose burst-buffer name
// matches this plugin's configured name (spec.md §4.3: "resv_space = Σ
// used_space of reservations whose burst-buffer name matches this
// plugin's name").
type Reservation struct {
	Name      string
	UsedSpace uint64
}

// JobQueue provides the pending-candidate queue in host start-time order,
// for try_stage_in's iteration (spec.md §4.8).
type JobQueue interface {
	PendingCandidates() []Candidate
}

// ReservationQuery answers "what reservations currently exist" so the
// planner can compute resv_space.
type ReservationQuery interface {
	Reservations(burstBufferName string) []Reservation
}

// AccountingDefaults supplies an account/partition/QoS to attribute a
// newly-discovered allocation to when no existing allocation for the same
// user can be copied from (spec.md §4.4 step 3).
type AccountingDefaults interface {
	DefaultsForUser(userID uint32) (account, partition, qos string)
}

// JobWriteLock is the host-provided reader/writer lock guarding job
// records; spec.md §5 requires it be acquired before the state mutex
// whenever both are needed.
type JobWriteLock interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// JobLookup reports whether jobID is still known to the host scheduler,
// used by the agent to free allocations for vanished jobs (spec.md §4.4
// step 4).
type JobLookup interface {
	JobExists(jobID uint32) bool
}

// SuperUser reports whether userID holds the host scheduler's super-user
// privilege, used to gate destroy-persistent ownership bypass (spec.md
// §4.2).
type SuperUser interface {
	IsSuperUser(userID uint32) bool
}
