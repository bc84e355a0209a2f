// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package store holds the in-memory allocation and plan tables plus
// per-(user,account,partition,qos) usage counters described in spec.md §3
// and §4.7, and the on-disk snapshot that lets persistent-buffer account
// attribution survive a restart.
package store

import (
	"sync"

	"github.com/ninotreve/slurm/internal/model"
)

// NumBuckets is the hash table width for the allocation table, keyed by
// `user_id mod NumBuckets` with chained entries for duplicates (spec.md
// §4.7).
const NumBuckets = 64

// UsageKey identifies one (user, account, partition, qos) usage counter.
type UsageKey struct {
	UserID    uint32
	Account   string
	Partition string
	QoS       string
}

// Store is the single owning object for all in-memory bookkeeping. Every
// facade, lifecycle, planner, and agent call that touches it does so under
// mu, spec.md §5's single "state mutex". Never hold mu across an external
// command call.
type Store struct {
	mu sync.RWMutex

	buckets [NumBuckets][]*model.Allocation
	plans   map[uint32]*model.BufferPlan
	usage   map[UsageKey]uint64

	// Pool capacity counters (spec.md §4.4 step 2): the default pool's
	// granularity/total/used, and other pools published into the
	// generic-resources table.
	granularity uint64
	totalSpace  uint64
	usedSpace   uint64
	resvSpace   uint64

	genericResources map[string]GenericResourcePool
}

// GenericResourcePool mirrors one non-default pool's avail/used/reserved
// counters, used by the planner's generic-resource admission check
// (spec.md §4.3).
type GenericResourcePool struct {
	Avail    uint64
	Used     uint64
	Reserved uint64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		plans:            make(map[uint32]*model.BufferPlan),
		usage:            make(map[UsageKey]uint64),
		genericResources: make(map[string]GenericResourcePool),
		granularity:      1,
	}
}

func bucketFor(userID uint32) uint32 {
	return userID % NumBuckets
}

// PutPlan inserts or replaces a BufferPlan, keyed by job id.
func (s *Store) PutPlan(plan *model.BufferPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.JobID] = plan
}

// GetPlan returns the BufferPlan for jobID, or nil if none exists.
func (s *Store) GetPlan(jobID uint32) *model.BufferPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plans[jobID]
}

// DeletePlan removes jobID's plan. Per spec.md §3, this should only be
// called once the plan reaches Complete with no allocation still charged
// to it.
func (s *Store) DeletePlan(jobID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, jobID)
}

// Plans returns a snapshot slice of every tracked plan, for the agent's
// stage-timeout sweep and the facade's StatePack.
func (s *Store) Plans() []*model.BufferPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.BufferPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out
}

// AddAllocation inserts alloc into its user-id bucket and charges usage
// and pool counters.
func (s *Store) AddAllocation(alloc *model.Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := bucketFor(alloc.UserID)
	s.buckets[b] = append(s.buckets[b], alloc)

	s.chargeUsageLocked(alloc)
	s.usedSpace += alloc.Size
}

// RemoveAllocation removes alloc from its bucket and releases its usage
// and pool-capacity charge. It is a no-op if alloc is not present.
func (s *Store) RemoveAllocation(alloc *model.Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := bucketFor(alloc.UserID)
	chain := s.buckets[b]
	for i, a := range chain {
		if a == alloc {
			s.buckets[b] = append(chain[:i], chain[i+1:]...)
			s.releaseUsageLocked(alloc)
			if s.usedSpace >= alloc.Size {
				s.usedSpace -= alloc.Size
			} else {
				s.usedSpace = 0
			}
			return
		}
	}
}

// FindByUserToken finds an allocation by (token, user id), used by the
// agent to match a reported session to an existing allocation (spec.md
// §4.4 step 3).
func (s *Store) FindByUserToken(userID uint32, token string) *model.Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.buckets[bucketFor(userID)] {
		if a.UserID == userID && a.Token == token {
			return a
		}
	}
	return nil
}

// FindPersistentByName finds a persistent buffer by (user id, name); names
// are unique per (user id, name) per spec.md §3.
func (s *Store) FindPersistentByName(userID uint32, name string) *model.Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.buckets[bucketFor(userID)] {
		if a.UserID == userID && a.IsPersistent() && a.Name == name {
			return a
		}
	}
	return nil
}

// AllocationsForJob returns every allocation charged to jobID.
func (s *Store) AllocationsForJob(jobID uint32) []*model.Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Allocation
	for _, chain := range s.buckets {
		for _, a := range chain {
			if a.JobID == jobID {
				out = append(out, a)
			}
		}
	}
	return out
}

// AllAllocations returns every tracked allocation across all buckets, for
// the agent's vanished-record sweep and the planner's preemption scan.
func (s *Store) AllAllocations() []*model.Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Allocation
	for _, chain := range s.buckets {
		out = append(out, chain...)
	}
	return out
}

// UserUsage returns the cumulative byte size charged to userID across every
// account/partition/qos combination (the quantity spec.md §4.3's per-user
// admission check compares against the configured limit).
func (s *Store) UserUsage(userID uint32) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for k, v := range s.usage {
		if k.UserID == userID {
			total += v
		}
	}
	return total
}

func (s *Store) chargeUsageLocked(alloc *model.Allocation) {
	key := UsageKey{UserID: alloc.UserID, Account: alloc.Account, Partition: alloc.Partition, QoS: alloc.QoS}
	s.usage[key] += alloc.Size
}

func (s *Store) releaseUsageLocked(alloc *model.Allocation) {
	key := UsageKey{UserID: alloc.UserID, Account: alloc.Account, Partition: alloc.Partition, QoS: alloc.QoS}
	if cur, ok := s.usage[key]; ok {
		if cur >= alloc.Size {
			s.usage[key] = cur - alloc.Size
		} else {
			s.usage[key] = 0
		}
	}
}

// Capacity returns the default pool's granularity, total, and used space.
func (s *Store) Capacity() (granularity, total, used, reserved uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.granularity, s.totalSpace, s.usedSpace, s.resvSpace
}

// SetCapacity is called by the agent after a sync pass (spec.md §4.4 step
// 2: "for the default pool, set configured granularity, refresh total
// capacity and used capacity").
func (s *Store) SetCapacity(granularity, total, used uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granularity = granularity
	s.totalSpace = total
	// The agent's externally-reported used capacity is authoritative
	// unless the site is in emulation mode, in which case the caller
	// should not invoke SetCapacity's used argument (see agent package).
	s.usedSpace = used
}

// SetReservedSpace records the current reservation-held space, tracked
// separately from charged used_space (spec.md §3 invariant).
func (s *Store) SetReservedSpace(resv uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resvSpace = resv
}

// SetGenericResourcePool publishes a non-default pool's avail/used/reserved
// counters into the generic-resources table (spec.md §4.4 step 2).
func (s *Store) SetGenericResourcePool(name string, pool GenericResourcePool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genericResources[name] = pool
}

// GenericResourcePool returns the named pool's counters and whether it is
// defined.
func (s *Store) GenericResourcePool(name string) (GenericResourcePool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.genericResources[name]
	return p, ok
}

// RoundUpToGranularity rounds size up to the configured pool granularity
// (spec.md §3 invariant: "Allocation size is always rounded up to the pool
// granularity").
func (s *Store) RoundUpToGranularity(size uint64) uint64 {
	s.mu.RLock()
	g := s.granularity
	s.mu.RUnlock()

	if g <= 1 {
		return size
	}
	if size%g == 0 {
		return size
	}
	return (size/g + 1) * g
}
