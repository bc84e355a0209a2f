// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the background synchronization task spec.md
// §4.4 describes: poll the external subsystem for pools/instances/sessions,
// reconcile them into the allocation table, reclaim vanished allocations,
// enforce stage timeouts, and trigger snapshot writes.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ninotreve/slurm/internal/dwcli"
	"github.com/ninotreve/slurm/internal/dwjson"
	"github.com/ninotreve/slurm/internal/hostiface"
	"github.com/ninotreve/slurm/internal/lifecycle"
	"github.com/ninotreve/slurm/internal/model"
	"github.com/ninotreve/slurm/internal/store"
	berrors "github.com/ninotreve/slurm/pkg/errors"
	"github.com/ninotreve/slurm/pkg/logging"
)

// Config configures the Agent.
type Config struct {
	Interval         time.Duration
	CLIPath          string
	ShowTimeout      time.Duration
	EmulationMode    bool
	StageInTimeout   time.Duration
	StageOutTimeout  time.Duration

	// TrustExitStatus reports whether a show_* function's exit status may
	// be trusted outright (pkg/config.Config.ShouldTrustExitStatus). When
	// it reports false for a function, a nonzero exit is reconsidered by
	// scanning stdout for an error marker before fetch() treats the call
	// as failed (spec.md §9). Nil trusts every function.
	TrustExitStatus func(function string) bool
}

// Agent runs the periodic sync pass. Shutdown is via context cancellation,
// the Go-idiomatic analogue of the teacher's condition-variable-guarded
// termination flag (spec.md §5).
type Agent struct {
	store       *store.Store
	dispatcher  *dwcli.Dispatcher
	snapshotter *store.Snapshotter
	defaults    hostiface.AccountingDefaults
	jobLookup   hostiface.JobLookup
	lifecycle   *lifecycle.Manager
	cfg         Config
	logger      logging.Logger

	lastLoadTime         time.Time
	persistentCreatedAfterSave bool
}

// New creates an Agent.
func New(st *store.Store, dispatcher *dwcli.Dispatcher, snapshotter *store.Snapshotter, defaults hostiface.AccountingDefaults, jobLookup hostiface.JobLookup, lifecycleMgr *lifecycle.Manager, cfg Config, logger logging.Logger) *Agent {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &Agent{
		store:       st,
		dispatcher:  dispatcher,
		snapshotter: snapshotter,
		defaults:    defaults,
		jobLookup:   jobLookup,
		lifecycle:   lifecycleMgr,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run loops, invoking Pass at the configured interval, until ctx is
// canceled.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Pass(ctx); err != nil {
				a.logger.Error("agent pass failed", "error", err)
			}
		}
	}
}

// Pass runs one sync pass (spec.md §4.4's five numbered steps).
func (a *Agent) Pass(ctx context.Context) error {
	now := time.Now()

	pools, instances, sessions, err := a.fetch(ctx)
	if err != nil {
		return err
	}

	a.reconcileCapacity(pools)
	a.reconcileSessions(sessions, instances, now)
	a.reclaimVanished(now)
	a.enforceStageTimeouts(ctx, now)

	if a.persistentCreatedAfterSave && a.snapshotter != nil {
		if err := a.snapshotter.Save(a.store); err != nil {
			a.logger.Error("snapshot save failed", "error", err)
		} else {
			a.persistentCreatedAfterSave = false
		}
	}

	a.lastLoadTime = now
	return nil
}

func (a *Agent) fetch(ctx context.Context) ([]dwjson.Pool, []dwjson.Instance, []dwjson.Session, error) {
	poolsResult, err := a.dispatcher.InvokeSync(ctx, dwcli.FuncShowPools, a.cfg.CLIPath, dwcli.ShowArgs(dwcli.FuncShowPools), a.cfg.ShowTimeout)
	if err != nil {
		return nil, nil, nil, err
	}
	if !a.succeeded(dwcli.FuncShowPools, poolsResult) {
		return nil, nil, nil, berrors.WrapExternal(dwcli.FuncShowPools, fmt.Errorf("%s exited %d", dwcli.FuncShowPools, poolsResult.ExitStatus), poolsResult.Stderr)
	}
	pools, err := dwjson.DecodePools(poolsResult.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}

	instancesResult, err := a.dispatcher.InvokeSync(ctx, dwcli.FuncShowInstances, a.cfg.CLIPath, dwcli.ShowArgs(dwcli.FuncShowInstances), a.cfg.ShowTimeout)
	if err != nil {
		return nil, nil, nil, err
	}
	if !a.succeeded(dwcli.FuncShowInstances, instancesResult) {
		return nil, nil, nil, berrors.WrapExternal(dwcli.FuncShowInstances, fmt.Errorf("%s exited %d", dwcli.FuncShowInstances, instancesResult.ExitStatus), instancesResult.Stderr)
	}
	instances, err := dwjson.DecodeInstances(instancesResult.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}

	sessionsResult, err := a.dispatcher.InvokeSync(ctx, dwcli.FuncShowSessions, a.cfg.CLIPath, dwcli.ShowArgs(dwcli.FuncShowSessions), a.cfg.ShowTimeout)
	if err != nil {
		return nil, nil, nil, err
	}
	if !a.succeeded(dwcli.FuncShowSessions, sessionsResult) {
		return nil, nil, nil, berrors.WrapExternal(dwcli.FuncShowSessions, fmt.Errorf("%s exited %d", dwcli.FuncShowSessions, sessionsResult.ExitStatus), sessionsResult.Stderr)
	}
	sessions, err := dwjson.DecodeSessions(sessionsResult.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}

	return pools, instances, sessions, nil
}

// succeeded reports whether a show_* invocation should be treated as
// successful, given its raw exit status and captured stdout (spec.md §9's
// TrustExitStatus escape hatch).
func (a *Agent) succeeded(function string, result *dwcli.Result) bool {
	if result == nil {
		return false
	}
	if result.ExitStatus == 0 {
		return true
	}
	trust := true
	if a.cfg.TrustExitStatus != nil {
		trust = a.cfg.TrustExitStatus(function)
	}
	return !trust && dwcli.StdoutIndicatesSuccess(result.Stdout)
}

// reconcileCapacity implements step 2: for the default pool (the first
// entry, matching the CLI's convention of listing the site default
// first), set granularity/total/used; publish every other pool into the
// generic-resources table.
func (a *Agent) reconcileCapacity(pools []dwjson.Pool) {
	for i, pool := range pools {
		if i == 0 {
			used := pool.Quantity - pool.Free
			if a.cfg.EmulationMode {
				// In emulation mode the snapshot, not the external
				// subsystem, is authoritative for used space.
				_, _, currentUsed, _ := a.store.Capacity()
				used = currentUsed
			}
			a.store.SetCapacity(pool.Granularity, pool.Quantity, used)
			continue
		}
		a.store.SetGenericResourcePool(pool.ID, store.GenericResourcePool{
			Avail: pool.Quantity,
			Used:  pool.Quantity - pool.Free,
		})
	}
}

// bytesForToken sums every instance's bytes whose label names the given
// session token, the corrected accumulation spec.md §9's Open Question
// resolves in favor of (rather than keeping only the last-seen instance's
// byte count).
func bytesForToken(instances []dwjson.Instance, token string) uint64 {
	var total uint64
	for _, inst := range instances {
		if inst.Label == token {
			total += inst.Bytes
		}
	}
	return total
}

// reconcileSessions implements step 3.
func (a *Agent) reconcileSessions(sessions []dwjson.Session, instances []dwjson.Instance, now time.Time) {
	for _, sess := range sessions {
		existing := a.store.FindByUserToken(sess.UserID, sess.Token)
		if existing != nil {
			existing.LastSeen = now
			continue
		}

		account, partition, qos := "", "", ""
		for _, other := range a.store.AllAllocations() {
			if other.UserID == sess.UserID {
				account, partition, qos = other.Account, other.Partition, other.QoS
				break
			}
		}
		if account == "" && a.defaults != nil {
			account, partition, qos = a.defaults.DefaultsForUser(sess.UserID)
		}

		alloc := &model.Allocation{
			UserID:     sess.UserID,
			Token:      sess.Token,
			Size:       a.store.RoundUpToGranularity(bytesForToken(instances, sess.Token)),
			Account:    account,
			Partition:  partition,
			QoS:        qos,
			CreateTime: now,
			LastSeen:   now,
			State:      model.Allocated,
		}
		a.store.AddAllocation(alloc)
	}
}

// reclaimVanished implements step 4: free any allocation whose last-seen
// predates the prior load, and any completed allocation whose job has
// disappeared from the host scheduler.
func (a *Agent) reclaimVanished(now time.Time) {
	if a.lastLoadTime.IsZero() {
		return
	}

	for _, alloc := range a.store.AllAllocations() {
		vanished := alloc.LastSeen.Before(a.lastLoadTime)
		completedAndGone := alloc.State == model.Complete && a.jobLookup != nil && alloc.JobID != 0 && !a.jobLookup.JobExists(alloc.JobID)

		if vanished || completedAndGone {
			a.store.RemoveAllocation(alloc)
		}
	}
}

// enforceStageTimeouts implements the stage-in/stage-out timeout
// enforcement spec.md §4.4's closing paragraph describes: a plan that has
// sat in staging_in/staging_out longer than the configured threshold is
// forced to teardown.
func (a *Agent) enforceStageTimeouts(ctx context.Context, now time.Time) {
	if a.lifecycle == nil {
		return
	}
	for _, plan := range a.store.Plans() {
		switch plan.State {
		case model.StagingIn:
			if a.cfg.StageInTimeout > 0 && now.Sub(plan.StateEnteredAt) > a.cfg.StageInTimeout {
				a.logger.Warn("stage-in timed out, forcing teardown", "job_id", plan.JobID)
				a.lifecycle.Teardown(ctx, plan, true)
			}
		case model.StagingOut:
			if a.cfg.StageOutTimeout > 0 && now.Sub(plan.StateEnteredAt) > a.cfg.StageOutTimeout {
				a.logger.Warn("stage-out timed out, forcing teardown", "job_id", plan.JobID)
				a.lifecycle.Teardown(ctx, plan, true)
			}
		}
	}
}

// NotePersistentCreated marks that a persistent buffer was created since
// the last snapshot save, so the next pass writes one (spec.md §4.4 step
// 5 / §3's snapshot lifecycle rule).
func (a *Agent) NotePersistentCreated() {
	a.persistentCreatedAfterSave = true
}
