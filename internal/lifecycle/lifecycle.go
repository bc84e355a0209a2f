// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle drives a BufferPlan through the job state machine
// spec.md §4.2 describes: pending -> staging_in -> staged_in -> running ->
// staging_out -> teardown -> complete, with forced-teardown-on-error paths
// and idempotent teardown.
package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ninotreve/slurm/internal/dwcli"
	"github.com/ninotreve/slurm/internal/hostiface"
	"github.com/ninotreve/slurm/internal/layout"
	"github.com/ninotreve/slurm/internal/model"
	"github.com/ninotreve/slurm/internal/store"
	berrors "github.com/ninotreve/slurm/pkg/errors"
	"github.com/ninotreve/slurm/pkg/logging"
	"github.com/ninotreve/slurm/pkg/workerpool"
)

// FailBurstBufferOp is the state_reason spec.md §4.2/§7 requires on a
// forced teardown caused by an external command failure.
const FailBurstBufferOp = "FAIL_BURST_BUFFER_OP"

// Config carries the settings lifecycle needs from pkg/config without
// importing it directly, keeping this package testable with fakes.
type Config struct {
	CLIPath      string
	StateSaveDir string
	TimeoutFor   func(function string) time.Duration

	// TrustExitStatus reports whether function's exit status may be
	// trusted outright (pkg/config.Config.ShouldTrustExitStatus). When it
	// reports false, a nonzero/failed exit is reconsidered by scanning
	// stdout for an error marker before the call is treated as failed
	// (spec.md §9). Nil trusts every function.
	TrustExitStatus func(function string) bool
}

// Manager drives BufferPlan transitions. Stage-in, begin, stage-out and
// teardown never block a facade caller: each such multi-step phase is
// submitted as one detached task on pool, per
// spec.md §4.2's "a detached worker task is spawned per step" (here, one
// task per phase; the CLI calls within a phase are necessarily sequential
// since data_in requires setup to have already registered the session).
// If pool dispatch fails, the whole phase runs inline as a fallback
// (Design Note 2), never silently dropped.
type Manager struct {
	store      *store.Store
	dispatcher *dwcli.Dispatcher
	pool       *workerpool.Pool
	cfg        Config
	logger     logging.Logger
}

// New creates a Manager.
func New(st *store.Store, dispatcher *dwcli.Dispatcher, pool *workerpool.Pool, cfg Config, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &Manager{store: st, dispatcher: dispatcher, pool: pool, cfg: cfg, logger: logger}
}

func token(jobID uint32) string {
	return strconv.FormatUint(uint64(jobID), 10)
}

func (m *Manager) run(task func()) {
	if m.pool == nil {
		task()
		return
	}
	if err := m.pool.Dispatch(task); err != nil {
		m.logger.Warn("phase dispatch failed, running inline", "error", err)
		task()
	}
}

// ProcessPersistentOps runs every create/destroy/use sub-operation embedded
// in plan, gated by spec.md §4.2's "the plan stays in allocating/deleting
// until every sub-op leaves the active set {pending, allocating, deleting,
// teardown}": the plan is moved into Allocating (or Deleting, if every
// embedded op is a destroy) before the first sub-op runs, and each op's
// State is only marked Complete — leaving the active set — once its own
// external call resolves, whether it succeeded or failed. When an op
// errors, ProcessPersistentOps returns immediately without touching the
// ops after it: they stay Pending, so plan.ActiveSubOps() reports true
// while any remain, and the plan stays in Allocating/Deleting in either
// case because the closing transition below is never reached.
//
// Unlike the stage-in/stage-out phases, this runs its external calls on
// the caller's goroutine and returns only once they have resolved.
//
// superUser gates the destroy-by-non-owner bypass (spec.md §4.2); onCreated
// is invoked after every successful create, so the caller's background
// agent knows to persist a fresh snapshot (spec.md §4.4 step 5).
func (m *Manager) ProcessPersistentOps(ctx context.Context, plan *model.BufferPlan, userID uint32, superUser hostiface.SuperUser, onCreated func()) error {
	if len(plan.PersistentOps) == 0 {
		return nil
	}

	destroyOnly := true
	for _, op := range plan.PersistentOps {
		if op.Op != model.OpDestroy {
			destroyOnly = false
			break
		}
	}
	if destroyOnly {
		m.transition(plan, model.Deleting)
	} else {
		m.transition(plan, model.Allocating)
	}

	for i := range plan.PersistentOps {
		if err := m.runPersistentOp(ctx, plan, &plan.PersistentOps[i], userID, superUser, onCreated); err != nil {
			return err
		}
	}

	if !plan.ActiveSubOps() {
		if plan.HasScratchRequest() {
			m.transition(plan, model.Allocated)
		} else {
			m.transition(plan, model.Complete)
		}
	}
	return nil
}

// runPersistentOp executes one PersistentOp's external call and marks it
// Complete (leaving the active set) once resolved, whether it succeeded or
// failed; the caller's early return on error is what keeps later ops (and
// thus the plan) in the active set.
//
// The external CLI function table (spec.md §6) names no dedicated destroy
// function; destroy reuses teardown, keyed by the persistent buffer's name
// standing in for the job token (DESIGN.md Open Question 4).
func (m *Manager) runPersistentOp(ctx context.Context, plan *model.BufferPlan, op *model.PersistentOp, userID uint32, superUser hostiface.SuperUser, onCreated func()) error {
	switch op.Op {
	case model.OpCreate:
		capacitySpec := fmt.Sprintf("pool:%d", op.Size)
		argv := dwcli.CreatePersistentArgs(m.cfg.CLIPath, op.Name, userID, capacitySpec, op.AccessMode, op.Type)
		result, err := m.dispatcher.InvokeSync(ctx, dwcli.FuncCreatePersistent, m.cfg.CLIPath, argv, m.timeoutFor(dwcli.FuncCreatePersistent))
		if err != nil || !m.succeeded(dwcli.FuncCreatePersistent, result) {
			op.State = model.Complete
			return m.classify(dwcli.FuncCreatePersistent, err, result)
		}

		now := time.Now()
		m.store.AddAllocation(&model.Allocation{
			UserID:     userID,
			Name:       op.Name,
			Size:       m.store.RoundUpToGranularity(op.Size),
			Account:    plan.Account,
			Partition:  plan.Partition,
			QoS:        plan.QoS,
			CreateTime: now,
			LastSeen:   now,
			State:      model.Allocated,
		})
		if onCreated != nil {
			onCreated()
		}
		op.State = model.Complete

	case model.OpDestroy:
		existing := m.store.FindPersistentByName(userID, op.Name)
		if existing == nil && (superUser == nil || !superUser.IsSuperUser(userID)) {
			plan.Priority = 0
			op.State = model.Complete
			return berrors.NewPermissionDenied(fmt.Sprintf("persistent buffer %q is not owned by this user", op.Name))
		}

		result, err := m.dispatcher.InvokeSync(ctx, dwcli.FuncTeardown, m.cfg.CLIPath, dwcli.TeardownArgs(op.Name, "", op.Hurry), m.timeoutFor(dwcli.FuncTeardown))
		if err != nil || !m.succeeded(dwcli.FuncTeardown, result) {
			stderr := ""
			if result != nil {
				stderr = result.Stderr
			}
			if !berrors.IsTokenNotFound(stderr) {
				op.State = model.Complete
				return m.classify(dwcli.FuncTeardown, err, result)
			}
		}
		if existing != nil {
			m.store.RemoveAllocation(existing)
		}
		op.State = model.Complete

	case model.OpUse:
		if m.store.FindPersistentByName(userID, op.Name) == nil {
			op.State = model.Complete
			return berrors.NewInvalidRequest(fmt.Sprintf("persistent buffer %q does not exist", op.Name))
		}
		op.State = model.Complete
	}
	return nil
}

// StartStageIn launches setup + data_in for plan as a detached phase. It
// is safe to call from a facade operation: it returns immediately.
//
// It also registers the job-scratch Allocation the moment stage-in begins
// (spec.md §3: "Allocation (job-scratch): created when stage-in begins"),
// stamping plan.EndTime onto the allocation's UseTime so the planner's
// preemption walk has a genuine projected use_time to compare against.
func (m *Manager) StartStageIn(ctx context.Context, plan *model.BufferPlan, userID uint32, capacitySpec, nidsFile string) {
	m.store.PutPlan(plan)
	m.registerAllocation(plan, userID)
	m.transition(plan, model.StagingIn)

	m.run(func() {
		m.runStageIn(ctx, plan, userID, capacitySpec, nidsFile)
	})
}

// registerAllocation charges the job-scratch buffer against userID and
// capacity/quota bookkeeping, keyed by plan.JobID.
func (m *Manager) registerAllocation(plan *model.BufferPlan, userID uint32) {
	now := time.Now()
	size := m.store.RoundUpToGranularity(plan.TotalSize + plan.PersistentCreateSize())
	m.store.AddAllocation(&model.Allocation{
		UserID:     userID,
		JobID:      plan.JobID,
		Size:       size,
		Account:    plan.Account,
		Partition:  plan.Partition,
		QoS:        plan.QoS,
		CreateTime: now,
		LastSeen:   now,
		UseTime:    plan.EndTime,
		State:      model.StagingIn,
	})
}

func (m *Manager) runStageIn(ctx context.Context, plan *model.BufferPlan, userID uint32, capacitySpec, nidsFile string) {
	tok := token(plan.JobID)
	scriptPath := layout.ScriptPath(m.cfg.StateSaveDir, plan.JobID)

	if result, err := m.invoke(ctx, dwcli.FuncSetup, dwcli.SetupArgs(tok, userID, capacitySpec, scriptPath, nidsFile)); err != nil {
		m.forceTeardown(ctx, plan, dwcli.FuncSetup, err, result)
		return
	}

	if result, err := m.invoke(ctx, dwcli.FuncDataIn, dwcli.DataInArgs(tok, scriptPath)); err != nil {
		m.forceTeardown(ctx, plan, dwcli.FuncDataIn, err, result)
		return
	}

	m.transition(plan, model.StagedIn)
}

// Begin writes the nid-file (left to the caller via nidsFile, already
// written), invokes pre_run, and marks the plan running (spec.md §4.8
// begin(job)).
func (m *Manager) Begin(ctx context.Context, plan *model.BufferPlan, nidsFile string) {
	m.run(func() {
		tok := token(plan.JobID)
		scriptPath := layout.ScriptPath(m.cfg.StateSaveDir, plan.JobID)

		if result, err := m.invoke(ctx, dwcli.FuncPreRun, dwcli.PreRunArgs(tok, scriptPath, nidsFile)); err != nil {
			m.forceTeardown(ctx, plan, dwcli.FuncPreRun, err, result)
			return
		}
		m.transition(plan, model.Running)
	})
}

// StartStageOut enqueues the data_out -> post_run -> teardown pipeline
// (spec.md §4.8 start_stage_out(job)).
func (m *Manager) StartStageOut(ctx context.Context, plan *model.BufferPlan) {
	m.transition(plan, model.StagingOut)

	m.run(func() {
		tok := token(plan.JobID)
		scriptPath := layout.ScriptPath(m.cfg.StateSaveDir, plan.JobID)

		if result, err := m.invoke(ctx, dwcli.FuncDataOut, dwcli.DataOutArgs(tok, scriptPath)); err != nil {
			m.forceTeardown(ctx, plan, dwcli.FuncDataOut, err, result)
			return
		}
		if result, err := m.invoke(ctx, dwcli.FuncPostRun, dwcli.PostRunArgs(tok, scriptPath)); err != nil {
			m.forceTeardown(ctx, plan, dwcli.FuncPostRun, err, result)
			return
		}

		m.Teardown(ctx, plan, false)
	})
}

// Teardown runs the teardown external step and marks the plan complete.
// It is idempotent: a "token not found" stderr is treated as success
// (spec.md §4.2/§7), since the external subsystem may legitimately have no
// record of the job. On completion it frees the job's charged allocations
// (spec.md §3: "freed on teardown-complete").
func (m *Manager) Teardown(ctx context.Context, plan *model.BufferPlan, hurry bool) {
	m.transition(plan, model.Teardown)

	m.run(func() {
		tok := token(plan.JobID)
		scriptPath := layout.ScriptPath(m.cfg.StateSaveDir, plan.JobID)

		result, err := m.dispatcher.InvokeSync(ctx, dwcli.FuncTeardown, m.cfg.CLIPath, dwcli.TeardownArgs(tok, scriptPath, hurry), m.timeoutFor(dwcli.FuncTeardown))
		if err != nil || !m.succeeded(dwcli.FuncTeardown, result) {
			stderr := ""
			if result != nil {
				stderr = result.Stderr
			}
			if berrors.IsTokenNotFound(stderr) {
				m.logger.Debug("teardown token not found, treating as success", "job_id", plan.JobID)
			} else {
				bberr := m.classify(dwcli.FuncTeardown, err, result)
				plan.StateReason = FailBurstBufferOp
				plan.StateDesc = bberr.Error()
				m.logger.Warn("teardown reported failure", "job_id", plan.JobID, "error", bberr)
			}
		}

		for _, alloc := range m.store.AllocationsForJob(plan.JobID) {
			m.store.RemoveAllocation(alloc)
		}

		m.transition(plan, model.Complete)
	})
}

// Cancel forces a hurried teardown regardless of current state (spec.md
// §4.8 cancel(job)).
func (m *Manager) Cancel(ctx context.Context, plan *model.BufferPlan) {
	m.Teardown(ctx, plan, true)
}

// forceTeardown records the triggering error and forces a hurried
// teardown, per spec.md §4.2's "any non-zero exit status from an external
// stage step forces teardown with the hurry flag."
func (m *Manager) forceTeardown(ctx context.Context, plan *model.BufferPlan, function string, err error, result *dwcli.Result) {
	bberr := m.classify(function, err, result)
	plan.StateReason = FailBurstBufferOp
	plan.StateDesc = bberr.Error()
	m.logger.Warn("forcing teardown after external step failure", "job_id", plan.JobID, "function", function, "error", bberr)
	m.Teardown(ctx, plan, true)
}

// invoke runs function and returns a non-nil error if either the runner
// itself failed or the process exited non-zero; result is always returned
// (possibly nil) so the caller can recover the captured stderr for error
// classification.
func (m *Manager) invoke(ctx context.Context, function string, argv []string) (*dwcli.Result, error) {
	result, err := m.dispatcher.InvokeSync(ctx, function, m.cfg.CLIPath, argv, m.timeoutFor(function))
	if err != nil {
		return result, err
	}
	if !m.succeeded(function, result) {
		return result, fmt.Errorf("%s exited %d", function, result.ExitStatus)
	}
	return result, nil
}

func (m *Manager) classify(function string, err error, result *dwcli.Result) *berrors.BBError {
	stderr := ""
	if result != nil {
		stderr = result.Stderr
	}
	if err != nil {
		return berrors.WrapExternal(function, err, stderr)
	}
	return berrors.WrapExternal(function, fmt.Errorf("non-zero exit"), stderr)
}

func (m *Manager) timeoutFor(function string) time.Duration {
	if m.cfg.TimeoutFor != nil {
		return m.cfg.TimeoutFor(function)
	}
	return 5 * time.Second
}

// succeeded reports whether an external call to function should be
// treated as successful, given its raw exit status and captured stdout
// (spec.md §9's TrustExitStatus escape hatch).
func (m *Manager) succeeded(function string, result *dwcli.Result) bool {
	if result == nil {
		return false
	}
	if result.ExitStatus == 0 {
		return true
	}
	trust := true
	if m.cfg.TrustExitStatus != nil {
		trust = m.cfg.TrustExitStatus(function)
	}
	return !trust && dwcli.StdoutIndicatesSuccess(result.Stdout)
}

func (m *Manager) transition(plan *model.BufferPlan, s model.State) {
	plan.SetState(s, time.Now())
}
