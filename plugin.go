// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package slurm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ninotreve/slurm/internal/agent"
	"github.com/ninotreve/slurm/internal/builders"
	"github.com/ninotreve/slurm/internal/directive"
	"github.com/ninotreve/slurm/internal/dwcli"
	"github.com/ninotreve/slurm/internal/hostiface"
	"github.com/ninotreve/slurm/internal/layout"
	"github.com/ninotreve/slurm/internal/lifecycle"
	"github.com/ninotreve/slurm/internal/model"
	"github.com/ninotreve/slurm/internal/planner"
	"github.com/ninotreve/slurm/internal/store"
	"github.com/ninotreve/slurm/pkg/config"
	berrors "github.com/ninotreve/slurm/pkg/errors"
	"github.com/ninotreve/slurm/pkg/logging"
	"github.com/ninotreve/slurm/pkg/metrics"
	"github.com/ninotreve/slurm/pkg/workerpool"
)

// bytesPerMB is the divisor set_tres_cnt and xlate_bb_2_tres_str use to
// report a byte quantity as the MB the host scheduler's TRES vector wants
// (spec.md §4.8, GLOSSARY "TRES").
const bytesPerMB = 1 << 20

// Collaborators bundles the host-scheduler-provided interfaces this
// plugin needs; it never assumes a concrete scheduler implementation
// (spec.md §1's externalized-collaborators stance).
type Collaborators struct {
	Queue        hostiface.JobQueue
	Reservations hostiface.ReservationQuery
	Defaults     hostiface.AccountingDefaults
	JobLookup    hostiface.JobLookup
	SuperUser    hostiface.SuperUser
	JobWriteLock hostiface.JobWriteLock
}

// Plugin is the single owning object instantiated at plugin init and
// threaded into every facade call (Design Note: "Global mutable state" ->
// "a single owning object instantiated at plugin init").
type Plugin struct {
	cfg         *config.Config
	store       *store.Store
	dispatcher  *dwcli.Dispatcher
	pool        *workerpool.Pool
	lifecycle   *lifecycle.Manager
	planner     *planner.Planner
	agent       *agent.Agent
	snapshotter *store.Snapshotter
	logger      logging.Logger

	queue        hostiface.JobQueue
	defaults     hostiface.AccountingDefaults
	superUser    hostiface.SuperUser
	jobWriteLock hostiface.JobWriteLock
	policy       directive.Policy
}

// NewPlugin wires every component from cfg and collab, restoring any
// on-disk snapshot before returning (spec.md §5's "recovery reads it at
// startup").
func NewPlugin(cfg *config.Config, runner dwcli.Runner, collab Collaborators, collector metrics.Collector, logger logging.Logger) (*Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	st := store.New()
	st.SetCapacity(cfg.DefaultPoolGranularity, 0, 0)

	pool := workerpool.New(workerpool.DefaultConfig(), logger)
	dispatcher := dwcli.NewDispatcher(runner, pool, collector)
	snap := store.NewSnapshotter(cfg.StateSaveDir, cfg.EmulationMode)

	restored, err := snap.Load()
	if err != nil {
		return nil, err
	}
	for _, a := range restored {
		st.AddAllocation(a)
	}

	lm := lifecycle.New(st, dispatcher, pool, lifecycle.Config{
		CLIPath:         cfg.CLIPath,
		StateSaveDir:    cfg.StateSaveDir,
		TimeoutFor:      cfg.TimeoutFor,
		TrustExitStatus: cfg.ShouldTrustExitStatus,
	}, logger)

	pl := planner.New(st, collab.Reservations, planner.Config{UserSizeLimit: cfg.UserSizeLimit})

	ag := agent.New(st, dispatcher, snap, collab.Defaults, collab.JobLookup, lm, agent.Config{
		Interval:        cfg.AgentInterval,
		CLIPath:         cfg.CLIPath,
		ShowTimeout:     cfg.TimeoutFor(dwcli.FuncShowPools),
		EmulationMode:   cfg.EmulationMode,
		StageInTimeout:  cfg.TimeoutFor(dwcli.FuncDataIn),
		StageOutTimeout: cfg.TimeoutFor(dwcli.FuncDataOut),
		TrustExitStatus: cfg.ShouldTrustExitStatus,
	}, logger)

	return &Plugin{
		cfg:          cfg,
		store:        st,
		dispatcher:   dispatcher,
		pool:         pool,
		lifecycle:    lm,
		planner:      pl,
		agent:        ag,
		snapshotter:  snap,
		logger:       logger,
		queue:        collab.Queue,
		defaults:     collab.Defaults,
		superUser:    collab.SuperUser,
		jobWriteLock: collab.JobWriteLock,
		policy:       directive.Policy{AllowAllPersistent: cfg.AllowAllPersistent},
	}, nil
}

// RunAgent runs the background sync loop until ctx is canceled; callers
// typically launch it with `go p.RunAgent(ctx)` once at startup.
func (p *Plugin) RunAgent(ctx context.Context) {
	p.agent.Run(ctx)
}

// Close drains the worker pool, for orderly plugin shutdown.
func (p *Plugin) Close() {
	p.pool.Close()
}

func (p *Plugin) withJobLock(fn func()) {
	if p.jobWriteLock != nil {
		p.jobWriteLock.Lock()
		defer p.jobWriteLock.Unlock()
	}
	fn()
}

// Validate implements spec.md §4.8 validate(job_desc, uid): parse the
// directive, enforce the allow/deny lists and the per-user size limit,
// and build the BufferPlan that every later phase re-reads via its
// canonical string.
func (p *Plugin) Validate(ctx context.Context, jobID uint32, desc directive.JobDescriptor, userID uint32) (*model.BufferPlan, error) {
	if p.cfg.DenyUsers[userID] {
		return nil, berrors.NewPermissionDenied("user is denied burst buffer use")
	}
	if len(p.cfg.AllowUsers) > 0 && !p.cfg.AllowUsers[userID] {
		return nil, berrors.NewPermissionDenied("user is not on the burst buffer allow list")
	}

	spec, err := directive.Parse(desc, p.policy)
	if err != nil {
		return nil, err
	}
	if spec.IsEmpty() {
		return nil, nil
	}

	b := builders.NewPlanBuilder(jobID).WithSpec(spec).WithCanonical(spec.Canonical())
	if p.defaults != nil {
		account, partition, qos := p.defaults.DefaultsForUser(userID)
		b = b.WithAccounting(account, partition, qos)
	}
	plan, err := b.Build()
	if err != nil {
		return nil, err
	}

	if p.cfg.UserSizeLimit > 0 {
		projected := p.store.UserUsage(userID) + plan.TotalSize + plan.PersistentCreateSize()
		if projected > p.cfg.UserSizeLimit {
			return nil, berrors.NewLimitExceeded(fmt.Sprintf("requested size %d would exceed user limit %d", projected, p.cfg.UserSizeLimit))
		}
	}

	// The host job-write lock, when the host provides one, must be held
	// before the state mutex Store.PutPlan acquires internally (spec.md
	// §5 lock ordering).
	p.withJobLock(func() {
		p.store.PutPlan(plan)
	})
	return plan, nil
}

// Validate2 implements spec.md §4.8 validate2(job): write the per-job
// on-disk artifacts, invoke job_process and paths, and attempt an
// immediate stage-in on success. The persistent create/destroy calls,
// job_process and paths run through InvokeSync, so Validate2 returns only
// after they have resolved; the stage-in itself is dispatched.
func (p *Plugin) Validate2(ctx context.Context, plan *model.BufferPlan, scriptBody string, userID uint32) (map[string]string, error) {
	if err := p.lifecycle.ProcessPersistentOps(ctx, plan, userID, p.superUser, p.agent.NotePersistentCreated); err != nil {
		return nil, err
	}
	if !plan.HasScratchRequest() {
		// A persistent-only plan is already Complete by the call above;
		// there is nothing of this job's own to stage in.
		return map[string]string{}, nil
	}

	dir := layout.JobDir(p.cfg.StateSaveDir, plan.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, berrors.Wrap(berrors.KindExternalError, "failed to create job artifact directory", err)
	}

	scriptPath := layout.ScriptPath(p.cfg.StateSaveDir, plan.JobID)
	if err := os.WriteFile(scriptPath, []byte(scriptBody), 0o644); err != nil {
		return nil, berrors.Wrap(berrors.KindExternalError, "failed to write job script", err)
	}

	timeout := p.cfg.TimeoutFor(dwcli.FuncJobProcess)
	jpResult, err := p.dispatcher.InvokeSync(ctx, dwcli.FuncJobProcess, p.cfg.CLIPath, dwcli.JobProcessArgs(scriptPath), timeout)
	if err == nil && jpResult != nil && jpResult.ExitStatus != 0 && (p.cfg.ShouldTrustExitStatus(dwcli.FuncJobProcess) || !dwcli.StdoutIndicatesSuccess(jpResult.Stdout)) {
		err = fmt.Errorf("exit status %d", jpResult.ExitStatus)
	}
	if err != nil {
		return nil, berrors.WrapExternal(dwcli.FuncJobProcess, err, "")
	}

	pathFile := layout.PathFile(p.cfg.StateSaveDir, plan.JobID)
	tok := fmt.Sprintf("%d", plan.JobID)
	pathsResult, err := p.dispatcher.InvokeSync(ctx, dwcli.FuncPaths, p.cfg.CLIPath, dwcli.PathsArgs(scriptPath, tok, pathFile), p.cfg.TimeoutFor(dwcli.FuncPaths))
	if err == nil && pathsResult != nil && pathsResult.ExitStatus != 0 && (p.cfg.ShouldTrustExitStatus(dwcli.FuncPaths) || !dwcli.StdoutIndicatesSuccess(pathsResult.Stdout)) {
		err = fmt.Errorf("exit status %d", pathsResult.ExitStatus)
	}
	if err != nil {
		return nil, berrors.WrapExternal(dwcli.FuncPaths, err, "")
	}

	envVars, err := readEnvFile(pathFile)
	if err != nil {
		return nil, berrors.Wrap(berrors.KindExternalError, "failed to read env-var file", err)
	}

	capacitySpec := fmt.Sprintf("pool:%d", plan.TotalSize+plan.PersistentCreateSize())
	nidsFile := layout.NidsPath(p.cfg.StateSaveDir, plan.JobID)
	p.lifecycle.StartStageIn(ctx, plan, userID, capacitySpec, nidsFile)

	return envVars, nil
}

func readEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// SetTRESCount implements spec.md §4.8 set_tres_cnt(job): report the
// job's byte request as MB.
func (p *Plugin) SetTRESCount(plan *model.BufferPlan) uint64 {
	return (plan.TotalSize + plan.PersistentCreateSize()) / bytesPerMB
}

// GetEstStart implements spec.md §4.8 get_est_start(job): now, now+1s, or
// now+365d depending on the planner's verdict for this plan.
func (p *Plugin) GetEstStart(userID uint32, plan *model.BufferPlan, now time.Time) time.Time {
	switch p.planner.Evaluate(userID, plan, now).Verdict {
	case planner.VerdictAdmit:
		return now
	case planner.VerdictSkip:
		return now.Add(time.Second)
	default:
		return now.AddDate(1, 0, 0)
	}
}

// TryStageIn implements spec.md §4.8 try_stage_in(queue): iterate pending
// candidates in the host's sorted order, admitting and launching stage-in
// for each, stopping the very moment the planner halts the queue.
func (p *Plugin) TryStageIn(ctx context.Context) {
	if p.queue == nil {
		return
	}
	now := time.Now()

	for _, cand := range p.queue.PendingCandidates() {
		cand.Plan.StartTime = cand.StartTime
		cand.Plan.EndTime = cand.EndTime
		decision := p.planner.Evaluate(cand.UserID, cand.Plan, now)
		switch decision.Verdict {
		case planner.VerdictHalt:
			return
		case planner.VerdictSkip:
			continue
		}

		p.withJobLock(func() {
			for _, victim := range decision.PreemptedVictims {
				if victim.JobID != 0 {
					if victimPlan := p.store.GetPlan(victim.JobID); victimPlan != nil {
						p.lifecycle.Cancel(ctx, victimPlan)
					}
				}
			}

			capacitySpec := fmt.Sprintf("pool:%d", cand.Plan.TotalSize+cand.Plan.PersistentCreateSize())
			nidsFile := layout.NidsPath(p.cfg.StateSaveDir, cand.JobID)
			p.lifecycle.StartStageIn(ctx, cand.Plan, cand.UserID, capacitySpec, nidsFile)
		})
	}
}

// TestStageIn implements spec.md §4.8 test_stage_in(job): 1 staged, 0 in
// progress, -1 not started or in error.
func (p *Plugin) TestStageIn(plan *model.BufferPlan) int {
	switch {
	case plan.StateReason != "":
		return -1
	case plan.State >= model.StagedIn:
		return 1
	case plan.State == model.StagingIn && plan.StateReason == "":
		return 0
	default:
		return -1
	}
}

// Begin implements spec.md §4.8 begin(job): write the allocated node
// list, invoke pre_run, and mark the plan running.
func (p *Plugin) Begin(ctx context.Context, plan *model.BufferPlan, nids []string) error {
	nidsFile := layout.NidsPath(p.cfg.StateSaveDir, plan.JobID)
	if err := os.MkdirAll(layout.JobDir(p.cfg.StateSaveDir, plan.JobID), 0o755); err != nil {
		return berrors.Wrap(berrors.KindExternalError, "failed to create job artifact directory", err)
	}
	if err := os.WriteFile(nidsFile, []byte(strings.Join(nids, "\n")+"\n"), 0o644); err != nil {
		return berrors.Wrap(berrors.KindExternalError, "failed to write node list", err)
	}

	p.lifecycle.Begin(ctx, plan, nidsFile)
	return nil
}

// StartStageOut implements spec.md §4.8 start_stage_out(job): enqueue the
// stage-out -> post-run -> teardown pipeline.
func (p *Plugin) StartStageOut(ctx context.Context, plan *model.BufferPlan) {
	p.lifecycle.StartStageOut(ctx, plan)
}

// TestStageOut implements spec.md §4.8 test_stage_out(job): 1 done, 0 in
// progress, -1 fatal.
func (p *Plugin) TestStageOut(plan *model.BufferPlan) int {
	switch {
	case plan.State == model.Complete && plan.StateReason == "":
		return 1
	case plan.State == model.Complete:
		return -1
	default:
		return 0
	}
}

// Cancel implements spec.md §4.8 cancel(job): force a hurried teardown.
func (p *Plugin) Cancel(ctx context.Context, plan *model.BufferPlan) {
	p.lifecycle.Cancel(ctx, plan)
}

// JobState is the public, read-only view of one job's burst-buffer state,
// the unit state_pack serializes (spec.md §4.8 state_pack(uid)).
type JobState struct {
	JobID       uint32
	State       string
	StateReason string
	StateDesc   string
	TotalSize   uint64
}

// StatePack implements spec.md §4.8 state_pack(uid): serialize every
// tracked plan's public state for operator queries, optionally filtered
// to one user's own allocations unless the caller is a super user.
func (p *Plugin) StatePack(userID uint32) []JobState {
	isSuper := p.superUser != nil && p.superUser.IsSuperUser(userID)

	var out []JobState
	for _, plan := range p.store.Plans() {
		if !isSuper {
			owned := false
			for _, alloc := range p.store.AllocationsForJob(plan.JobID) {
				if alloc.UserID == userID {
					owned = true
					break
				}
			}
			if !owned {
				continue
			}
		}
		out = append(out, JobState{
			JobID:       plan.JobID,
			State:       plan.State.String(),
			StateReason: plan.StateReason,
			StateDesc:   plan.StateDesc,
			TotalSize:   plan.TotalSize,
		})
	}
	return out
}

// XlateBB2TRESStr implements spec.md §4.8 xlate_bb_2_tres_str(s): parse a
// canonical burst-buffer string and render it as a `TRES=count` string in
// MB, the form the host scheduler's accounting layer expects.
func (p *Plugin) XlateBB2TRESStr(canonical string) (string, error) {
	spec, err := directive.ParseCanonical(canonical)
	if err != nil {
		return "", err
	}
	mb := (spec.TotalSize() + persistentCreateSize(spec)) / bytesPerMB
	return fmt.Sprintf("bb/cray=%d", mb), nil
}

func persistentCreateSize(spec *directive.Spec) uint64 {
	var total uint64
	for _, op := range spec.Persistents {
		if op.Kind == model.OpCreate {
			total += op.Size
		}
	}
	return total
}
