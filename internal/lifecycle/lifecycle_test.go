// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninotreve/slurm/internal/dwcli"
	"github.com/ninotreve/slurm/internal/model"
	"github.com/ninotreve/slurm/internal/store"
)

type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]*dwcli.Result
	errs    map[string]error
	calls   []string
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{results: map[string]*dwcli.Result{}, errs: map[string]error{}}
}

func (r *scriptedRunner) script(function string, result *dwcli.Result, err error) {
	r.results[function] = result
	r.errs[function] = err
}

func (r *scriptedRunner) Run(ctx context.Context, cliPath string, argv []string, timeout time.Duration) (*dwcli.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	function := ""
	for i, a := range argv {
		if a == "--function" && i+1 < len(argv) {
			function = argv[i+1]
		}
	}
	r.calls = append(r.calls, function)

	if res, ok := r.results[function]; ok {
		return res, r.errs[function]
	}
	return &dwcli.Result{ExitStatus: 0}, nil
}

func newManager(runner dwcli.Runner) (*Manager, *store.Store) {
	st := store.New()
	d := dwcli.NewDispatcher(runner, nil, nil)
	cfg := Config{CLIPath: "/bin/dw_wlm_cli", StateSaveDir: "/tmp/bb", TimeoutFor: func(string) time.Duration { return time.Second }}
	return New(st, d, nil, cfg, nil), st
}

func waitFor(t *testing.T, plan *model.BufferPlan, want model.State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if plan.State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, want, plan.State)
}

func TestStageIn_SuccessReachesStagedIn(t *testing.T) {
	runner := newScriptedRunner()
	mgr, _ := newManager(runner)
	plan := &model.BufferPlan{JobID: 1}

	mgr.StartStageIn(context.Background(), plan, 100, "pool0:100", "")
	waitFor(t, plan, model.StagedIn)
}

func TestStageIn_SetupFailureForcesTeardown(t *testing.T) {
	runner := newScriptedRunner()
	runner.script(dwcli.FuncSetup, &dwcli.Result{ExitStatus: 1, Stderr: "boom"}, nil)
	mgr, _ := newManager(runner)
	plan := &model.BufferPlan{JobID: 2}

	mgr.StartStageIn(context.Background(), plan, 100, "pool0:100", "")
	waitFor(t, plan, model.Complete)
	assert.Equal(t, FailBurstBufferOp, plan.StateReason)
}

func TestTeardown_TokenNotFoundTreatedAsSuccess(t *testing.T) {
	runner := newScriptedRunner()
	runner.script(dwcli.FuncTeardown, &dwcli.Result{ExitStatus: 1, Stderr: "token not found"}, nil)
	mgr, _ := newManager(runner)
	plan := &model.BufferPlan{JobID: 3}

	mgr.Teardown(context.Background(), plan, false)
	waitFor(t, plan, model.Complete)
	assert.Empty(t, plan.StateReason)
}

func TestStartStageIn_RegistersAllocationWithUseTime(t *testing.T) {
	runner := newScriptedRunner()
	mgr, st := newManager(runner)
	endTime := time.Now().Add(2 * time.Hour)
	plan := &model.BufferPlan{JobID: 7, TotalSize: 100, EndTime: endTime}

	mgr.StartStageIn(context.Background(), plan, 42, "pool0:100", "")

	allocs := st.AllocationsForJob(7)
	require.Len(t, allocs, 1)
	assert.Equal(t, uint32(42), allocs[0].UserID)
	assert.Equal(t, endTime, allocs[0].UseTime)

	waitFor(t, plan, model.StagedIn)
}

func TestStageIn_UntrustedExitStatusFallsBackToStdout(t *testing.T) {
	runner := newScriptedRunner()
	runner.script(dwcli.FuncSetup, &dwcli.Result{ExitStatus: 1, Stdout: "setup complete"}, nil)
	st := store.New()
	d := dwcli.NewDispatcher(runner, nil, nil)
	cfg := Config{
		CLIPath:      "/bin/dw_wlm_cli",
		StateSaveDir: "/tmp/bb",
		TimeoutFor:   func(string) time.Duration { return time.Second },
		TrustExitStatus: func(function string) bool {
			return function != dwcli.FuncSetup
		},
	}
	mgr := New(st, d, nil, cfg, nil)
	plan := &model.BufferPlan{JobID: 9}

	mgr.StartStageIn(context.Background(), plan, 100, "pool0:100", "")
	waitFor(t, plan, model.StagedIn)
}

func TestTeardown_FreesJobAllocation(t *testing.T) {
	runner := newScriptedRunner()
	mgr, st := newManager(runner)
	plan := &model.BufferPlan{JobID: 8, TotalSize: 50}

	mgr.StartStageIn(context.Background(), plan, 1, "pool0:50", "")
	waitFor(t, plan, model.StagedIn)
	require.Len(t, st.AllocationsForJob(8), 1)

	mgr.Teardown(context.Background(), plan, true)
	waitFor(t, plan, model.Complete)
	assert.Empty(t, st.AllocationsForJob(8))
}

func TestBegin_PreRunSuccessMarksRunning(t *testing.T) {
	runner := newScriptedRunner()
	mgr, _ := newManager(runner)
	plan := &model.BufferPlan{JobID: 4, State: model.StagedIn}

	mgr.Begin(context.Background(), plan, "/tmp/bb/nids")
	waitFor(t, plan, model.Running)
}

func TestStartStageOut_RunsFullPipeline(t *testing.T) {
	runner := newScriptedRunner()
	mgr, _ := newManager(runner)
	plan := &model.BufferPlan{JobID: 5, State: model.Running}

	mgr.StartStageOut(context.Background(), plan)
	waitFor(t, plan, model.Complete)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Contains(t, runner.calls, dwcli.FuncDataOut)
	assert.Contains(t, runner.calls, dwcli.FuncPostRun)
	assert.Contains(t, runner.calls, dwcli.FuncTeardown)
}

func TestCancel_ForcesHurriedTeardown(t *testing.T) {
	runner := newScriptedRunner()
	mgr, _ := newManager(runner)
	plan := &model.BufferPlan{JobID: 6, State: model.Running}

	mgr.Cancel(context.Background(), plan)
	waitFor(t, plan, model.Complete)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Contains(t, runner.calls[len(runner.calls)-1], dwcli.FuncTeardown)
}
