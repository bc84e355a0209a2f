// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package dwcli

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninotreve/slurm/pkg/metrics"
	"github.com/ninotreve/slurm/pkg/workerpool"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	next  *Result
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, cliPath string, argv []string, timeout time.Duration) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cliPath)
	return f.next, f.err
}

func TestDispatcher_InvokeSync(t *testing.T) {
	runner := &fakeRunner{next: &Result{ExitStatus: 0, Stdout: "ok"}}
	collector := metrics.NewInMemoryCollector()
	d := NewDispatcher(runner, workerpool.New(workerpool.DefaultConfig(), nil), collector)

	result, err := d.InvokeSync(context.Background(), FuncDataIn, "/bin/dw_wlm_cli", DataInArgs("tok", "/job/script"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitStatus)

	stats := collector.Stats()
	assert.Equal(t, int64(1), stats.InvocationsByFunc[FuncDataIn])
}

func TestDispatcher_NilPoolRunsInline(t *testing.T) {
	runner := &fakeRunner{next: &Result{ExitStatus: 0}}
	d := NewDispatcher(runner, nil, nil)

	result, err := d.InvokeSync(context.Background(), FuncTeardown, "/bin/dw_wlm_cli", TeardownArgs("tok", "/job/script", true), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitStatus)
}

func TestSetupArgs_IncludesNidListFile(t *testing.T) {
	argv := SetupArgs("123", 1001, "pool0:100", "/job/script", "/job/nids")
	assert.Contains(t, argv, "--nidlistfile")
	assert.Contains(t, argv, "/job/nids")
}

func TestTeardownArgs_Hurry(t *testing.T) {
	argv := TeardownArgs("123", "/job/script", true)
	assert.Contains(t, argv, "--hurry")
}
