// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package dwcli

import (
	"context"
	"time"

	"github.com/ninotreve/slurm/pkg/metrics"
	"github.com/ninotreve/slurm/pkg/retry"
	"github.com/ninotreve/slurm/pkg/workerpool"
)

// Dispatcher runs external-command invocations on a bounded worker pool
// (spec.md §5). InvokeSync waits on the pool for the call's result, so its
// caller blocks until the command resolves. If dispatch to the pool fails,
// it falls back to running the call inline, holding no locks (Design Note 2).
type Dispatcher struct {
	runner  Runner
	pool    *workerpool.Pool
	metrics metrics.Collector
}

// NewDispatcher creates a Dispatcher over runner, using pool for off-hot-path
// execution.
func NewDispatcher(runner Runner, pool *workerpool.Pool, collector metrics.Collector) *Dispatcher {
	return &Dispatcher{runner: runner, pool: pool, metrics: collector}
}

// Invoke submits one invocation to the worker pool and calls done with its
// result once complete. done is always called exactly once, either from a
// pool worker goroutine or, on dispatch failure, inline on the calling
// goroutine.
func (d *Dispatcher) Invoke(ctx context.Context, function, cliPath string, argv []string, timeout time.Duration, done func(*Result, error)) {
	if d.metrics != nil {
		d.metrics.RecordInvocation(function)
	}

	task := func() {
		result, err := d.runner.Run(ctx, cliPath, argv, timeout)
		if d.metrics != nil && result != nil {
			d.metrics.RecordCompletion(function, result.ExitStatus, result.Duration)
		}
		done(result, err)
	}

	if d.pool == nil {
		task()
		return
	}

	d.pool.DispatchOrInline(task, retry.NewExponentialBackoff())
}

// InvokeSync is a synchronous convenience wrapper for call sites (tests,
// the background agent's own pass) that need the result immediately rather
// than via callback.
func (d *Dispatcher) InvokeSync(ctx context.Context, function, cliPath string, argv []string, timeout time.Duration) (*Result, error) {
	type outcome struct {
		result *Result
		err    error
	}
	ch := make(chan outcome, 1)
	d.Invoke(ctx, function, cliPath, argv, timeout, func(r *Result, err error) {
		ch <- outcome{r, err}
	})
	o := <-ch
	return o.result, o.err
}
