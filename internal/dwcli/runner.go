// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package dwcli invokes the external data-movement CLI as a black-box
// command (spec.md §4.5 / §6): argv + timeout -> (exit status, captured
// stdout). Every invocation is safely callable from multiple concurrent
// workers.
package dwcli

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/ninotreve/slurm/pkg/logging"
)

// Result is the outcome of one external-command invocation.
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
	Duration   time.Duration
}

// Runner invokes the external CLI. Implementations must be safe for
// concurrent use by multiple workers (spec.md §4.5).
type Runner interface {
	Run(ctx context.Context, cliPath string, argv []string, timeout time.Duration) (*Result, error)
}

// ExecRunner is the production Runner: it shells out via os/exec.
type ExecRunner struct {
	logger logging.Logger
}

// NewExecRunner creates a Runner that spawns the real external CLI.
func NewExecRunner(logger logging.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &ExecRunner{logger: logger}
}

// Run invokes cliPath with argv, enforcing timeout. On timeout the child is
// killed and a synthetic nonzero status is returned (spec.md §4.5). Output
// is logged at debug level along with argv, tagged with a per-invocation
// correlation id so concurrent invocations are distinguishable in logs.
func (r *ExecRunner) Run(ctx context.Context, cliPath string, argv []string, timeout time.Duration) (*Result, error) {
	correlationID := uuid.NewString()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := r.logger.WithContext(ctx)

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(runCtx, cliPath, argv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	exitStatus := 0
	if runErr != nil {
		exitStatus = -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitStatus = exitErr.ExitCode()
		}
		if runCtx.Err() == context.DeadlineExceeded {
			exitStatus = -1
		}
	}

	log.Debug("external command invocation",
		"cli_path", cliPath,
		"argv", argv,
		"exit_status", exitStatus,
		"duration", duration,
		"stdout", stdout.String(),
		"stderr", stderr.String(),
	)

	result := &Result{
		ExitStatus: exitStatus,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Duration:   duration,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return result, context.DeadlineExceeded
	}

	return result, nil
}
