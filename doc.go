// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

/*
Package slurm implements a burst-buffer orchestration plugin: it parses
job burst-buffer directives, plans and admits buffer requests against a
capacity and quota model, drives each job's buffer through a stage-in /
run / stage-out lifecycle, and synchronizes that state against an
external data-movement subsystem invoked as a CLI.

# Overview

The host scheduler calls into Plugin's methods synchronously; Plugin
dispatches the stage-in, begin, stage-out and teardown work onto a bounded
worker pool so those calls return without waiting on the data-movement
subsystem, and runs a background agent that reconciles in-memory state
against the subsystem on a fixed interval. Validate2 is the exception: it
waits for its persistent create/destroy, job_process and paths calls.

# Basic usage

	cfg := config.NewDefault()
	cfg.Load()

	p, err := slurm.NewPlugin(cfg, runner, collaborators, collector, logger)
	if err != nil {
	    log.Fatal(err)
	}
	go p.RunAgent(ctx)

	plan, err := p.Validate(ctx, jobID, jobDescriptor, userID)
*/
package slurm
