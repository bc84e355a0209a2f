// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package dwcli

import (
	"fmt"
	"regexp"
)

// Function names, matching spec.md §6's table exactly.
const (
	FuncJobProcess         = "job_process"
	FuncPaths               = "paths"
	FuncSetup               = "setup"
	FuncDataIn              = "data_in"
	FuncPreRun              = "pre_run"
	FuncDataOut             = "data_out"
	FuncPostRun             = "post_run"
	FuncTeardown            = "teardown"
	FuncCreatePersistent    = "create_persistent"
	FuncShowPools           = "show_pools"
	FuncShowInstances       = "show_instances"
	FuncShowSessions        = "show_sessions"
	FuncShowConfigurations  = "show_configurations"
)

// SetupArgs builds the argv for the `setup` function (spec.md §6).
func SetupArgs(token string, userID uint32, capacity string, scriptPath string, nidListFile string) []string {
	argv := []string{"--function", FuncSetup,
		"--token", token,
		"--caller", "SLURM",
		"--user", fmt.Sprintf("%d", userID),
		"--capacity", capacity,
		"--job", scriptPath,
	}
	if nidListFile != "" {
		argv = append(argv, "--nidlistfile", nidListFile)
	}
	return argv
}

// DataInArgs builds the argv for the `data_in` function.
func DataInArgs(token, scriptPath string) []string {
	return []string{"--function", FuncDataIn, "--token", token, "--job", scriptPath}
}

// PreRunArgs builds the argv for the `pre_run` function.
func PreRunArgs(token, scriptPath, nidListFile string) []string {
	argv := []string{"--function", FuncPreRun, "--token", token, "--job", scriptPath}
	if nidListFile != "" {
		argv = append(argv, "--nidlistfile", nidListFile)
	}
	return argv
}

// DataOutArgs builds the argv for the `data_out` function.
func DataOutArgs(token, scriptPath string) []string {
	return []string{"--function", FuncDataOut, "--token", token, "--job", scriptPath}
}

// PostRunArgs builds the argv for the `post_run` function.
func PostRunArgs(token, scriptPath string) []string {
	return []string{"--function", FuncPostRun, "--token", token, "--job", scriptPath}
}

// TeardownArgs builds the argv for the `teardown` function.
func TeardownArgs(token, scriptPath string, hurry bool) []string {
	argv := []string{"--function", FuncTeardown, "--token", token, "--job", scriptPath}
	if hurry {
		argv = append(argv, "--hurry")
	}
	return argv
}

// CreatePersistentArgs builds the argv for the `create_persistent` function.
func CreatePersistentArgs(cli, name string, userID uint32, capacity string, access, typ string) []string {
	argv := []string{"-c", cli, "-t", name, "-u", fmt.Sprintf("%d", userID), "-C", capacity}
	if access != "" {
		argv = append(argv, "-a", access)
	}
	if typ != "" {
		argv = append(argv, "-T", typ)
	}
	return argv
}

// JobProcessArgs builds the argv for the `job_process` function.
func JobProcessArgs(scriptPath string) []string {
	return []string{"--function", FuncJobProcess, "--job", scriptPath}
}

// PathsArgs builds the argv for the `paths` function.
func PathsArgs(scriptPath, token, pathFile string) []string {
	return []string{"--function", FuncPaths, "--job", scriptPath, "--token", token, "--pathfile", pathFile}
}

// ShowArgs builds the argv for any of the no-flag `show_*` functions.
func ShowArgs(function string) []string {
	return []string{"--function", function}
}

// errorMarkerPattern matches the stdout substrings a CLI build known to
// misreport its exit status still reliably emits on failure.
var errorMarkerPattern = regexp.MustCompile(`(?i)\b(error|failed|failure)\b`)

// StdoutIndicatesSuccess reports whether stdout carries no recognizable
// error marker, the fallback spec.md §9 calls for when a function's exit
// status is not trusted (pkg/config's TrustExitStatus table): the caller
// treats the invocation as having succeeded despite a nonzero/misreported
// exit code as long as stdout itself looks clean.
func StdoutIndicatesSuccess(stdout string) bool {
	return !errorMarkerPattern.MatchString(stdout)
}
