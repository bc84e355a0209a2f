// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package layout builds the on-disk per-job artifact paths spec.md §6
// describes: <state_save_dir>/hash.<jid mod 10>/job.<jid>/{script,
// client_nids, pathfile, <phase>.env}.
package layout

import (
	"fmt"
	"path/filepath"
)

// JobDir returns the per-job artifact directory.
func JobDir(stateSaveDir string, jobID uint32) string {
	return filepath.Join(stateSaveDir, fmt.Sprintf("hash.%d", jobID%10), fmt.Sprintf("job.%d", jobID))
}

// ScriptPath is the job's batch script, written by validate2 and read by
// every external CLI invocation for that job.
func ScriptPath(stateSaveDir string, jobID uint32) string {
	return filepath.Join(JobDir(stateSaveDir, jobID), "script")
}

// NidsPath is the node list file passed to setup/pre_run via
// --nidlistfile.
func NidsPath(stateSaveDir string, jobID uint32) string {
	return filepath.Join(JobDir(stateSaveDir, jobID), "client_nids")
}

// PathFile is the env-var file the `paths` function writes during
// submission validation.
func PathFile(stateSaveDir string, jobID uint32) string {
	return filepath.Join(JobDir(stateSaveDir, jobID), "pathfile")
}

// PhaseEnvFile is the per-phase env-var output file (spec.md §6: "the
// per-phase env-var files").
func PhaseEnvFile(stateSaveDir string, jobID uint32, phase string) string {
	return filepath.Join(JobDir(stateSaveDir, jobID), phase+".env")
}
