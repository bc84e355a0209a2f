// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

var (
	// ErrMissingCLIPath is returned when no external CLI path is configured.
	ErrMissingCLIPath = errors.New("external CLI path is required")

	// ErrMissingStateSaveDir is returned when no state save directory is configured.
	ErrMissingStateSaveDir = errors.New("state save directory is required")

	// ErrInvalidTimeout is returned when the default timeout is invalid.
	ErrInvalidTimeout = errors.New("default timeout must be greater than 0")

	// ErrInvalidAgentInterval is returned when the agent interval is invalid.
	ErrInvalidAgentInterval = errors.New("agent interval must be greater than 0")

	// ErrInvalidGranularity is returned when the default pool granularity is zero.
	ErrInvalidGranularity = errors.New("default pool granularity must be greater than 0")
)
