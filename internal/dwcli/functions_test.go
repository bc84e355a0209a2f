// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package dwcli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdoutIndicatesSuccess(t *testing.T) {
	assert.True(t, StdoutIndicatesSuccess("session created\nstatus: ok\n"))
	assert.False(t, StdoutIndicatesSuccess("Error: capacity exceeded"))
	assert.False(t, StdoutIndicatesSuccess("operation failed: disk full"))
	assert.True(t, StdoutIndicatesSuccess(""))
}
