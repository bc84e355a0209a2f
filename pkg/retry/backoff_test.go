// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_NextDelay(t *testing.T) {
	b := NewExponentialBackoff()
	b.Jitter = 0 // deterministic for the assertions below

	d0, ok := b.NextDelay(0)
	assert.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d0)

	d1, ok := b.NextDelay(1)
	assert.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, d1)

	_, ok = b.NextDelay(b.MaxAttempts)
	assert.False(t, ok)
}

func TestExponentialBackoff_CapsAtMaxDelay(t *testing.T) {
	b := NewExponentialBackoff()
	b.Jitter = 0
	b.MaxAttempts = 100

	d, ok := b.NextDelay(50)
	assert.True(t, ok)
	assert.LessOrEqual(t, d, b.MaxDelay)
}
