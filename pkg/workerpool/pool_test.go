// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninotreve/slurm/pkg/retry"
)

func TestPool_DispatchRunsTask(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 4}, nil)
	defer p.Close()

	var wg sync.WaitGroup
	var ran int32
	wg.Add(1)
	err := p.Dispatch(func() {
		atomic.AddInt32(&ran, 1)
		wg.Done()
	})
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, int32(1), ran)
}

func TestPool_QueueFullReturnsError(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	defer p.Close()

	block := make(chan struct{})
	// Occupy the single worker.
	require.NoError(t, p.Dispatch(func() { <-block }))
	// Fill the one queue slot.
	require.NoError(t, p.Dispatch(func() {}))

	err := p.Dispatch(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestPool_DispatchOrInlineFallsBackInline(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	defer p.Close()

	block := make(chan struct{})
	require.NoError(t, p.Dispatch(func() { <-block }))
	require.NoError(t, p.Dispatch(func() {}))

	backoff := &retry.ExponentialBackoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
		MaxAttempts:  2,
	}

	var ranInline int32
	p.DispatchOrInline(func() { atomic.AddInt32(&ranInline, 1) }, backoff)
	assert.Equal(t, int32(1), ranInline)

	close(block)
}

func TestPool_StatsAndClose(t *testing.T) {
	p := New(DefaultConfig(), nil)
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Dispatch(func() { wg.Done() }))
	wg.Wait()

	time.Sleep(10 * time.Millisecond)
	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Dispatched)
	assert.Equal(t, int64(1), stats.Completed)

	p.Close()
}
