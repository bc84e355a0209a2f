// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides in-process metrics collection for the
// burst-buffer plugin, grounded on the teacher's pkg/metrics but retargeted
// from HTTP request/response counters to external-command invocations and
// background-agent passes.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the interface for metrics collection.
type Collector interface {
	// RecordInvocation records an external CLI function invocation.
	RecordInvocation(function string)

	// RecordCompletion records the outcome of an invocation.
	RecordCompletion(function string, exitStatus int, duration time.Duration)

	// RecordAgentPass records one background-agent sync pass.
	RecordAgentPass(duration time.Duration, sessionsSeen, vanished int)

	// RecordAdmission records a planner verdict (0, 1, or 2).
	RecordAdmission(verdict int)

	// RecordPreemption records a victim selected by the preemption walk.
	RecordPreemption()

	// Stats returns a snapshot of current metrics.
	Stats() *Stats
}

// Stats is a point-in-time snapshot of collected metrics.
type Stats struct {
	TotalInvocations    int64
	InvocationsByFunc   map[string]int64
	FailuresByFunc      map[string]int64
	InvocationDurations map[string]DurationStats

	AgentPasses       int64
	SessionsSeenTotal int64
	VanishedTotal     int64

	AdmissionNow     int64 // verdict 0
	AdmissionSkipped int64 // verdict 1
	AdmissionStopped int64 // verdict 2
	Preemptions      int64

	StartTime time.Time
	Uptime    time.Duration
}

// DurationStats aggregates a set of durations.
type DurationStats struct {
	Count   int64
	Total   time.Duration
	Min     time.Duration
	Max     time.Duration
	Average time.Duration
}

// InMemoryCollector is the default, lock-protected Collector implementation.
type InMemoryCollector struct {
	mu sync.RWMutex

	totalInvocations  int64
	invocationsByFunc map[string]*int64
	failuresByFunc    map[string]*int64
	durationsByFunc   map[string]*durationAggregator

	agentPasses       int64
	sessionsSeenTotal int64
	vanishedTotal     int64

	admissionNow     int64
	admissionSkipped int64
	admissionStopped int64
	preemptions      int64

	startTime time.Time
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		invocationsByFunc: make(map[string]*int64),
		failuresByFunc:    make(map[string]*int64),
		durationsByFunc:   make(map[string]*durationAggregator),
		startTime:         time.Now(),
	}
}

func (c *InMemoryCollector) RecordInvocation(function string) {
	atomic.AddInt64(&c.totalInvocations, 1)
	incrementCounter(&c.mu, c.invocationsByFunc, function)
}

func (c *InMemoryCollector) RecordCompletion(function string, exitStatus int, duration time.Duration) {
	if exitStatus != 0 {
		incrementCounter(&c.mu, c.failuresByFunc, function)
	}

	c.mu.Lock()
	agg, ok := c.durationsByFunc[function]
	if !ok {
		agg = newDurationAggregator()
		c.durationsByFunc[function] = agg
	}
	c.mu.Unlock()
	agg.add(duration)
}

func (c *InMemoryCollector) RecordAgentPass(duration time.Duration, sessionsSeen, vanished int) {
	atomic.AddInt64(&c.agentPasses, 1)
	atomic.AddInt64(&c.sessionsSeenTotal, int64(sessionsSeen))
	atomic.AddInt64(&c.vanishedTotal, int64(vanished))
}

func (c *InMemoryCollector) RecordAdmission(verdict int) {
	switch verdict {
	case 0:
		atomic.AddInt64(&c.admissionNow, 1)
	case 1:
		atomic.AddInt64(&c.admissionSkipped, 1)
	case 2:
		atomic.AddInt64(&c.admissionStopped, 1)
	}
}

func (c *InMemoryCollector) RecordPreemption() {
	atomic.AddInt64(&c.preemptions, 1)
}

func (c *InMemoryCollector) Stats() *Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	invByFunc := make(map[string]int64, len(c.invocationsByFunc))
	for k, v := range c.invocationsByFunc {
		invByFunc[k] = atomic.LoadInt64(v)
	}
	failByFunc := make(map[string]int64, len(c.failuresByFunc))
	for k, v := range c.failuresByFunc {
		failByFunc[k] = atomic.LoadInt64(v)
	}
	durByFunc := make(map[string]DurationStats, len(c.durationsByFunc))
	for k, v := range c.durationsByFunc {
		durByFunc[k] = v.stats()
	}

	return &Stats{
		TotalInvocations:    atomic.LoadInt64(&c.totalInvocations),
		InvocationsByFunc:   invByFunc,
		FailuresByFunc:      failByFunc,
		InvocationDurations: durByFunc,
		AgentPasses:         atomic.LoadInt64(&c.agentPasses),
		SessionsSeenTotal:   atomic.LoadInt64(&c.sessionsSeenTotal),
		VanishedTotal:       atomic.LoadInt64(&c.vanishedTotal),
		AdmissionNow:        atomic.LoadInt64(&c.admissionNow),
		AdmissionSkipped:    atomic.LoadInt64(&c.admissionSkipped),
		AdmissionStopped:    atomic.LoadInt64(&c.admissionStopped),
		Preemptions:         atomic.LoadInt64(&c.preemptions),
		StartTime:           c.startTime,
		Uptime:              time.Since(c.startTime),
	}
}

func incrementCounter(mu *sync.RWMutex, m map[string]*int64, key string) {
	mu.Lock()
	counter, exists := m[key]
	if !exists {
		var v int64
		counter = &v
		m[key] = counter
	}
	mu.Unlock()
	atomic.AddInt64(counter, 1)
}

type durationAggregator struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func newDurationAggregator() *durationAggregator {
	return &durationAggregator{}
}

func (a *durationAggregator) add(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 || d < a.min {
		a.min = d
	}
	if d > a.max {
		a.max = d
	}
	a.total += d
	a.count++
}

func (a *durationAggregator) stats() DurationStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var avg time.Duration
	if a.count > 0 {
		avg = a.total / time.Duration(a.count)
	}
	return DurationStats{
		Count:   a.count,
		Total:   a.total,
		Min:     a.min,
		Max:     a.max,
		Average: avg,
	}
}
