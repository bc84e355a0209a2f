// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package builders provides a fluent constructor for BufferPlan
// (PlanBuilder); it has none for Allocation. It is grounded on the
// teacher's internal/common/builders package
// (its JobBuilder/AccountBuilder fluent-interface-with-deferred-errors
// shape), retargeted from REST request payloads to burst-buffer domain
// objects.
package builders

import (
	"fmt"

	"github.com/ninotreve/slurm/internal/directive"
	"github.com/ninotreve/slurm/internal/model"
)

// PlanBuilder builds a model.BufferPlan from a parsed directive.Spec.
type PlanBuilder struct {
	plan   *model.BufferPlan
	errors []error
}

// NewPlanBuilder starts a PlanBuilder for jobID.
func NewPlanBuilder(jobID uint32) *PlanBuilder {
	return &PlanBuilder{plan: &model.BufferPlan{JobID: jobID, State: model.Pending}}
}

// WithAccounting sets the account/partition/QoS used for quota
// attribution.
func (b *PlanBuilder) WithAccounting(account, partition, qos string) *PlanBuilder {
	b.plan.Account = account
	b.plan.Partition = partition
	b.plan.QoS = qos
	return b
}

// WithSpec folds a parsed directive.Spec's job/swap/persistent requests
// into the plan.
func (b *PlanBuilder) WithSpec(spec *directive.Spec) *PlanBuilder {
	if spec == nil {
		return b
	}

	b.plan.TotalSize = spec.TotalSize()

	if spec.Swap != nil {
		b.plan.SwapGiB = spec.Swap.GiB
		b.plan.SwapNodeCount = spec.Swap.Nodes
	}

	if spec.Job != nil && spec.Job.NodeMarker {
		b.plan.GenericResources = append(b.plan.GenericResources, model.GenericResourceRequest{
			Name:  "nodes",
			Count: uint64(spec.Job.NodeCount),
		})
	}

	for _, p := range spec.Persistents {
		op := model.PersistentOp{
			Name:       p.Name,
			Op:         p.Kind,
			Size:       p.Size,
			AccessMode: p.Access,
			Type:       p.Type,
			Hurry:      p.Hurry,
			State:      model.Pending,
		}
		b.plan.PersistentOps = append(b.plan.PersistentOps, op)
	}

	return b
}

// WithCanonical attaches the canonical interchange string (spec.md §4.1).
func (b *PlanBuilder) WithCanonical(canonical string) *PlanBuilder {
	b.plan.Canonical = canonical
	return b
}

func (b *PlanBuilder) addError(err error) {
	b.errors = append(b.errors, err)
}

// Build returns the assembled plan, or the first error recorded while
// building it.
func (b *PlanBuilder) Build() (*model.BufferPlan, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("builders: %w", b.errors[0])
	}
	return b.plan, nil
}
