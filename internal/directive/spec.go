// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package directive translates #BB/#DW job-script directives (or an
// interactive flag string) into a normalized burst-buffer Spec, and renders
// Spec into the canonical SLURM_* string that is the durable interchange
// format between submission and every later phase (spec.md §4.1).
package directive

import "github.com/ninotreve/slurm/internal/model"

// SwapSpec is the parsed `#DW swap S` directive.
type SwapSpec struct {
	GiB   uint64
	Nodes uint32
}

// JobSpec is the parsed `#DW jobdw` directive.
type JobSpec struct {
	SizeBytes  uint64
	NodeMarker bool // capacity expressed as a node count rather than bytes
	NodeCount  uint32
	Access     string
	Type       string
}

// PersistentSpec is one `#BB create_persistent`/`destroy_persistent` or
// `#DW persistentdw` directive.
type PersistentSpec struct {
	Kind   model.PersistentOpKind
	Name   string
	Size   uint64
	Access string
	Type   string
	Hurry  bool
}

// Spec is the normalized, parsed form of a job's burst-buffer request.
type Spec struct {
	Swap        *SwapSpec
	Job         *JobSpec
	Persistents []PersistentSpec
}

// IsEmpty reports whether the directive carried no buffer request at all,
// the case in which spec.md §3 says the BufferPlan should not be created.
func (s *Spec) IsEmpty() bool {
	return s == nil || (s.Swap == nil && s.Job == nil && len(s.Persistents) == 0)
}

// TotalSize returns the job-scratch byte size with swap rolled in, per
// spec.md §4.1: "Swap bytes are rolled into the total byte size as
// swap_gib × node_count × 2^30."
func (s *Spec) TotalSize() uint64 {
	var total uint64
	if s.Job != nil && !s.Job.NodeMarker {
		total += s.Job.SizeBytes
	}
	if s.Swap != nil {
		total += s.Swap.GiB * uint64(s.Swap.Nodes) * (1 << 30)
	}
	return total
}
