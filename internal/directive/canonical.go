// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package directive

import (
	"fmt"
	"strconv"
	"strings"

	berrors "github.com/ninotreve/slurm/pkg/errors"
	"github.com/ninotreve/slurm/internal/model"
)

// Canonical renders Spec into the stable, whitespace-separated SLURM_*
// string spec.md §4.1 defines as the durable representation that "all
// later processing re-reads ... rather than the raw directive."
//
// Open Question resolution: spec.md's table gives the bare token
// "SLURM_PERSISTENT_USE" with no fields, but a planner/lifecycle reading
// it back needs to know which persistent buffer is being used. This
// plugin renders "SLURM_PERSISTENT_USE=NAME=n" instead, the minimal change
// needed to keep the canonical string self-describing (see DESIGN.md).
func (s *Spec) Canonical() string {
	var tokens []string

	if s.Swap != nil {
		tokens = append(tokens, fmt.Sprintf("SLURM_SWAP=%dGB(%dNodes)", s.Swap.GiB, s.Swap.Nodes))
	}

	if s.Job != nil {
		if s.Job.NodeMarker {
			tokens = append(tokens, fmt.Sprintf("SLURM_GRES=nodes:%d", s.Job.NodeCount))
		} else {
			tok := fmt.Sprintf("SIZE=%d", s.Job.SizeBytes)
			if s.Job.Access != "" {
				tok += ",ACCESS=" + s.Job.Access
			}
			if s.Job.Type != "" {
				tok += ",TYPE=" + s.Job.Type
			}
			tokens = append(tokens, "SLURM_JOB="+tok)
		}
	}

	for _, p := range s.Persistents {
		switch p.Kind {
		case model.OpCreate:
			tok := fmt.Sprintf("NAME=%s,SIZE=%d", p.Name, p.Size)
			if p.Access != "" {
				tok += ",ACCESS=" + p.Access
			}
			if p.Type != "" {
				tok += ",TYPE=" + p.Type
			}
			tokens = append(tokens, "SLURM_PERSISTENT_CREATE="+tok)
		case model.OpDestroy:
			tok := "NAME=" + p.Name
			if p.Hurry {
				tok += ",HURRY"
			}
			tokens = append(tokens, "SLURM_PERSISTENT_DESTROY="+tok)
		case model.OpUse:
			tokens = append(tokens, "SLURM_PERSISTENT_USE=NAME="+p.Name)
		}
	}

	return strings.Join(tokens, " ")
}

// ParseCanonical decodes a canonical string back into a Spec. It is the
// inverse of Canonical: ParseCanonical(s.Canonical()).Canonical() ==
// s.Canonical() is the idempotence property spec.md §8 tests.
func ParseCanonical(canonical string) (*Spec, error) {
	spec := &Spec{}

	for _, tok := range strings.Fields(canonical) {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed canonical token %q", tok))
		}

		switch key {
		case "SLURM_SWAP":
			swap, err := parseCanonicalSwap(value)
			if err != nil {
				return nil, err
			}
			spec.Swap = swap
		case "SLURM_JOB":
			job, err := parseCanonicalJob(value)
			if err != nil {
				return nil, err
			}
			spec.Job = job
		case "SLURM_GRES":
			job, err := parseCanonicalGres(value)
			if err != nil {
				return nil, err
			}
			spec.Job = job
		case "SLURM_PERSISTENT_CREATE":
			op, err := parseCanonicalPersistentCreate(value)
			if err != nil {
				return nil, err
			}
			spec.Persistents = append(spec.Persistents, *op)
		case "SLURM_PERSISTENT_DESTROY":
			op, err := parseCanonicalPersistentDestroy(value)
			if err != nil {
				return nil, err
			}
			spec.Persistents = append(spec.Persistents, *op)
		case "SLURM_PERSISTENT_USE":
			op, err := parseCanonicalPersistentUse(value)
			if err != nil {
				return nil, err
			}
			spec.Persistents = append(spec.Persistents, *op)
		default:
			return nil, berrors.NewInvalidRequest(fmt.Sprintf("unrecognized canonical token %q", key))
		}
	}

	return spec, nil
}

func parseCanonicalSwap(value string) (*SwapSpec, error) {
	// <gb>GB(<nodes>Nodes)
	gbPart, rest, found := strings.Cut(value, "GB(")
	if !found || !strings.HasSuffix(rest, "Nodes)") {
		return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed SLURM_SWAP value %q", value))
	}
	nodesPart := strings.TrimSuffix(rest, "Nodes)")

	gib, err := strconv.ParseUint(gbPart, 10, 64)
	if err != nil {
		return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed SLURM_SWAP GB %q", gbPart))
	}
	nodes, err := strconv.ParseUint(nodesPart, 10, 32)
	if err != nil {
		return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed SLURM_SWAP nodes %q", nodesPart))
	}

	return &SwapSpec{GiB: gib, Nodes: uint32(nodes)}, nil
}

func parseCanonicalJob(value string) (*JobSpec, error) {
	fields := strings.Split(value, ",")
	job := &JobSpec{}
	found := false
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch k {
		case "SIZE":
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed SIZE %q", v))
			}
			job.SizeBytes = n
			found = true
		case "ACCESS":
			job.Access = v
		case "TYPE":
			job.Type = v
		}
	}
	if !found {
		return nil, berrors.NewInvalidRequest("SLURM_JOB missing SIZE")
	}
	return job, nil
}

func parseCanonicalGres(value string) (*JobSpec, error) {
	nodesStr, found := strings.CutPrefix(value, "nodes:")
	if !found {
		return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed SLURM_GRES value %q", value))
	}
	n, err := strconv.ParseUint(nodesStr, 10, 32)
	if err != nil {
		return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed SLURM_GRES node count %q", nodesStr))
	}
	return &JobSpec{NodeMarker: true, NodeCount: uint32(n)}, nil
}

func parseCanonicalPersistentCreate(value string) (*PersistentSpec, error) {
	kv := parseKV(strings.Split(value, ","))
	name, ok := kv["name"]
	if !ok {
		return nil, berrors.NewInvalidRequest("SLURM_PERSISTENT_CREATE missing NAME")
	}
	sizeStr, ok := kv["size"]
	if !ok {
		return nil, berrors.NewInvalidRequest("SLURM_PERSISTENT_CREATE missing SIZE")
	}
	size, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		return nil, berrors.NewInvalidRequest(fmt.Sprintf("malformed SIZE %q", sizeStr))
	}
	return &PersistentSpec{
		Kind:   model.OpCreate,
		Name:   name,
		Size:   size,
		Access: kv["access"],
		Type:   kv["type"],
	}, nil
}

func parseCanonicalPersistentDestroy(value string) (*PersistentSpec, error) {
	parts := strings.Split(value, ",")
	kv := parseKV(parts)
	name, ok := kv["name"]
	if !ok {
		return nil, berrors.NewInvalidRequest("SLURM_PERSISTENT_DESTROY missing NAME")
	}
	hurry := false
	for _, p := range parts {
		if p == "HURRY" {
			hurry = true
		}
	}
	return &PersistentSpec{Kind: model.OpDestroy, Name: name, Hurry: hurry}, nil
}

func parseCanonicalPersistentUse(value string) (*PersistentSpec, error) {
	kv := parseKV(strings.Split(value, ","))
	name, ok := kv["name"]
	if !ok {
		return nil, berrors.NewInvalidRequest("SLURM_PERSISTENT_USE missing NAME")
	}
	return &PersistentSpec{Kind: model.OpUse, Name: name}, nil
}
