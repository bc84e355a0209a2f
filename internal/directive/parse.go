// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package directive

import (
	"fmt"
	"strings"

	berrors "github.com/ninotreve/slurm/pkg/errors"
	"github.com/ninotreve/slurm/internal/model"
)

// JobDescriptor is the minimal slice of the host scheduler's job record
// this package needs. The full generic job-record structure is owned by
// the host scheduler and out of scope (spec.md §1); this is the narrow
// collaborator interface the parser consumes.
type JobDescriptor struct {
	ScriptBody  string
	Interactive string
	UserID      uint32
	NodeCount   uint32
}

// Policy gates who may request persistent create/destroy (spec.md §4.1:
// "only privileged submitters, or all submitters when a site flag enables
// persistence, may request persistent create/destroy").
type Policy struct {
	Privileged         bool
	AllowAllPersistent bool
}

func (p Policy) mayUsePersistent() bool {
	return p.Privileged || p.AllowAllPersistent
}

// Parse scans a job's script body (falling back to the interactive string
// when the script body is empty) and returns the parsed Spec, or an
// invalid_request/permission_denied error.
func Parse(desc JobDescriptor, policy Policy) (*Spec, error) {
	if strings.TrimSpace(desc.ScriptBody) != "" {
		return parseScript(desc, policy)
	}
	return parseInteractive(desc.Interactive, desc.NodeCount, policy)
}

// parseScript scans `#BB`/`#DW` prefixed lines. Per spec.md §4.1: "Lines
// not starting with `#` terminate scanning (directives must precede real
// script)."
func parseScript(desc JobDescriptor, policy Policy) (*Spec, error) {
	spec := &Spec{}

	lines := strings.Split(desc.ScriptBody, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}

		switch {
		case strings.HasPrefix(trimmed, "#BB "):
			if err := parseBBLine(trimmed[len("#BB "):], policy, spec); err != nil {
				return nil, err
			}
		case strings.HasPrefix(trimmed, "#DW "):
			if err := parseDWLine(trimmed[len("#DW "):], desc.NodeCount, spec); err != nil {
				return nil, err
			}
		}
	}

	return spec, nil
}

func parseBBLine(body string, policy Policy, spec *Spec) error {
	tokens := tokenize(body)
	if len(tokens) == 0 {
		return berrors.NewInvalidRequest("empty #BB directive")
	}

	switch tokens[0] {
	case "create_persistent":
		if !policy.mayUsePersistent() {
			return berrors.NewPermissionDenied("invalid request")
		}
		op, err := parseCreatePersistent(tokens[1:])
		if err != nil {
			return err
		}
		spec.Persistents = append(spec.Persistents, *op)
	case "destroy_persistent":
		if !policy.mayUsePersistent() {
			return berrors.NewPermissionDenied("invalid request")
		}
		op, err := parseDestroyPersistent(tokens[1:])
		if err != nil {
			return err
		}
		spec.Persistents = append(spec.Persistents, *op)
	default:
		return berrors.NewInvalidRequest(fmt.Sprintf("unrecognized #BB directive %q", tokens[0]))
	}
	return nil
}

func parseDWLine(body string, nodeCount uint32, spec *Spec) error {
	tokens := tokenize(body)
	if len(tokens) == 0 {
		return berrors.NewInvalidRequest("empty #DW directive")
	}

	switch tokens[0] {
	case "jobdw":
		job, err := parseJobDW(tokens[1:])
		if err != nil {
			return err
		}
		spec.Job = job
	case "swap":
		if len(tokens) < 2 {
			return berrors.NewInvalidRequest("#DW swap requires a GiB value")
		}
		n, convErr := parseUintField(tokens[1])
		if convErr != nil {
			return berrors.NewInvalidRequest(fmt.Sprintf("invalid swap value %q", tokens[1]))
		}
		spec.Swap = &SwapSpec{GiB: n, Nodes: nodeCount}
	case "persistentdw":
		kv := parseKV(tokens[1:])
		name, ok := kv["name"]
		if !ok || name == "" {
			return berrors.NewInvalidRequest("#DW persistentdw requires name=")
		}
		spec.Persistents = append(spec.Persistents, PersistentSpec{Kind: model.OpUse, Name: name})
	default:
		return berrors.NewInvalidRequest(fmt.Sprintf("unrecognized #DW directive %q", tokens[0]))
	}
	return nil
}

func parseJobDW(fields []string) (*JobSpec, error) {
	kv := parseKV(fields)
	cap, ok := kv["capacity"]
	if !ok {
		return nil, berrors.NewInvalidRequest("#DW jobdw requires capacity=")
	}

	bytes, isNodes, nodeCount, err := parseCapacity(cap)
	if err != nil {
		return nil, berrors.NewInvalidRequest(err.Error())
	}

	return &JobSpec{
		SizeBytes:  bytes,
		NodeMarker: isNodes,
		NodeCount:  uint32(nodeCount),
		Access:     kv["access_mode"],
		Type:       kv["type"],
	}, nil
}

func parseCreatePersistent(fields []string) (*PersistentSpec, error) {
	kv := parseKV(fields)
	name, ok := kv["name"]
	if !ok || name == "" {
		return nil, berrors.NewInvalidRequest("create_persistent requires name=")
	}
	if err := validatePersistentName(name); err != nil {
		return nil, err
	}

	capRaw, ok := kv["capacity"]
	if !ok {
		return nil, berrors.NewInvalidRequest("create_persistent requires capacity=")
	}
	bytes, isNodes, _, err := parseCapacity(capRaw)
	if err != nil {
		return nil, berrors.NewInvalidRequest(err.Error())
	}
	if isNodes {
		return nil, berrors.NewInvalidRequest("create_persistent capacity must be a byte quantity")
	}

	return &PersistentSpec{
		Kind:   model.OpCreate,
		Name:   name,
		Size:   bytes,
		Access: kv["access"],
		Type:   kv["type"],
	}, nil
}

func parseDestroyPersistent(fields []string) (*PersistentSpec, error) {
	kv := parseKV(fields)
	name, ok := kv["name"]
	if !ok || name == "" {
		return nil, berrors.NewInvalidRequest("destroy_persistent requires name=")
	}

	hurry := false
	for _, f := range fields {
		if f == "hurry" {
			hurry = true
		}
	}

	return &PersistentSpec{Kind: model.OpDestroy, Name: name, Hurry: hurry}, nil
}

// validatePersistentName enforces spec.md §3: "never numeric-leading for
// user-created persistents".
func validatePersistentName(name string) error {
	if name == "" {
		return berrors.NewInvalidRequest("persistent buffer name must not be empty")
	}
	if name[0] >= '0' && name[0] <= '9' {
		return berrors.NewInvalidRequest("persistent buffer name must not begin with a digit")
	}
	return nil
}

// parseInteractive parses the single-line interactive form, which "accepts
// the same capacity= and swap= tokens in a single line" (spec.md §4.1).
func parseInteractive(line string, nodeCount uint32, policy Policy) (*Spec, error) {
	spec := &Spec{}
	tokens := tokenize(line)
	kv := parseKV(tokens)

	if capRaw, ok := kv["capacity"]; ok {
		bytes, isNodes, nc, err := parseCapacity(capRaw)
		if err != nil {
			return nil, berrors.NewInvalidRequest(err.Error())
		}
		spec.Job = &JobSpec{
			SizeBytes:  bytes,
			NodeMarker: isNodes,
			NodeCount:  uint32(nc),
			Access:     kv["access_mode"],
			Type:       kv["type"],
		}
	}

	if swapRaw, ok := kv["swap"]; ok {
		n, err := parseUintField(swapRaw)
		if err != nil {
			return nil, berrors.NewInvalidRequest(fmt.Sprintf("invalid swap value %q", swapRaw))
		}
		spec.Swap = &SwapSpec{GiB: n, Nodes: nodeCount}
	}

	return spec, nil
}
