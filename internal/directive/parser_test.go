// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninotreve/slurm/internal/model"
	berrors "github.com/ninotreve/slurm/pkg/errors"
)

func TestParse_JobDW_Capacity(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#DW jobdw capacity=1GiB access_mode=striped type=scratch\n#!/bin/bash\necho hi\n",
		NodeCount:  4,
	}

	spec, err := Parse(desc, Policy{})
	require.NoError(t, err)
	require.NotNil(t, spec.Job)
	assert.Equal(t, uint64(1<<30), spec.Job.SizeBytes)
	assert.Equal(t, "striped", spec.Job.Access)
	assert.Equal(t, "scratch", spec.Job.Type)
}

func TestParse_StopsAtFirstNonHashLine(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#DW jobdw capacity=1GiB\necho not-a-directive\n#DW swap 4\n",
		NodeCount:  2,
	}

	spec, err := Parse(desc, Policy{})
	require.NoError(t, err)
	assert.NotNil(t, spec.Job)
	assert.Nil(t, spec.Swap, "directive after a non-# line must not be scanned")
}

func TestParse_Swap_RollsIntoTotalSize(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#DW jobdw capacity=1GiB\n#DW swap 2\n",
		NodeCount:  4,
	}

	spec, err := Parse(desc, Policy{})
	require.NoError(t, err)
	require.NotNil(t, spec.Swap)
	assert.Equal(t, uint64(2), spec.Swap.GiB)
	assert.Equal(t, uint32(4), spec.Swap.Nodes)

	expected := uint64(1<<30) + 2*4*(1<<30)
	assert.Equal(t, expected, spec.TotalSize())
}

func TestParse_PersistentCreate_RequiresPrivilege(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#BB create_persistent name=foo capacity=1GiB\n",
	}

	_, err := Parse(desc, Policy{Privileged: false, AllowAllPersistent: false})
	require.Error(t, err)
	var bbErr *berrors.BBError
	require.ErrorAs(t, err, &bbErr)
	assert.Equal(t, berrors.KindPermissionDenied, bbErr.Kind)
}

func TestParse_PersistentCreate_AllowedWhenSiteFlagEnabled(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#BB create_persistent name=foo capacity=1GiB\n",
	}

	spec, err := Parse(desc, Policy{AllowAllPersistent: true})
	require.NoError(t, err)
	require.Len(t, spec.Persistents, 1)
	assert.Equal(t, "foo", spec.Persistents[0].Name)
	assert.Equal(t, uint64(1<<30), spec.Persistents[0].Size)
}

func TestParse_PersistentCreate_RejectsNumericLeadingName(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#BB create_persistent name=1foo capacity=1GiB\n",
	}

	_, err := Parse(desc, Policy{Privileged: true})
	require.Error(t, err)
	var bbErr *berrors.BBError
	require.ErrorAs(t, err, &bbErr)
	assert.Equal(t, berrors.KindInvalidRequest, bbErr.Kind)
}

func TestParse_DestroyPersistent_Hurry(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#BB destroy_persistent name=foo hurry\n",
	}

	spec, err := Parse(desc, Policy{Privileged: true})
	require.NoError(t, err)
	require.Len(t, spec.Persistents, 1)
	assert.True(t, spec.Persistents[0].Hurry)
}

func TestParse_Interactive(t *testing.T) {
	spec, err := Parse(JobDescriptor{Interactive: "capacity=500MiB swap=8", NodeCount: 2}, Policy{})
	require.NoError(t, err)
	require.NotNil(t, spec.Job)
	assert.Equal(t, uint64(500)*(1<<20), spec.Job.SizeBytes)
	require.NotNil(t, spec.Swap)
	assert.Equal(t, uint64(8), spec.Swap.GiB)
	assert.Equal(t, uint32(2), spec.Swap.Nodes)
}

func TestCanonical_Idempotent(t *testing.T) {
	desc := JobDescriptor{
		ScriptBody: "#DW jobdw capacity=2GiB access_mode=striped type=scratch\n#DW swap 4\n",
		NodeCount:  8,
	}

	spec, err := Parse(desc, Policy{})
	require.NoError(t, err)

	canonical := spec.Canonical()
	require.NotEmpty(t, canonical)

	decoded, err := ParseCanonical(canonical)
	require.NoError(t, err)

	assert.Equal(t, canonical, decoded.Canonical(), "canonical string must re-encode to itself")
}

func TestCanonical_PersistentCreateIdempotent(t *testing.T) {
	spec := &Spec{Persistents: []PersistentSpec{
		{Kind: model.OpCreate, Name: "checkpoints", Size: 1 << 30, Access: "striped", Type: "scratch"},
	}}

	canonical := spec.Canonical()
	decoded, err := ParseCanonical(canonical)
	require.NoError(t, err)
	assert.Equal(t, canonical, decoded.Canonical())
}

func TestCanonical_NodeMarkerGres(t *testing.T) {
	desc := JobDescriptor{ScriptBody: "#DW jobdw capacity=4nodes\n", NodeCount: 4}
	spec, err := Parse(desc, Policy{})
	require.NoError(t, err)
	require.NotNil(t, spec.Job)
	assert.True(t, spec.Job.NodeMarker)

	canonical := spec.Canonical()
	assert.Contains(t, canonical, "SLURM_GRES=nodes:4")

	decoded, err := ParseCanonical(canonical)
	require.NoError(t, err)
	assert.Equal(t, canonical, decoded.Canonical())
}
