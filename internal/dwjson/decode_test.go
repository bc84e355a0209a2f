// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package dwjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_SingleQuotesOutsideDoubleQuotedSpans(t *testing.T) {
	raw := `[{'id': 1, 'label': 'a'}]`
	assert.Equal(t, `[{"id": 1, "label": "a"}]`, Normalize(raw))
}

func TestNormalize_DropsUnicodePrefix(t *testing.T) {
	raw := `{u'id': 1, u'label': u'a'}`
	assert.Equal(t, `{"id": 1, "label": "a"}`, Normalize(raw))
}

func TestNormalize_LeavesDoubleQuotedContentAlone(t *testing.T) {
	raw := `{"id": 1, "note": "it's fine"}`
	assert.Equal(t, raw, Normalize(raw))
}

// TestDecodeInstances_PythonDictScenario is spec.md §8 Scenario 6.
func TestDecodeInstances_PythonDictScenario(t *testing.T) {
	raw := `[{u'id': 1, u'label': u'a'}]`

	instances, err := DecodeInstances(raw)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, 1, instances[0].ID)
	assert.Equal(t, "a", instances[0].Label)
}

func TestDecodePools_MissingFieldsDefault(t *testing.T) {
	raw := `[{"id": "default"}]`
	pools, err := DecodePools(raw)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "default", pools[0].ID)
	assert.Equal(t, uint64(0), pools[0].Granularity)
	assert.Equal(t, uint64(0), pools[0].Free)
}

func TestDecodePools_UnknownKeysIgnored(t *testing.T) {
	raw := `[{"id": "default", "quantity": 100, "free": 40, "granularity": 10, "totally_unknown_field": true}]`
	pools, err := DecodePools(raw)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, uint64(100), pools[0].Quantity)
	assert.Equal(t, uint64(40), pools[0].Free)
	assert.Equal(t, uint64(10), pools[0].Granularity)
}

func TestDecodeSessions_UserIDFromOwner(t *testing.T) {
	raw := `[{"id": 1, "token": "abc", "used": true, "owner": 1001}]`
	sessions, err := DecodeSessions(raw)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, uint32(1001), sessions[0].UserID)
	assert.True(t, sessions[0].Used)
}

func TestDecodeConfigs_InstanceIDFromLinks(t *testing.T) {
	raw := `[{"id": 5, "links": {"instance_id": 42}}]`
	configs, err := DecodeConfigs(raw)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 42, configs[0].InstanceID)
}

func TestDecodeList_ObjectWrappedArray(t *testing.T) {
	raw := `{"pools": [{"id": "p1", "quantity": 10}]}`
	pools, err := DecodePools(raw)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "p1", pools[0].ID)
}
