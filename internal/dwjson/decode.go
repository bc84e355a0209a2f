// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package dwjson

import (
	"encoding/json"
	"fmt"
)

// DecodePools decodes `show_pools` output into Pool records. Missing
// fields default to zero/empty and unknown keys are ignored, per spec.md
// §4.6 and Design Note "Dynamic JSON shapes".
func DecodePools(raw string) ([]Pool, error) {
	var raws []map[string]any
	if err := decodeList(raw, &raws); err != nil {
		return nil, err
	}

	pools := make([]Pool, 0, len(raws))
	for _, m := range raws {
		pools = append(pools, Pool{
			ID:          stringField(m, "id"),
			Units:       stringField(m, "units"),
			Granularity: uintField(m, "granularity"),
			Quantity:    uintField(m, "quantity"),
			Free:        uintField(m, "free"),
		})
	}
	return pools, nil
}

// DecodeInstances decodes `show_instances` output into Instance records.
func DecodeInstances(raw string) ([]Instance, error) {
	var raws []map[string]any
	if err := decodeList(raw, &raws); err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(raws))
	for _, m := range raws {
		instances = append(instances, Instance{
			ID:    intField(m, "id"),
			Bytes: uintField(m, "bytes"),
			Label: stringField(m, "label"),
		})
	}
	return instances, nil
}

// DecodeSessions decodes `show_sessions` output into Session records; the
// user id is taken from the "owner" key per spec.md §4.6's Session field
// table.
func DecodeSessions(raw string) ([]Session, error) {
	var raws []map[string]any
	if err := decodeList(raw, &raws); err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(raws))
	for _, m := range raws {
		sessions = append(sessions, Session{
			ID:     intField(m, "id"),
			Token:  stringField(m, "token"),
			Used:   boolField(m, "used"),
			UserID: uint32(uintField(m, "owner")),
		})
	}
	return sessions, nil
}

// DecodeConfigs decodes `show_configurations` output into Config records;
// the instance id comes from a nested "links" object per spec.md §4.6.
func DecodeConfigs(raw string) ([]Config, error) {
	var raws []map[string]any
	if err := decodeList(raw, &raws); err != nil {
		return nil, err
	}

	configs := make([]Config, 0, len(raws))
	for _, m := range raws {
		instanceID := 0
		if links, ok := m["links"].(map[string]any); ok {
			instanceID = intField(links, "instance_id")
		}
		configs = append(configs, Config{
			ID:         intField(m, "id"),
			InstanceID: instanceID,
		})
	}
	return configs, nil
}

// decodeList normalizes raw and decodes it into a list of permissive maps.
// The external CLI's top-level shape varies (bare array, or an object with
// a named list field); this accepts both by trying the array form first
// and falling back to an array-valued field of an object. The object's
// fields are visited in Go map order, so when an object holds more than one
// array-valued field, which of them is decoded is not defined.
func decodeList(raw string, out *[]map[string]any) error {
	normalized := Normalize(raw)

	var asArray []map[string]any
	if err := json.Unmarshal([]byte(normalized), &asArray); err == nil {
		*out = asArray
		return nil
	}

	var asObject map[string]any
	if err := json.Unmarshal([]byte(normalized), &asObject); err != nil {
		return fmt.Errorf("dwjson: could not decode %q as JSON array or object: %w", normalized, err)
	}

	for _, v := range asObject {
		if list, ok := v.([]any); ok {
			result := make([]map[string]any, 0, len(list))
			for _, item := range list {
				if m, ok := item.(map[string]any); ok {
					result = append(result, m)
				}
			}
			*out = result
			return nil
		}
	}

	*out = nil
	return nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	default:
		return 0
	}
}

func uintField(m map[string]any, key string) uint64 {
	switch v := m[key].(type) {
	case float64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case json.Number:
		n, _ := v.Int64()
		if n < 0 {
			return 0
		}
		return uint64(n)
	case string:
		var n uint64
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	default:
		return 0
	}
}
