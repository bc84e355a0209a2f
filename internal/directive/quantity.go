// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package directive

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nodeMarkerPattern = regexp.MustCompile(`(?i)^(\d+)nodes?$`)
	byteQuantityPattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)(b|kib|mib|gib|tib|kb|mb|gb|tb)?$`)
)

// parseCapacity parses a `capacity=` value, which spec.md §4.1 says "may be
// either a byte-oriented quantity or a node-count marker bit". It returns
// either a byte count, or a node count with isNodes=true.
func parseCapacity(raw string) (bytes uint64, isNodes bool, nodeCount uint64, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, 0, fmt.Errorf("empty capacity value")
	}

	if m := nodeMarkerPattern.FindStringSubmatch(raw); m != nil {
		n, convErr := strconv.ParseUint(m[1], 10, 32)
		if convErr != nil {
			return 0, false, 0, fmt.Errorf("invalid node count %q: %w", raw, convErr)
		}
		return 0, true, n, nil
	}

	b, convErr := parseByteQuantity(raw)
	if convErr != nil {
		return 0, false, 0, convErr
	}
	return b, false, 0, nil
}

// parseByteQuantity parses a byte quantity with an optional binary (KiB,
// MiB, GiB, TiB) or decimal (KB, MB, GB, TB) unit suffix. Bare numbers are
// bytes.
func parseByteQuantity(raw string) (uint64, error) {
	m := byteQuantityPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("invalid capacity %q", raw)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid capacity value %q: %w", raw, err)
	}

	multiplier := unitMultiplier(strings.ToLower(m[2]))
	return uint64(value * multiplier), nil
}

func unitMultiplier(unit string) float64 {
	switch unit {
	case "", "b":
		return 1
	case "kib":
		return 1 << 10
	case "mib":
		return 1 << 20
	case "gib":
		return 1 << 30
	case "tib":
		return 1 << 40
	case "kb":
		return 1e3
	case "mb":
		return 1e6
	case "gb":
		return 1e9
	case "tb":
		return 1e12
	default:
		return 1
	}
}
