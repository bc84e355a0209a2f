// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package dwjson

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize rewrites a Python-repr-style dictionary string into strict
// JSON: single quotes become double quotes outside already-double-quoted
// spans, and a leading `u` immediately before a single-quoted span is
// dropped (spec.md §4.6: "The CLI may emit its dictionaries using
// single-quoted, unicode-prefixed tokens (Python-repr-style) rather than
// strict JSON.").
//
// This is a single left-to-right scan (Design Note "Generator-style
// emission": no back-references needed) that tracks whether the cursor is
// inside a double-quoted or a single-quoted span, so single quotes that are
// themselves inside a double-quoted string value are left untouched, and a
// 'u' that ends a single-quoted value is kept.
func Normalize(raw string) string {
	// NFC-normalize first so a combining mark attached to a quote rune in
	// a `label`/`name` field can never be mistaken for part of the quote
	// itself while scanning rune-by-rune below.
	raw = norm.NFC.String(raw)

	var out strings.Builder
	out.Grow(len(raw))

	inDouble := false
	inSingle := false
	runes := []rune(raw)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '\\' && i+1 < len(runes):
			out.WriteRune(r)
			out.WriteRune(runes[i+1])
			i++
			continue
		case r == '"':
			inDouble = !inDouble
			out.WriteRune(r)
		case r == 'u' && !inDouble && !inSingle && i+1 < len(runes) && runes[i+1] == '\'':
			// drop the unicode-literal prefix immediately before a
			// single-quoted span
			continue
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			out.WriteRune('"')
		default:
			out.WriteRune(r)
		}
	}

	return out.String()
}
