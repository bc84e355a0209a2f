// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package errors

import "regexp"

// tokenNotFoundPattern matches the external subsystem's "no record of this
// token" stderr, which spec.md §4.2/§8 define as indistinguishable from a
// successful teardown.
var tokenNotFoundPattern = regexp.MustCompile(`(?i)token not found`)
