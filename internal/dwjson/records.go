// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package dwjson parses the external data-movement CLI's (quasi-)JSON
// output into typed records (spec.md §4.6). The CLI may emit Python-repr
// style dictionaries (single-quoted, unicode-prefixed) rather than strict
// JSON; this package normalizes before decoding.
package dwjson

// Pool is one entry from `show_pools`.
type Pool struct {
	ID          string `json:"id"`
	Units       string `json:"units"`
	Granularity uint64 `json:"granularity"`
	Quantity    uint64 `json:"quantity"`
	Free        uint64 `json:"free"`
}

// Instance is one entry from `show_instances`.
type Instance struct {
	ID    int    `json:"id"`
	Bytes uint64 `json:"bytes"`
	Label string `json:"label"`
}

// Session is one entry from `show_sessions`.
type Session struct {
	ID     int    `json:"id"`
	Token  string `json:"token"`
	Used   bool   `json:"used"`
	UserID uint32 `json:"-"` // decoded from the "owner" key
}

// Config is one entry from `show_configurations`, linking a configuration
// to the instance that backs it.
type Config struct {
	ID         int `json:"id"`
	InstanceID int `json:"-"` // decoded from the nested "links" object
}
