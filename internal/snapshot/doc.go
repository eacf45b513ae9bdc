// Package snapshot renders materialized entities as canonical JSON.
//
// Canonical output has object keys sorted by UTF-16 code units, strings
// NFC-normalized and no HTML escaping, so two renderings of equal entity
// graphs are byte-identical. The CLI and the demo print snapshots; tests
// compare them directly.
package snapshot
