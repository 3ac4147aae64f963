// Package storage persists annotation records and answers the counting
// queries the work-distribution engine depends on.
//
// Three Ledger backends share one contract: an embedded SQLite database
// (the default), a JSON file for small deployments and tests, and
// PostgreSQL for shared multi-process deployments. The engine never
// updates or deletes records; it only filters them by annotator and counts
// them per clip or per block.
package storage
