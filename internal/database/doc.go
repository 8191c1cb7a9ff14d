// Package database provides the SQLite case store for torcorrelate.
//
// The CaseDB keeps three kinds of records:
//   - topology snapshots, de-duplicated by digest
//   - traffic observations, grouped by case number
//   - analysis runs, stored as the full JSON report
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. The store is a single file that can be handed over with a case
// 2. The CGO-free driver allows easy cross-compilation
// 3. WAL mode lets the HTTP API read while an analysis writes
//
// Rows keep a few indexed columns for listing and filtering and the full
// record as JSON, so the schema does not have to follow every model change.
package database
