// Package ledger provides an SQLite audit log of removal runs.
//
// Each run gets a UUIDv7 id and records its mode, the number of identifiers
// and files, and its final status. Each file result is recorded against
// the ordinal of the identifier it was produced for, never the identifier
// itself, so the ledger does not re-identify anyone.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000: workers record results concurrently
//   - foreign_keys=ON
package ledger
