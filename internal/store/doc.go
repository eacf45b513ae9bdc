// Package store persists entities in system-versioned tables and reads rows
// back as materializer value buffers.
//
// Each temporal table is backed by two tables: the current table, holding
// the version of every row that is valid now, and a history table with the
// same columns holding every superseded version. The store maintains the
// history on write the way a database with native system versioning does:
//
//   - Insert stamps the new row with [now, OpenEnd).
//   - Update closes the current version at now, moves it to history and
//     writes the new version with [now, OpenEnd).
//   - Delete closes the current version at now and moves it to history.
//
// Every write call runs in one transaction and uses one instant for all the
// rows it touches. Instants are stored as fixed-width UTC text (see
// temporal.FormatInstant) so that textual comparison is time comparison on
// every supported driver.
//
// # Database Configuration
//
// SQLite databases are opened with one connection and these pragmas:
//
//   - journal_mode=WAL (file databases only)
//   - synchronous=NORMAL
//   - busy_timeout=5000
//
// Postgres is reached through the pgx stdlib driver ("pgx").
package store
