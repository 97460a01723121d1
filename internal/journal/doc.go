// Package journal persists received events to a local SQLite database.
//
// The Store manages the database connection, schema initialization, and a
// flock-based writer lock so two processes never append to the same journal.
// Events are stored append-only with a monotonically increasing sequence
// number; schema changes bump the version in schema.go and users delete the
// journal to adopt the new schema.
package journal
