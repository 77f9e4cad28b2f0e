// Package store defines the [Store] interface for tracked-resource backends
// and provides two implementations:
//
//   - [MemoryStore]: in-process maps guarded by a mutex, lost on restart.
//   - [SQLiteStore]: persistent storage backed by a SQLite database.
//
// Counter updates go through [Store.UpdateCounter], which both backends
// implement as a compare-and-swap on the counter's version so that several
// processes sharing one database never lose an increment.
package store
