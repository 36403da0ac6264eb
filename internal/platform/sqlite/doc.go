// Package sqlite provides the SQLite implementation of store.SnapshotStore,
// backed by the pure-Go modernc.org/sqlite driver. It is the default metrics
// sink for single-host deployments and for tests.
package sqlite
