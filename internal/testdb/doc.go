// Package testdb prepares Postgres databases for integration tests.
//
// Tests call Open to get a migrated connection. Without a configured
// database the test is skipped locally and fails under CI, so a missing
// service container cannot pass silently.
//
//	db := testdb.Open(t)
//	s := postgres.NewSnapshotStore(db)
//
// Set TASKFORGE_TEST_DB_URL (or DATABASE_URL) and run with -tags=integration.
package testdb
