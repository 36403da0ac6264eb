// Package postgres provides the PostgreSQL implementation of
// store.SnapshotStore. Connections go through the pgx database/sql driver;
// the schema is managed by goose migrations embedded in this package.
package postgres
