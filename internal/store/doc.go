// Package store defines the persistence interfaces used by the metrics
// reporter, plus helpers shared by the SQL implementations: the Querier
// abstraction, transactions and schema migrations.
//
// The scheduler itself keeps no durable state; only metrics snapshots are
// written to a database, and they are advisory.
package store
