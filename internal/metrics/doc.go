// Package metrics periodically samples the scheduler's status together with
// process resource usage and publishes each sample as a metrics.snapshot
// event and to a set of sinks: the structured log, a rotating JSON-lines
// file and a SQL snapshot store.
//
// The reporter only reads scheduler state through Status, which the
// scheduler serves as a copy.
package metrics
