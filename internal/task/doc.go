// Package task schedules opaque units of work onto per-category worker pools.
//
// Tasks wait in four priority bands (high, normal, low, scheduled) until an
// idle worker of their category is free. Failed executions are retried up to
// a bound, crashed workers are replaced, and Shutdown drains busy workers
// before terminating. All scheduler state is owned by one dispatcher
// goroutine; workers talk to it over channels.
package task
