// Package events provides types and interfaces for an event-driven architecture.
//
// Components publish typed events without knowing which handlers will process
// them. The scheduler reports task outcomes and the metrics reporter publishes
// snapshots through this package, and inbound task requests can arrive as
// events too.
//
// The primary components are:
// - Event: a typed envelope with a JSON payload
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
// - InMemoryEventEmitter: synchronous fan-out to registered handlers
// - AsyncEmitter: ordered, queued delivery in front of another emitter
package events
