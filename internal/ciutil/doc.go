// Package ciutil detects continuous integration environments and resolves
// the database settings integration tests run against.
package ciutil
