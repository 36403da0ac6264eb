// Package api exposes the scheduler over HTTP. It decodes and validates
// requests, translates scheduler and store errors into status codes and
// writes JSON responses. Handler error messages are redacted before they are
// returned to clients.
package api
