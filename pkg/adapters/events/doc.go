// Package events groups the event bus adapters: Redis Streams for
// production and an in-memory bus for tests and single-process setups.
package events
