// Package storage groups the persistence adapters: Redis for production and
// in-memory twins for tests. Each backend provides the task state store and
// the category statistics store.
package storage
