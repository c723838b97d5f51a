// Package storage defines the persistence contracts for the analysis
// pipeline: cached dataset records, the backend response cache, the
// per-namespace embedding cache, and job/chat records.
//
// Implementations live in subpackages (see storage/badger). All
// repositories must be safe for concurrent use by multiple jobs; the
// namespace-qualified key design keeps writers from different jobs on
// disjoint key sets.
package storage
