// Package cache provides a namespaced key/value cache with TTL semantics and
// interchangeable backends (in-memory, Redis, SQLite). Keys written as
// "<namespace>:<rest>" can be enumerated and dropped as a group, which is how
// the offline gateway retires superseded cache generations.
package cache
