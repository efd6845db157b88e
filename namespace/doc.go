// Package namespace holds the live per-topic cache trees.
//
// A Tree is built once per subscribed topic from the topic's resolved
// schema and then fed incoming updates through Apply, the package's only
// mutating entry point. Nodes expose a read-only surface: typed value
// accessors, schema metadata, child navigation, deep Copy, change
// observers (Bind/Unbind) and predicate waits (Wait). Rendering produces
// compact, indented, value-only or metadata-only JSON views from a
// detached snapshot.
//
// Locking is two-level: each Tree serializes merges with a per-topic
// merge lock, and each Node guards its own state with a mutex acquired
// root-to-leaf. Observer callbacks fire after node locks are released,
// so they may use any accessor without deadlocking.
package namespace
