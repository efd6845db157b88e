// Package statuskit is a subscriber client for schema-described
// telemetry topics.
//
// Each topic on the feed carries JSON status snapshots whose shape is
// declared by a JSON Schema library on disk. StatusKit resolves that
// library once at startup and then maintains, per subscribed topic, a
// live concurrent cache of the latest known state.
//
// # Architecture
//
// The module is built from four core packages plus supporting
// infrastructure:
//
//   - schema: loads definitions/, common/ and an optional telescope
//     overlay, normalizes and expands $ref, flattens allOf, and selects
//     anyOf/oneOf branches against live data shapes.
//   - namespace: the live cache. One Tree per topic, built eagerly from
//     the schema's required and initialize lists, merged in place as
//     updates arrive, observable per node and safe to read during
//     merges.
//   - client: the subscriber. Token-prefixed handshake subscription for
//     a guaranteed initial snapshot per topic, a single background
//     receive loop, dotted-path queries and deterministic teardown.
//   - natsclient: the NATS transport behind the client's Transport
//     interface.
//
// Supporting packages: errors (sentinels and classification), config
// (JSON/YAML files), metric (prometheus instrumentation), pkg/retry
// (connection backoff) and testutil (scripted in-memory transport).
//
// # Usage
//
//	catalog, err := schema.Load("schemas", schema.WithTelescope("SRT"))
//	...
//	transport, err := natsclient.New(url)
//	...
//	c, err := client.New(catalog, transport, []string{"antenna"})
//	...
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Close()
//
//	node, err := c.Get("antenna.timestamp.unix_time")
package statuskit
