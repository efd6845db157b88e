// Package metric provides prometheus instrumentation for the client.
//
// Metrics holds the counters and gauges the receive loop and transport
// update; its recording helpers are nil-safe so a client built without
// metrics pays no guard clauses. MetricsRegistry owns a private
// prometheus registry with the core metrics and runtime collectors
// pre-registered, for embedders that expose a scrape endpoint.
package metric
