// Package testutil provides test doubles shared across packages,
// primarily a scripted in-memory transport that mimics the broker's
// handshake-snapshot convention.
package testutil
