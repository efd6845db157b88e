// Package natsclient implements the transport over core NATS pub/sub.
//
// Each subscribed subject feeds a bounded internal queue; Receive drains
// it in delivery order. Connection state is tracked with an atomic
// status, reconnects are handled by the nats.go reconnect machinery and
// surfaced through slog and the metric package.
package natsclient
