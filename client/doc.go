// Package client ties the catalog, the namespace trees and a transport
// into a running subscriber.
//
// A Client is built from a resolved schema catalog and a connected
// Transport, subscribes its topics through the token-prefixed handshake
// on Start, and then merges incoming updates on a single background
// goroutine. Queries (Get, GetNext, Node, Render) are safe from any
// goroutine; Close tears down the loop and the transport
// deterministically.
package client
