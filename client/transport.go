package client

import "context"

// Transport is the wire collaborator the client consumes. Channel names
// are opaque to the transport: the client uses `<token>_<topic>` during
// the handshake and the plain topic name at steady state.
//
// Receive blocks until a message arrives, the context is done, or the
// transport is closed; after Close it returns errors.ErrClosed. A
// transport with nothing to deliver right now reports a transient error
// (see errors.IsTransient), which the receive loop retries.
type Transport interface {
	Subscribe(channel string) error
	Unsubscribe(channel string) error
	Receive(ctx context.Context) (channel string, payload []byte, err error)
	Close() error
}
