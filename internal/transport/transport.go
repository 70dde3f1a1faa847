/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package transport implements C6 from §4.6: asynchronous, best-effort,
unordered, possibly-duplicating delivery of protocol messages to an
address. No back-channel or acknowledgement is assumed anywhere above
this package — the replication core relies on periodic Sync initiations
from peers to recover from a transport that drops a message, not on
retries inside transport itself.
*/
package transport

import (
	"context"

	"laterbase/internal/address"
	"laterbase/internal/protocol"
)

// Transport delivers protocol messages to addresses. Implementations
// are free to reorder, delay, or duplicate deliveries, but must not
// silently corrupt a message (§4.6).
type Transport interface {
	// Send delivers msg to dest. It may return before dest has actually
	// received it; a nil error means "accepted for delivery", not
	// "delivered".
	Send(ctx context.Context, dest address.Address, msg protocol.Message) error

	// Inbox returns the channel this transport's owner should range
	// over to receive messages sent to it.
	Inbox() <-chan Delivery

	// Close stops accepting new sends and releases resources.
	Close() error
}

// Delivery wraps one inbound message. It carries no destination
// address: each Switchboard endpoint has its own inbox, and the TCP
// transport's inbox serves exactly one local replica.
type Delivery struct {
	Msg protocol.Message
}
