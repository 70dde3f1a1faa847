/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package transport

import (
	"context"
	"sync"

	"laterbase/internal/address"
	"laterbase/internal/protocol"
)

// Switchboard is an in-process Transport implementing §9's arena-and-
// index pattern: it owns a table of per-address mailboxes; replicas
// hold no reference to each other, only to their own Endpoint. Used by
// tests and by single-process multi-replica demos.
type Switchboard struct {
	mu      sync.RWMutex
	mailbox map[address.Address]chan Delivery
	cap     int
}

// NewSwitchboard returns an empty switchboard. mailboxCap bounds each
// registered endpoint's inbound channel (§5's "bounded mailbox").
func NewSwitchboard(mailboxCap int) *Switchboard {
	if mailboxCap <= 0 {
		mailboxCap = 64
	}
	return &Switchboard{mailbox: make(map[address.Address]chan Delivery), cap: mailboxCap}
}

// Register creates and returns the Transport endpoint for addr. Calling
// Register twice for the same address replaces the previous endpoint's
// mailbox.
func (s *Switchboard) Register(addr address.Address) *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Delivery, s.cap)
	s.mailbox[addr] = ch
	return &Endpoint{board: s, self: addr, inbox: ch}
}

// Unregister removes addr's mailbox. Sends to addr after this silently
// drop, matching §4.6's best-effort semantics.
func (s *Switchboard) Unregister(addr address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.mailbox[addr]; ok {
		close(ch)
		delete(s.mailbox, addr)
	}
}

// Deliver injects msg into dest's mailbox from outside the switchboard's
// own registered endpoints — used to bridge a network transport's
// inbound deliveries into a locally-hosted replica's mailbox.
func (s *Switchboard) Deliver(ctx context.Context, dest address.Address, msg protocol.Message) error {
	return s.deliver(ctx, dest, msg)
}

func (s *Switchboard) deliver(ctx context.Context, dest address.Address, msg protocol.Message) error {
	s.mu.RLock()
	ch, ok := s.mailbox[dest]
	s.mu.RUnlock()
	if !ok {
		// No known route: dropped, per §4.6 ("a transport that drops
		// messages forever prevents convergence" — the core tolerates
		// any individual drop).
		return nil
	}
	select {
	case ch <- Delivery{Msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Endpoint is one registered address's view of a Switchboard.
type Endpoint struct {
	board *Switchboard
	self  address.Address
	inbox chan Delivery
}

func (e *Endpoint) Send(ctx context.Context, dest address.Address, msg protocol.Message) error {
	return e.board.deliver(ctx, dest, msg)
}

func (e *Endpoint) Inbox() <-chan Delivery {
	return e.inbox
}

func (e *Endpoint) Close() error {
	e.board.Unregister(e.self)
	return nil
}
