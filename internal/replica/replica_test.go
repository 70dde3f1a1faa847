/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package replica

import (
	"context"
	"testing"
	"time"

	"laterbase/internal/address"
	"laterbase/internal/eid"
	"laterbase/internal/eventlog"
	"laterbase/internal/protocol"
	"laterbase/internal/storage"
	"laterbase/internal/transport"
)

func mustEID(t *testing.T, ts int64, tail byte) eid.ID {
	t.Helper()
	var rnd [10]byte
	rnd[9] = tail
	return eid.New(ts, rnd)
}

type harness struct {
	board  *transport.Switchboard
	r1     *Replica
	r2     *Replica
	ep1    *transport.Endpoint
	ep2    *transport.Endpoint
	log1   *eventlog.Log
	log2   *eventlog.Log
	addr1  address.Address
	addr2  address.Address
	cancel context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	board := transport.NewSwitchboard(16)
	addr1 := address.FromBytes([]byte("r1"))
	addr2 := address.FromBytes([]byte("r2"))

	ep1 := board.Register(addr1)
	ep2 := board.Register(addr2)

	log1 := eventlog.New(storage.NewMemoryBackend("r1"))
	log2 := eventlog.New(storage.NewMemoryBackend("r2"))

	r1 := New(Config{Self: addr1, SyncInterval: time.Hour}, log1, ep1, ep1.Inbox())
	r2 := New(Config{Self: addr2, SyncInterval: time.Hour}, log2, ep2, ep2.Inbox())

	ctx, cancel := context.WithCancel(context.Background())
	go r1.Run(ctx)
	go r2.Run(ctx)

	return &harness{board: board, r1: r1, r2: r2, ep1: ep1, ep2: ep2, log1: log1, log2: log2, addr1: addr1, addr2: addr2, cancel: cancel}
}

func (h *harness) close() { h.cancel() }

// TestOneWaySync covers scenario S2: R1 holds an event, R2 is empty; a
// Sync(R1) delivered to R2's mailbox causes R2 to pull from R1 and
// absorb it, recording R1's high-water mark.
func TestOneWaySync(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := h.r1.Submit(ctx, []byte("k1")); err != nil {
		t.Fatalf("submit k1: %v", err)
	}

	// Deliver Sync{peer: R1} to R2: R2 will ask R1 for everything since
	// its last contact and absorb the reply (§4.4, §8 scenario S2).
	if err := h.ep1.Send(ctx, h.addr2, protocol.Sync{Peer: h.addr1}); err != nil {
		t.Fatalf("send sync: %v", err)
	}

	waitForEventCount(t, h.log2, 1, 2*time.Second)

	clock, err := h.log2.LocalClock(h.addr1)
	if err != nil {
		t.Fatalf("LocalClock: %v", err)
	}
	if clock != 1 {
		t.Errorf("r2.LocalClock(r1) = %d, want 1", clock)
	}
}

// TestDuplicateStoreEventsIsIdempotent covers scenario S3 at the actor
// level: replaying the same StoreEvents repeatedly leaves the receiver
// unchanged beyond the first absorb.
func TestDuplicateStoreEventsIsIdempotent(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := h.r1.Submit(ctx, []byte("v"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	msg := protocol.StoreEvents{
		From:   &protocol.Origin{Addr: h.addr1, Clock: 1},
		Events: []protocol.Event{{ID: id, Value: []byte("v")}},
	}
	for i := 0; i < 3; i++ {
		if err := h.ep1.Send(ctx, h.addr2, msg); err != nil {
			t.Fatalf("send (replay %d): %v", i, err)
		}
	}

	waitForEventCount(t, h.log2, 1, 2*time.Second)
	time.Sleep(200 * time.Millisecond)

	n, err := h.log2.EventCount()
	if err != nil || n != 1 {
		t.Fatalf("EventCount = %d, %v, want 1", n, err)
	}
}

// TestSelfLoopDropped covers §4.5's tie-break: a StoreEvents claiming
// to originate from the receiver itself is dropped, not absorbed.
func TestSelfLoopDropped(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg := protocol.StoreEvents{
		From:   &protocol.Origin{Addr: h.addr1, Clock: 1},
		Events: []protocol.Event{{ID: mustEID(t, 1, 1), Value: []byte("x")}},
	}
	if err := h.ep1.Send(ctx, h.addr1, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	n, _ := h.log1.EventCount()
	if n != 0 {
		t.Errorf("EventCount = %d, want 0 (self-loop should be dropped)", n)
	}
}

// TestClockSkewRejected covers the clock-skew supplement: an event
// timestamped far in the future is dropped rather than absorbed.
func TestClockSkewRejected(t *testing.T) {
	board := transport.NewSwitchboard(16)
	addr1 := address.FromBytes([]byte("r1"))
	ep1 := board.Register(addr1)
	l := eventlog.New(storage.NewMemoryBackend("r1"))
	r := New(Config{Self: addr1, SyncInterval: time.Hour, MaxClockSkew: time.Second}, l, ep1, ep1.Inbox())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	farFuture := time.Now().Add(time.Hour).UnixMilli()
	var rnd [10]byte
	id := eid.New(farFuture, rnd)

	msg := protocol.StoreEvents{
		From:   &protocol.Origin{Addr: address.FromBytes([]byte("other")), Clock: 1},
		Events: []protocol.Event{{ID: id, Value: []byte("x")}},
	}
	if err := ep1.Send(context.Background(), addr1, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	n, _ := l.EventCount()
	if n != 0 {
		t.Errorf("EventCount = %d, want 0 (future-skewed event should be dropped)", n)
	}
}

// TestAddPeerFansOutSelfSync covers the discovery supplement: a peer
// added after construction via AddPeer still receives self-sync ticks,
// not just the peers passed in at New.
func TestAddPeerFansOutSelfSync(t *testing.T) {
	board := transport.NewSwitchboard(16)
	addr1 := address.FromBytes([]byte("r1"))
	addr2 := address.FromBytes([]byte("r2"))
	ep1 := board.Register(addr1)
	ep2 := board.Register(addr2)

	log1 := eventlog.New(storage.NewMemoryBackend("r1"))
	r1 := New(Config{Self: addr1, SyncInterval: 50 * time.Millisecond}, log1, ep1, ep1.Inbox())
	r1.AddPeer(addr2)
	r1.AddPeer(addr2) // duplicate add should not fan out twice

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r1.Run(ctx)

	select {
	case d := <-ep2.Inbox():
		sync, ok := d.Msg.(protocol.Sync)
		if !ok || sync.Peer != addr1 {
			t.Fatalf("got %+v, want Sync{Peer: addr1}", d.Msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for self-sync tick to reach dynamically added peer")
	}
}

func waitForEventCount(t *testing.T, l *eventlog.Log, want uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := l.EventCount()
		if err == nil && n >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	n, _ := l.EventCount()
	t.Fatalf("EventCount = %d, want >= %d within %s", n, want, timeout)
}
