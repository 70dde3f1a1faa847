/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package protocol

import (
	"bytes"
	"testing"

	"laterbase/internal/address"
	"laterbase/internal/eid"
)

func mustEID(t *testing.T, ts int64, tail byte) eid.ID {
	t.Helper()
	var rnd [10]byte
	rnd[9] = tail
	return eid.New(ts, rnd)
}

func TestRoundTripSync(t *testing.T) {
	msg := Sync{Peer: address.FromBytes([]byte{0x01, 0x02, 0x03})}

	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	decoded, ok := got.(Sync)
	if !ok {
		t.Fatalf("decoded type = %T, want Sync", got)
	}
	if decoded.Peer != msg.Peer {
		t.Errorf("Peer = %v, want %v", decoded.Peer, msg.Peer)
	}
}

func TestRoundTripSendEvents(t *testing.T) {
	msg := SendEvents{Since: 42, Dest: address.FromBytes([]byte("replica-b"))}

	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	decoded, ok := got.(SendEvents)
	if !ok {
		t.Fatalf("decoded type = %T, want SendEvents", got)
	}
	if decoded != msg {
		t.Errorf("decoded = %+v, want %+v", decoded, msg)
	}
}

func TestRoundTripStoreEventsWithOrigin(t *testing.T) {
	msg := StoreEvents{
		From: &Origin{Addr: address.FromBytes([]byte("replica-a")), Clock: 7},
		Events: []Event{
			{ID: mustEID(t, 1000, 1), Value: []byte("a")},
			{ID: mustEID(t, 1000, 2), Value: []byte("bb")},
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	decoded, ok := got.(StoreEvents)
	if !ok {
		t.Fatalf("decoded type = %T, want StoreEvents", got)
	}
	if decoded.From == nil || *decoded.From != *msg.From {
		t.Errorf("From = %+v, want %+v", decoded.From, msg.From)
	}
	if len(decoded.Events) != len(msg.Events) {
		t.Fatalf("len(Events) = %d, want %d", len(decoded.Events), len(msg.Events))
	}
	for i, e := range msg.Events {
		if decoded.Events[i].ID != e.ID || !bytes.Equal(decoded.Events[i].Value, e.Value) {
			t.Errorf("Events[%d] = %+v, want %+v", i, decoded.Events[i], e)
		}
	}
}

func TestRoundTripStoreEventsNoOrigin(t *testing.T) {
	msg := StoreEvents{From: nil, Events: nil}

	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	decoded, ok := got.(StoreEvents)
	if !ok {
		t.Fatalf("decoded type = %T, want StoreEvents", got)
	}
	if decoded.From != nil {
		t.Errorf("From = %+v, want nil", decoded.From)
	}
	if len(decoded.Events) != 0 {
		t.Errorf("len(Events) = %d, want 0", len(decoded.Events))
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF})
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error decoding unknown tag")
	}
}

func TestDecodeTruncated(t *testing.T) {
	var full bytes.Buffer
	msg := SendEvents{Since: 1, Dest: address.FromBytes([]byte("x"))}
	if err := Encode(&full, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	truncated := bytes.NewBuffer(full.Bytes()[:len(full.Bytes())-2])
	if _, err := Decode(truncated); err == nil {
		t.Fatal("expected error decoding truncated message")
	}
}
