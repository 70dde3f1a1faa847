/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package eid

import (
	"testing"
	"time"
)

func TestNewAndTimestamp(t *testing.T) {
	now := time.Now().UnixMilli()
	var rnd [randBytes]byte
	id := New(now, rnd)

	if got := id.Timestamp(); got != now {
		t.Errorf("Timestamp() = %d, want %d", got, now)
	}
}

func TestCompareOrdersByTimestampThenRandom(t *testing.T) {
	earlier := New(1000, [randBytes]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	later := New(1001, [randBytes]byte{})

	if !Less(earlier, later) {
		t.Errorf("expected earlier < later regardless of random tail")
	}

	a := New(1000, [randBytes]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	b := New(1000, [randBytes]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 2})
	if !Less(a, b) {
		t.Errorf("expected a < b for equal timestamps with differing random tails")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	decoded, err := Decode(id.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != id {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, id)
	}
}

func TestDecodeWrongLength(t *testing.T) {
	if _, err := Decode(make([]byte, 8)); err == nil {
		t.Error("expected error decoding short buffer")
	}
	if _, err := Decode(make([]byte, 32)); err == nil {
		t.Error("expected error decoding long buffer")
	}
}

func TestGenerateIsUnique(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %v", id)
		}
		seen[id] = true
	}
}

func TestZeroIsZero(t *testing.T) {
	var z ID
	if !z.IsZero() {
		t.Error("zero value should report IsZero")
	}
	id, _ := Generate()
	if id.IsZero() {
		t.Error("generated ID should not be zero")
	}
}
