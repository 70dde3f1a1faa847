/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package server

import (
	"context"
	"testing"
	"time"

	"laterbase/internal/config"
	"laterbase/internal/eid"
)

func testConfig(t *testing.T) config.ReplicaConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Address = "aa"
	cfg.ListenAddr = ""
	cfg.DiscoveryEnabled = false
	cfg.SyncInterval = time.Hour
	return *cfg
}

func TestHostSubmitFetchInfoRoundTrip(t *testing.T) {
	h, err := NewHost(testConfig(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := h.Submit(ctx, "aa", []byte("hello"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	events, err := h.Fetch("aa", []eid.ID{id})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || string(events[0].Value) != "hello" {
		t.Fatalf("Fetch = %+v, want one event with value %q", events, "hello")
	}

	missing, err := h.Fetch("aa", []eid.ID{{}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("Fetch(missing) = %+v, want empty", missing)
	}
}

func TestHostInfoReportsSubmittedEvent(t *testing.T) {
	h, err := NewHost(testConfig(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := h.Submit(ctx, "aa", []byte("hello")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	info, err := h.Info("aa")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Backend.EventCount != 1 {
		t.Fatalf("EventCount = %d, want 1", info.Backend.EventCount)
	}
	if info.HighWater != 1 {
		t.Fatalf("HighWater = %d, want 1", info.HighWater)
	}
}

func TestHostMultipleNamesShareSwitchboard(t *testing.T) {
	h, err := NewHost(testConfig(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer h.Close()

	if err := h.Create("bb"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Create("bb"); err == nil {
		t.Fatal("expected error creating duplicate name")
	}

	names := h.Names()
	if len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}
}

func TestHostFetchUnknownNameErrors(t *testing.T) {
	h, err := NewHost(testConfig(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer h.Close()

	if _, err := h.Info("ghost"); err == nil {
		t.Fatal("expected error for unknown db name")
	}
}
