/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package storage

import (
	"testing"

	"laterbase/internal/address"
	"laterbase/internal/eid"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	sq, err := OpenSQLiteBackend("test", SQLiteConfig{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("OpenSQLiteBackend: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Backend{
		"memory": NewMemoryBackend("test"),
		"sqlite": sq,
	}
}

func TestPutGetEvent(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := eid.Generate()
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if _, ok, err := b.GetEvent(id); err != nil || ok {
				t.Fatalf("GetEvent before put: ok=%v err=%v", ok, err)
			}
			if err := b.PutEvent(id, []byte("hello")); err != nil {
				t.Fatalf("PutEvent: %v", err)
			}
			v, ok, err := b.GetEvent(id)
			if err != nil || !ok || string(v) != "hello" {
				t.Fatalf("GetEvent = %q, %v, %v", v, ok, err)
			}
			// First writer wins.
			if err := b.PutEvent(id, []byte("overwrite")); err != nil {
				t.Fatalf("PutEvent (dup): %v", err)
			}
			v, _, _ = b.GetEvent(id)
			if string(v) != "hello" {
				t.Errorf("value after duplicate PutEvent = %q, want unchanged %q", v, "hello")
			}
		})
	}
}

func TestEventCount(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				id, _ := eid.Generate()
				if err := b.PutEvent(id, []byte{byte(i)}); err != nil {
					t.Fatalf("PutEvent: %v", err)
				}
			}
			n, err := b.EventCount()
			if err != nil || n != 3 {
				t.Fatalf("EventCount = %d, %v, want 3", n, err)
			}
		})
	}
}

func TestChangesSinceIsOrderedAndRestartable(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var ids []eid.ID
			for i := 0; i < 5; i++ {
				id, _ := eid.Generate()
				ids = append(ids, id)
				if err := b.AppendChange(id); err != nil {
					t.Fatalf("AppendChange: %v", err)
				}
			}

			var got []eid.ID
			for id, err := range b.ChangesSince(0) {
				if err != nil {
					t.Fatalf("ChangesSince: %v", err)
				}
				got = append(got, id)
			}
			if len(got) != len(ids) {
				t.Fatalf("len(got) = %d, want %d", len(got), len(ids))
			}
			for i := range ids {
				if got[i] != ids[i] {
					t.Errorf("got[%d] = %v, want %v", i, got[i], ids[i])
				}
			}

			var fromTwo []eid.ID
			for id, err := range b.ChangesSince(2) {
				if err != nil {
					t.Fatalf("ChangesSince(2): %v", err)
				}
				fromTwo = append(fromTwo, id)
			}
			if len(fromTwo) != 3 {
				t.Fatalf("len(fromTwo) = %d, want 3", len(fromTwo))
			}
		})
	}
}

func TestChangeLogLen(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			n, err := b.ChangeLogLen()
			if err != nil || n != 0 {
				t.Fatalf("ChangeLogLen (empty) = %d, %v, want 0", n, err)
			}
			id, _ := eid.Generate()
			if err := b.AppendChange(id); err != nil {
				t.Fatalf("AppendChange: %v", err)
			}
			n, err = b.ChangeLogLen()
			if err != nil || n != 1 {
				t.Fatalf("ChangeLogLen = %d, %v, want 1", n, err)
			}
		})
	}
}

func TestClocks(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			addr := address.FromBytes([]byte("replica-a"))
			if _, ok, err := b.GetClock(addr); err != nil || ok {
				t.Fatalf("GetClock before put: ok=%v err=%v", ok, err)
			}
			if err := b.PutClock(addr, 5); err != nil {
				t.Fatalf("PutClock: %v", err)
			}
			c, ok, err := b.GetClock(addr)
			if err != nil || !ok || c != 5 {
				t.Fatalf("GetClock = %d, %v, %v, want 5, true, nil", c, ok, err)
			}
			if err := b.PutClock(addr, 9); err != nil {
				t.Fatalf("PutClock (update): %v", err)
			}
			c, _, _ = b.GetClock(addr)
			if c != 9 {
				t.Errorf("GetClock after update = %d, want 9", c)
			}
		})
	}
}

func TestWriteBatchAtomicity(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := eid.Generate()
			addr := address.FromBytes([]byte("replica-a"))
			err := b.WriteBatch(func(tx Tx) error {
				if err := tx.PutEvent(id, []byte("v")); err != nil {
					return err
				}
				if err := tx.AppendChange(id); err != nil {
					return err
				}
				return tx.PutClock(addr, 1)
			})
			if err != nil {
				t.Fatalf("WriteBatch: %v", err)
			}
			if _, ok, _ := b.GetEvent(id); !ok {
				t.Error("event missing after WriteBatch")
			}
			if n, _ := b.ChangeLogLen(); n != 1 {
				t.Errorf("ChangeLogLen = %d, want 1", n)
			}
			if c, ok, _ := b.GetClock(addr); !ok || c != 1 {
				t.Errorf("GetClock = %d, %v, want 1, true", c, ok)
			}
		})
	}
}

func TestStats(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := eid.Generate()
			if err := b.PutEvent(id, []byte("v")); err != nil {
				t.Fatalf("PutEvent: %v", err)
			}
			if err := b.AppendChange(id); err != nil {
				t.Fatalf("AppendChange: %v", err)
			}
			if err := b.PutClock(address.FromBytes([]byte("r")), 1); err != nil {
				t.Fatalf("PutClock: %v", err)
			}
			stats, err := b.Stats()
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Name != "test" || stats.EventCount != 1 || stats.ChangeLen != 1 || stats.PeerCount != 1 {
				t.Errorf("Stats = %+v, want {test 1 1 1}", stats)
			}
		})
	}
}
