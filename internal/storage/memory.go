/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package storage

import (
	"iter"
	"sync"

	"laterbase/internal/address"
	"laterbase/internal/eid"
)

// MemoryBackend is an in-process, non-persistent Backend. It is the
// default backend for a freshly-started replica and the backend every
// eventlog test in this module runs against.
type MemoryBackend struct {
	mu      sync.RWMutex
	name    string
	events  map[eid.ID][]byte
	changes []eid.ID
	clocks  map[address.Address]uint64
}

// NewMemoryBackend returns an empty MemoryBackend. name is cosmetic,
// surfaced through Stats.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{
		name:   name,
		events: make(map[eid.ID][]byte),
		clocks: make(map[address.Address]uint64),
	}
}

func (m *MemoryBackend) PutEvent(id eid.ID, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putEventLocked(id, value)
}

func (m *MemoryBackend) putEventLocked(id eid.ID, value []byte) error {
	if _, ok := m.events[id]; ok {
		return nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.events[id] = cp
	return nil
}

func (m *MemoryBackend) GetEvent(id eid.ID) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.events[id]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *MemoryBackend) EventCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.events)), nil
}

func (m *MemoryBackend) AppendChange(id eid.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendChangeLocked(id)
}

func (m *MemoryBackend) appendChangeLocked(id eid.ID) error {
	m.changes = append(m.changes, id)
	return nil
}

func (m *MemoryBackend) ChangesSince(offset uint64) iter.Seq2[eid.ID, error] {
	return func(yield func(eid.ID, error) bool) {
		m.mu.RLock()
		snapshot := make([]eid.ID, len(m.changes))
		copy(snapshot, m.changes)
		m.mu.RUnlock()

		if offset > uint64(len(snapshot)) {
			offset = uint64(len(snapshot))
		}
		for _, id := range snapshot[offset:] {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (m *MemoryBackend) ChangeLogLen() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.changes)), nil
}

func (m *MemoryBackend) PutClock(addr address.Address, clock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putClockLocked(addr, clock)
}

func (m *MemoryBackend) putClockLocked(addr address.Address, clock uint64) error {
	m.clocks[addr] = clock
	return nil
}

func (m *MemoryBackend) GetClock(addr address.Address) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clocks[addr]
	return c, ok, nil
}

// memTx implements Tx against a MemoryBackend already holding its write
// lock; every method reuses the *Locked helpers so WriteBatch and the
// unbatched methods share one code path.
type memTx struct {
	m *MemoryBackend
}

func (t memTx) HasEvent(id eid.ID) (bool, error) {
	_, ok := t.m.events[id]
	return ok, nil
}
func (t memTx) PutEvent(id eid.ID, value []byte) error { return t.m.putEventLocked(id, value) }
func (t memTx) AppendChange(id eid.ID) error            { return t.m.appendChangeLocked(id) }
func (t memTx) PutClock(addr address.Address, clock uint64) error {
	return t.m.putClockLocked(addr, clock)
}

// WriteBatch holds the backend's single writer lock for the duration of
// fn, so concurrent readers observe either all of fn's writes or none of
// them (§4.2(c)).
func (m *MemoryBackend) WriteBatch(fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(memTx{m: m})
}

func (m *MemoryBackend) Stats() (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Name:       m.name,
		EventCount: uint64(len(m.events)),
		ChangeLen:  uint64(len(m.changes)),
		PeerCount:  len(m.clocks),
	}, nil
}

func (m *MemoryBackend) Close() error { return nil }
