/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package eventlog implements the per-replica bi-temporal state (§3, §4.3):
an event table, an append order recording first-observation order, and
a version vector tracking what each known peer has already contributed.

The log itself holds no lock of its own beyond what its Backend
provides — §5 assigns exclusive ownership of a log to one replica actor,
so all access is expected to come from that actor's single-threaded
message loop. The Backend's WriteBatch still gives read_since callers a
consistent view of any in-flight write_events call, since reads can
originate from outside the owning actor (e.g. a status endpoint).
*/
package eventlog

import (
	"laterbase/internal/address"
	"laterbase/internal/eid"
	laterrors "laterbase/internal/errors"
	"laterbase/internal/storage"
)

// Entry pairs an EID with its value, the shape read_since returns.
type Entry struct {
	ID    eid.ID
	Value []byte
}

// Origin names the peer a batch of events was absorbed from, and that
// peer's high-water mark at the moment it was read (§4.3).
type Origin struct {
	Addr  address.Address
	Clock uint64
}

// Log is the event log for one replica, backed by a pluggable Backend
// (§4.2).
type Log struct {
	backend storage.Backend
}

// New wraps backend as an event log.
func New(backend storage.Backend) *Log {
	return &Log{backend: backend}
}

// LocalClock returns version_vector[addr], or 0 if addr has never
// contributed a StoreEvents batch (§4.3).
func (l *Log) LocalClock(addr address.Address) (uint64, error) {
	clock, ok, err := l.backend.GetClock(addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return clock, nil
}

// ReadSince returns every event whose append position is >= offset, in
// append order, together with the new high-water mark |append_log|
// (§4.3). It fails with a BadOffset error only when offset exceeds the
// current high-water mark.
func (l *Log) ReadSince(offset uint64) ([]Entry, uint64, error) {
	highWater, err := l.backend.ChangeLogLen()
	if err != nil {
		return nil, 0, err
	}
	if offset > highWater {
		return nil, 0, laterrors.BadOffset(offset, highWater)
	}

	var entries []Entry
	for id, err := range l.backend.ChangesSince(offset) {
		if err != nil {
			return nil, 0, err
		}
		value, ok, err := l.backend.GetEvent(id)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, laterrors.Backend("read since", errMissingEvent(id))
		}
		entries = append(entries, Entry{ID: id, Value: value})
	}
	return entries, highWater, nil
}

// WriteEvents absorbs newEvents (§4.3's idempotent absorb): each pair is
// inserted into the event table and appended to the append log only if
// its EID was not already present; already-known EIDs are left
// untouched. If origin is non-nil, version_vector[origin.Addr] is set
// to origin.Clock afterward, even when newEvents is empty — this lets a
// peer acknowledge "nothing new since clock C" (§4.3's edge case).
//
// The whole call is one WriteBatch, so a concurrent ReadSince observes
// either the state before this call or the state after it, never a
// partial absorb (§4.2(c), §5).
func (l *Log) WriteEvents(origin *Origin, newEvents []Entry) error {
	return l.backend.WriteBatch(func(tx storage.Tx) error {
		seenInBatch := make(map[eid.ID]bool, len(newEvents))
		for _, e := range newEvents {
			if seenInBatch[e.ID] {
				continue
			}
			if ok, err := tx.HasEvent(e.ID); err != nil {
				return err
			} else if ok {
				seenInBatch[e.ID] = true
				continue
			}
			if err := tx.PutEvent(e.ID, e.Value); err != nil {
				return err
			}
			if err := tx.AppendChange(e.ID); err != nil {
				return err
			}
			seenInBatch[e.ID] = true
		}
		if origin != nil {
			if err := tx.PutClock(origin.Addr, origin.Clock); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEvent fetches a single event by EID, for the `GET /db/:name/e?keys=…`
// surface (§6).
func (l *Log) GetEvent(id eid.ID) ([]byte, bool, error) {
	return l.backend.GetEvent(id)
}

// EventCount returns the number of distinct events stored.
func (l *Log) EventCount() (uint64, error) {
	return l.backend.EventCount()
}

// HighWater returns the current length of the append log.
func (l *Log) HighWater() (uint64, error) {
	return l.backend.ChangeLogLen()
}

// Stats reports backend-level statistics for the status surface (§6).
func (l *Log) Stats() (storage.Stats, error) {
	return l.backend.Stats()
}

type errMissingEventErr struct {
	id eid.ID
}

func (e errMissingEventErr) Error() string {
	return "eventlog: id " + e.id.String() + " present in append log but missing from event table"
}

func errMissingEvent(id eid.ID) error {
	return errMissingEventErr{id: id}
}
