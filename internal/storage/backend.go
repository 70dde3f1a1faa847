/*
 * Copyright (c) 2026 The Laterbase Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package storage defines the pluggable storage backend (§4.2) that the
event log (internal/eventlog) persists through, and two implementations:
an in-memory backend (the default runtime backend and the one used by
tests) and a persistent backend on top of modernc.org/sqlite.

The backend holds three logical tables (§6's persisted layout):

  - events:  16-byte EID -> opaque value bytes
  - changes: append-log position -> 16-byte EID
  - clocks:  peer address -> logical transaction clock

All mutations applied during one WriteBatch call must be observed
atomically on subsequent reads (§4.2's contract (c)); both backends
honour this.
*/
package storage

import (
	"iter"

	"laterbase/internal/address"
	"laterbase/internal/eid"
)

// Backend is the storage contract the event log delegates to.
type Backend interface {
	// PutEvent inserts the value for id if absent; a no-op if id is
	// already present (§4.2(a): first writer wins).
	PutEvent(id eid.ID, value []byte) error

	// GetEvent returns the stored value for id, and whether it was
	// present.
	GetEvent(id eid.ID) ([]byte, bool, error)

	// EventCount returns the number of distinct events stored.
	EventCount() (uint64, error)

	// AppendChange appends id to the change log. Callers are
	// responsible for only appending newly-inserted ids (§4.3).
	AppendChange(id eid.ID) error

	// ChangesSince returns an iterator over the ids appended at or
	// after offset, in append order. It is restartable: two calls with
	// the same offset enumerate the same sequence as long as nothing
	// new was appended in between (§4.2(b)).
	ChangesSince(offset uint64) iter.Seq2[eid.ID, error]

	// ChangeLogLen returns the current length of the change log (the
	// logical transaction clock / high-water mark, §3).
	ChangeLogLen() (uint64, error)

	// PutClock upserts the logical clock recorded for addr.
	PutClock(addr address.Address, clock uint64) error

	// GetClock returns the logical clock recorded for addr, or
	// (0, false) if there is no entry (§3: "Absent entry ≡ 0").
	GetClock(addr address.Address) (uint64, bool, error)

	// WriteBatch applies fn's operations against the backend as a
	// single atomic unit with respect to concurrent readers (§4.2(c),
	// §4.3's "Atomic with respect to concurrent readers").
	WriteBatch(fn func(tx Tx) error) error

	// Stats reports backend statistics for the status surface (§6).
	Stats() (Stats, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Tx is the restricted view of Backend available inside a WriteBatch.
// It mirrors Backend's mutating operations plus one read, HasEvent,
// which the event log uses to check event presence inside the batch;
// no other reads are offered, keeping the atomicity contract simple to
// implement for both backends.
type Tx interface {
	// HasEvent reports whether id is already present, for callers that
	// need to check-then-act inside a batch without reentering Backend's
	// own locking (Backend.GetEvent is off-limits from inside a
	// WriteBatch callback: it takes the same lock WriteBatch already
	// holds).
	HasEvent(id eid.ID) (bool, error)
	PutEvent(id eid.ID, value []byte) error
	AppendChange(id eid.ID) error
	PutClock(addr address.Address, clock uint64) error
}

// Stats describes backend-level metrics surfaced at GET /db/:name (§6).
type Stats struct {
	Name       string
	EventCount uint64
	ChangeLen  uint64
	PeerCount  int
}
