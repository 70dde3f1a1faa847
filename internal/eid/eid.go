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
Package eid implements Laterbase's event identifier.

An EID is 128 bits: a 48-bit big-endian millisecond wall-clock timestamp
(the event's valid time) followed by 80 bits of randomness. Comparing two
EIDs as unsigned big-endian integers orders them chronologically first,
then randomly within the same millisecond — which is exactly the order
the wire format and the append log rely on.
*/
package eid

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// Size is the encoded length of an EID in bytes.
const Size = 16

// randBytes is the number of low-order random bytes (80 bits).
const randBytes = 10

// ID is a 128-bit, time-prefixed, totally ordered event identifier.
type ID [Size]byte

// Zero is the minimum possible ID, useful as a scan lower bound.
var Zero ID

// New builds an ID from an explicit valid-time millisecond timestamp and
// 80 bits of randomness. tsMs must fit in 48 bits; callers that mint IDs
// from wall-clock time should use Generate instead.
func New(tsMs int64, rnd [randBytes]byte) ID {
	var id ID
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(tsMs))
	copy(id[0:6], tsBuf[2:8]) // low 48 bits of the 64-bit timestamp
	copy(id[6:16], rnd[:])
	return id
}

// Generate mints a new ID from the current wall clock and a fresh random
// tail. It is the client-side minting operation referenced in §4.1.
func Generate() (ID, error) {
	var rnd [randBytes]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		return ID{}, fmt.Errorf("eid: read randomness: %w", err)
	}
	return New(time.Now().UnixMilli(), rnd), nil
}

// Timestamp returns the embedded valid-time millisecond timestamp.
func (id ID) Timestamp() int64 {
	var tsBuf [8]byte
	copy(tsBuf[2:8], id[0:6])
	return int64(binary.BigEndian.Uint64(tsBuf[:]))
}

// Time returns the embedded timestamp as a time.Time in UTC.
func (id ID) Time() time.Time {
	return time.UnixMilli(id.Timestamp()).UTC()
}

// Compare imposes the total order described in §3: unsigned big-endian
// integer comparison, which is exactly lexicographic byte comparison.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b.
func Less(a, b ID) bool {
	return Compare(a, b) < 0
}

// Bytes returns the fixed 16-byte big-endian encoding.
func (id ID) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// Decode parses a fixed 16-byte big-endian encoding into an ID.
func Decode(b []byte) (ID, error) {
	if len(b) != Size {
		return ID{}, fmt.Errorf("eid: decode: expected %d bytes, got %d", Size, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// String renders the ID as a hex string, mostly for logging.
func (id ID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == Zero
}
