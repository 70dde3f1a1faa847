/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package address implements Laterbase's replica address: an opaque,
ordered byte sequence identifying one replica across the system (§3).

Per §9's design note, identity is a plain comparable value with no
method set of its own — the capability to actually reach a replica
(the transport) is held separately by the replica actor, not bundled
into the address.
*/
package address

import (
	"bytes"
	"encoding/hex"
)

// Address is an opaque, ordered, comparable byte sequence. It is
// represented as a string so it can be used directly as a map key
// (Go slices cannot), while still round-tripping through raw bytes.
type Address string

// FromBytes builds an Address from raw bytes.
func FromBytes(b []byte) Address {
	return Address(b)
}

// Bytes returns the raw bytes of the address.
func (a Address) Bytes() []byte {
	return []byte(a)
}

// String renders the address as hex, for logging and the CLI.
func (a Address) String() string {
	return hex.EncodeToString([]byte(a))
}

// Compare imposes the ordered byte comparison §3 requires.
func Compare(a, b Address) int {
	return bytes.Compare([]byte(a), []byte(b))
}

// Parse decodes a hex string produced by String back into an Address.
func Parse(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return Address(b), nil
}
