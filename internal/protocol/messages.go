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
Package protocol implements the three-message Laterbase wire protocol
described in §6: Sync, SendEvents and StoreEvents, discriminated by a
single tag byte, little-endian throughout except the EID itself (which
stays big-endian so its bytes sort the same way its total order does).

	0x01  Sync         : peer_addr_len (u16) | peer_addr_bytes
	0x02  SendEvents   : since (u64, LE) | dest_addr_len (u16) | dest_addr_bytes
	0x03  StoreEvents  : has_from (u8, 0 or 1)
	                     if has_from: addr_len (u16) | addr_bytes | clock (u64, LE)
	                     n_events (u32, LE)
	                     repeated: eid (16 bytes, BE) | val_len (u32, LE) | val_bytes

The wire format itself is little-endian regardless of host byte order,
set explicitly via encoding/binary.LittleEndian throughout.
*/
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"laterbase/internal/address"
	"laterbase/internal/eid"
	laterrors "laterbase/internal/errors"
)

// Tag discriminates the three message kinds on the wire.
type Tag byte

const (
	TagSync        Tag = 0x01
	TagSendEvents  Tag = 0x02
	TagStoreEvents Tag = 0x03
)

// MaxAddrLen bounds the address length field; addresses are typically
// far smaller (§3: "≤ 32 bytes typical").
const MaxAddrLen = 1 << 16 - 1

// MaxEvents bounds the event count in a single StoreEvents frame so a
// corrupt or hostile length field can't trigger an enormous allocation.
const MaxEvents = 1 << 24

// Event is one (EID, value) pair as carried on the wire.
type Event struct {
	ID    eid.ID
	Value []byte
}

// Origin records who a StoreEvents batch came from and the sender's
// high-water mark at the time it was read (§4.3's `origin`).
type Origin struct {
	Addr  address.Address
	Clock uint64
}

// Message is implemented by Sync, SendEvents and StoreEvents.
type Message interface {
	Tag() Tag
}

// Sync asks the receiving replica to reply with what it has accrued
// since the sender's last contact (§4.4).
type Sync struct {
	Peer address.Address
}

func (Sync) Tag() Tag { return TagSync }

// SendEvents asks the receiver to ship everything it has appended
// since Since, replying to Dest (§4.4).
type SendEvents struct {
	Since uint64
	Dest  address.Address
}

func (SendEvents) Tag() Tag { return TagSendEvents }

// StoreEvents carries a batch of events to absorb, optionally tagged
// with the sender's origin so the receiver can update its version
// vector (§4.3, §4.4).
type StoreEvents struct {
	From   *Origin
	Events []Event
}

func (StoreEvents) Tag() Tag { return TagStoreEvents }

// Encode writes msg's wire representation to w.
func Encode(w io.Writer, msg Message) error {
	switch m := msg.(type) {
	case Sync:
		return encodeSync(w, m)
	case *Sync:
		return encodeSync(w, *m)
	case SendEvents:
		return encodeSendEvents(w, m)
	case *SendEvents:
		return encodeSendEvents(w, *m)
	case StoreEvents:
		return encodeStoreEvents(w, m)
	case *StoreEvents:
		return encodeStoreEvents(w, *m)
	default:
		return fmt.Errorf("protocol: unknown message type %T", msg)
	}
}

func writeTag(w io.Writer, tag Tag) error {
	_, err := w.Write([]byte{byte(tag)})
	return err
}

func writeAddr(w io.Writer, a address.Address) error {
	b := a.Bytes()
	if len(b) > MaxAddrLen {
		return fmt.Errorf("protocol: address too long: %d bytes", len(b))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func encodeSync(w io.Writer, m Sync) error {
	if err := writeTag(w, TagSync); err != nil {
		return err
	}
	return writeAddr(w, m.Peer)
}

func encodeSendEvents(w io.Writer, m SendEvents) error {
	if err := writeTag(w, TagSendEvents); err != nil {
		return err
	}
	var sinceBuf [8]byte
	binary.LittleEndian.PutUint64(sinceBuf[:], m.Since)
	if _, err := w.Write(sinceBuf[:]); err != nil {
		return err
	}
	return writeAddr(w, m.Dest)
}

func encodeStoreEvents(w io.Writer, m StoreEvents) error {
	if err := writeTag(w, TagStoreEvents); err != nil {
		return err
	}
	if m.From != nil {
		if _, err := w.Write([]byte{1}); err != nil {
			return err
		}
		if err := writeAddr(w, m.From.Addr); err != nil {
			return err
		}
		var clockBuf [8]byte
		binary.LittleEndian.PutUint64(clockBuf[:], m.From.Clock)
		if _, err := w.Write(clockBuf[:]); err != nil {
			return err
		}
	} else {
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
	}

	var nBuf [4]byte
	binary.LittleEndian.PutUint32(nBuf[:], uint32(len(m.Events)))
	if _, err := w.Write(nBuf[:]); err != nil {
		return err
	}

	for _, e := range m.Events {
		if _, err := w.Write(e.ID[:]); err != nil {
			return err
		}
		var valLenBuf [4]byte
		binary.LittleEndian.PutUint32(valLenBuf[:], uint32(len(e.Value)))
		if _, err := w.Write(valLenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads one message from r. A failure to read the tag byte is
// returned unchanged (io.EOF when r is empty) so callers can distinguish
// "no more messages" from a corrupt frame; an unknown tag or a short or
// invalid body decodes to a *laterrors.Error with CodeUnknownMessage or
// CodeMalformed.
func Decode(r io.Reader) (Message, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return nil, err
	}

	switch Tag(tagBuf[0]) {
	case TagSync:
		return decodeSync(r)
	case TagSendEvents:
		return decodeSendEvents(r)
	case TagStoreEvents:
		return decodeStoreEvents(r)
	default:
		return nil, laterrors.UnknownMessage(tagBuf[0])
	}
}

func readAddr(r io.Reader) (address.Address, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", laterrors.Malformed("short address length: " + err.Error())
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", laterrors.Malformed("short address body: " + err.Error())
		}
	}
	return address.FromBytes(buf), nil
}

func decodeSync(r io.Reader) (Message, error) {
	peer, err := readAddr(r)
	if err != nil {
		return nil, err
	}
	return Sync{Peer: peer}, nil
}

func decodeSendEvents(r io.Reader) (Message, error) {
	var sinceBuf [8]byte
	if _, err := io.ReadFull(r, sinceBuf[:]); err != nil {
		return nil, laterrors.Malformed("short since field: " + err.Error())
	}
	dest, err := readAddr(r)
	if err != nil {
		return nil, err
	}
	return SendEvents{Since: binary.LittleEndian.Uint64(sinceBuf[:]), Dest: dest}, nil
}

func decodeStoreEvents(r io.Reader) (Message, error) {
	var hasFromBuf [1]byte
	if _, err := io.ReadFull(r, hasFromBuf[:]); err != nil {
		return nil, laterrors.Malformed("short has_from field: " + err.Error())
	}

	var origin *Origin
	switch hasFromBuf[0] {
	case 0:
		origin = nil
	case 1:
		addr, err := readAddr(r)
		if err != nil {
			return nil, err
		}
		var clockBuf [8]byte
		if _, err := io.ReadFull(r, clockBuf[:]); err != nil {
			return nil, laterrors.Malformed("short clock field: " + err.Error())
		}
		origin = &Origin{Addr: addr, Clock: binary.LittleEndian.Uint64(clockBuf[:])}
	default:
		return nil, laterrors.Malformed(fmt.Sprintf("invalid has_from byte: %d", hasFromBuf[0]))
	}

	var nBuf [4]byte
	if _, err := io.ReadFull(r, nBuf[:]); err != nil {
		return nil, laterrors.Malformed("short event count: " + err.Error())
	}
	n := binary.LittleEndian.Uint32(nBuf[:])
	if n > MaxEvents {
		return nil, laterrors.Malformed(fmt.Sprintf("event count %d exceeds limit", n))
	}

	events := make([]Event, 0, n)
	for i := uint32(0); i < n; i++ {
		var idBuf [eid.Size]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, laterrors.Malformed("short event id: " + err.Error())
		}
		id, err := eid.Decode(idBuf[:])
		if err != nil {
			return nil, laterrors.Malformed(err.Error())
		}

		var valLenBuf [4]byte
		if _, err := io.ReadFull(r, valLenBuf[:]); err != nil {
			return nil, laterrors.Malformed("short value length: " + err.Error())
		}
		valLen := binary.LittleEndian.Uint32(valLenBuf[:])
		val := make([]byte, valLen)
		if valLen > 0 {
			if _, err := io.ReadFull(r, val); err != nil {
				return nil, laterrors.Malformed("short value body: " + err.Error())
			}
		}
		events = append(events, Event{ID: id, Value: val})
	}

	return StoreEvents{From: origin, Events: events}, nil
}
