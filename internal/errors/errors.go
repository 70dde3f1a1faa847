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
Package errors implements the error taxonomy from §7.

Error Categories:
  - BadOffset: read_since called past the local high-water mark
  - SelfLoop: a StoreEvents claims to originate from the receiver itself
  - UnknownMessage: an unrecognised wire tag byte
  - Backend: a storage backend I/O failure
  - Malformed: a message that failed to decode

Every exported operation in the core returns one of these (or nil),
wrapped with enough context to log and to decide policy (§7's table)
without string-matching the message.
*/
package errors

import "fmt"

// Code identifies one of the error kinds from §7.
type Code int

const (
	// CodeBadOffset is raised when read_since(offset) is called with
	// offset > high_water.
	CodeBadOffset Code = iota + 1
	// CodeSelfLoop is raised when an inbound StoreEvents claims an
	// origin address equal to the receiving replica's own address.
	CodeSelfLoop
	// CodeUnknownMessage is raised on an unrecognised wire tag byte.
	CodeUnknownMessage
	// CodeBackend is raised when the storage backend fails an I/O
	// operation.
	CodeBackend
	// CodeMalformed is raised when a message fails to decode, or when
	// an EID fails the clock-skew check at mint/absorb time.
	CodeMalformed
)

// Category groups codes for coarse-grained handling (logging, metrics)
// without a type switch over Code.
type Category string

const (
	CategoryProtocol Category = "PROTOCOL"
	CategoryBackend  Category = "BACKEND"
)

func (c Code) category() Category {
	if c == CodeBackend {
		return CategoryBackend
	}
	return CategoryProtocol
}

func (c Code) String() string {
	switch c {
	case CodeBadOffset:
		return "BadOffset"
	case CodeSelfLoop:
		return "SelfLoop"
	case CodeUnknownMessage:
		return "UnknownMessage"
	case CodeBackend:
		return "Backend"
	case CodeMalformed:
		return "Malformed"
	default:
		return "Unknown"
	}
}

// Error is Laterbase's structured error type.
type Error struct {
	Code    Code
	Message string
	Detail  string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the coarse-grained category for this error's code.
func (e *Error) Category() Category {
	return e.Code.category()
}

// WithDetail attaches additional human-readable context.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithCause attaches the underlying error that triggered this one.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// BadOffset builds a CodeBadOffset error for read_since.
func BadOffset(offset, highWater uint64) *Error {
	return &Error{
		Code:    CodeBadOffset,
		Message: "offset exceeds high-water mark",
		Detail:  fmt.Sprintf("offset=%d high_water=%d", offset, highWater),
	}
}

// SelfLoop builds a CodeSelfLoop error for a StoreEvents claiming to
// originate from the receiving replica itself.
func SelfLoop(addr string) *Error {
	return &Error{
		Code:    CodeSelfLoop,
		Message: "StoreEvents origin equals local address",
		Detail:  addr,
	}
}

// UnknownMessage builds a CodeUnknownMessage error for an unrecognised
// wire tag byte.
func UnknownMessage(tag byte) *Error {
	return &Error{
		Code:    CodeUnknownMessage,
		Message: "unrecognised message tag",
		Detail:  fmt.Sprintf("tag=0x%02x", tag),
	}
}

// Backend wraps a storage backend failure.
func Backend(op string, cause error) *Error {
	return &Error{
		Code:    CodeBackend,
		Message: "storage backend failure",
		Detail:  op,
		Cause:   cause,
	}
}

// Malformed builds a CodeMalformed error for a message that failed to
// decode.
func Malformed(reason string) *Error {
	return &Error{
		Code:    CodeMalformed,
		Message: "malformed message",
		Detail:  reason,
	}
}

// SkewRejected is reported when an EID's embedded timestamp exceeds the
// replica's configured clock-skew tolerance (§3's open question).
func SkewRejected(detail string) *Error {
	return &Error{
		Code:    CodeMalformed,
		Message: "event timestamp exceeds allowed clock skew",
		Detail:  detail,
	}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// GetCode returns the code of err if it is a *Error, or 0 otherwise.
func GetCode(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return 0
}
