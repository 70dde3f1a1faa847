/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package errors

import (
	"errors"
	"testing"
)

func TestBadOffsetMessage(t *testing.T) {
	err := BadOffset(5, 3)
	if err.Code != CodeBadOffset {
		t.Errorf("Code = %v, want CodeBadOffset", err.Code)
	}
	if err.Category() != CategoryProtocol {
		t.Errorf("Category() = %v, want CategoryProtocol", err.Category())
	}
	if got := err.Error(); got == "" {
		t.Error("Error() should not be empty")
	}
}

func TestBackendCategory(t *testing.T) {
	cause := errors.New("disk full")
	err := Backend("put_event", cause)
	if err.Category() != CategoryBackend {
		t.Errorf("Category() = %v, want CategoryBackend", err.Category())
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap() should return the wrapped cause")
	}
}

func TestIsAndGetCode(t *testing.T) {
	err := SelfLoop("aa")
	if !Is(err, CodeSelfLoop) {
		t.Error("Is() should match CodeSelfLoop")
	}
	if Is(err, CodeBackend) {
		t.Error("Is() should not match CodeBackend")
	}
	if GetCode(err) != CodeSelfLoop {
		t.Errorf("GetCode() = %v, want CodeSelfLoop", GetCode(err))
	}
	if GetCode(errors.New("plain")) != 0 {
		t.Error("GetCode() of a non-*Error should be 0")
	}
}

func TestWithDetailAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := UnknownMessage(0x42).WithDetail("extra").WithCause(cause)
	if err.Detail != "extra" {
		t.Errorf("Detail = %q, want %q", err.Detail, "extra")
	}
	if err.Cause != cause {
		t.Error("Cause should be set by WithCause")
	}
}

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		CodeBadOffset:      "BadOffset",
		CodeSelfLoop:       "SelfLoop",
		CodeUnknownMessage: "UnknownMessage",
		CodeBackend:        "Backend",
		CodeMalformed:      "Malformed",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}
