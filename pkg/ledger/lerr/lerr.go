// Package lerr defines the ledger's typed error codes.
//
// Every expected failure inside the settlement core is an *Error: a stable
// numeric code plus the file:line it was thrown from. The code is what clients
// and tests match on; the location is what operators grep for. Invariant
// violations that indicate a build defect are the only thing allowed to panic.
package lerr

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Code is a stable numeric error identity. Values are part of the wire
// contract (clients match on them) and must never be renumbered.
type Code uint32

const (
	MathError           Code = 6
	InsufficientFunds   Code = 7
	InvalidMarket       Code = 9
	OutOfSpace          Code = 12
	InsufficientHealth  Code = 23
	InvalidParam        Code = 24
	InvalidAccount      Code = 25
	InvalidOraclePrice  Code = 38
	AlreadyInitialized  Code = 40
	InvalidSigner       Code = 41
	InvalidAccountState Code = 43
	InvalidOrderId      Code = 44
	OrderExpired        Code = 45
)

func (c Code) String() string {
	switch c {
	case MathError:
		return "MathError"
	case InsufficientFunds:
		return "InsufficientFunds"
	case InvalidMarket:
		return "InvalidMarket"
	case OutOfSpace:
		return "OutOfSpace"
	case InsufficientHealth:
		return "InsufficientHealth"
	case InvalidParam:
		return "InvalidParam"
	case InvalidAccount:
		return "InvalidAccount"
	case InvalidOraclePrice:
		return "InvalidOraclePrice"
	case AlreadyInitialized:
		return "AlreadyInitialized"
	case InvalidSigner:
		return "InvalidSigner"
	case InvalidAccountState:
		return "InvalidAccountState"
	case InvalidOrderId:
		return "InvalidOrderId"
	case OrderExpired:
		return "OrderExpired"
	default:
		return fmt.Sprintf("Code(%d)", uint32(c))
	}
}

// Error is a typed failure with its originating source location.
type Error struct {
	Code Code
	File string
	Line int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s; %s:%d", e.Code, e.File, e.Line)
}

// Throw builds an *Error tagged with the caller's file and line.
func Throw(code Code) *Error {
	return throw(code, 2)
}

// Check returns nil when cond holds, otherwise an *Error tagged with the
// caller's location. Mirrors assert-style guard clauses: the condition states
// the invariant that must be true to proceed.
func Check(cond bool, code Code) error {
	if cond {
		return nil
	}
	return throw(code, 2)
}

func throw(code Code, skip int) *Error {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		file, line = "unknown", 0
	}
	return &Error{Code: code, File: filepath.Base(file), Line: line}
}

// CodeOf extracts the typed code from an error chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
