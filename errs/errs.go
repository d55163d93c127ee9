// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package errs declares the engine-wide error taxonomy: a stable numeric
// code, a category, and a human message, with an optional wrapped cause.
package errs

import "fmt"

// Category groups related Codes into a contiguous numeric range.
type Category int

const (
	// CategoryUser covers mistakes in the query or request itself.
	CategoryUser Category = iota
	// CategoryInternal covers bugs or unexpected engine states.
	CategoryInternal
	// CategoryInsufficientResources covers admission/memory/placement failures.
	CategoryInsufficientResources
	// CategoryExternal covers faults in collaborating external systems.
	CategoryExternal
)

// Code is a stable, unique, ascending error code. Codes are grouped by
// Category; only the first code of each category is allowed to break
// strict sequential numbering relative to its predecessor.
type Code int

// User errors.
const (
	SyntaxError Code = 100 + iota
	SemanticError
	InvalidSessionProperty
	InvalidCastArgument
	InvalidFunctionArgument
	DivisionByZero
	NumericOverflow
	NotSupported
	PermissionDenied
	NotFound
	AlreadyExists
)

// Internal errors.
const (
	InternalError Code = 200 + iota
	RaptorError
	HiveCursorError
	HiveBadData
)

// Insufficient-resource errors.
const (
	ExceededMemoryLimit Code = 300 + iota
	NoNodesAvailable
)

// External errors.
const (
	TransactionConflict Code = 400 + iota
	ExternalBatchAlreadyExists
	ConnectorIOError
)

var categories = map[Code]Category{
	SyntaxError:             CategoryUser,
	SemanticError:           CategoryUser,
	InvalidSessionProperty:  CategoryUser,
	InvalidCastArgument:     CategoryUser,
	InvalidFunctionArgument: CategoryUser,
	DivisionByZero:          CategoryUser,
	NumericOverflow:         CategoryUser,
	NotSupported:            CategoryUser,
	PermissionDenied:        CategoryUser,
	NotFound:                CategoryUser,
	AlreadyExists:           CategoryUser,

	InternalError:   CategoryInternal,
	RaptorError:     CategoryInternal,
	HiveCursorError: CategoryInternal,
	HiveBadData:     CategoryInternal,

	ExceededMemoryLimit: CategoryInsufficientResources,
	NoNodesAvailable:    CategoryInsufficientResources,

	TransactionConflict:       CategoryExternal,
	ExternalBatchAlreadyExists: CategoryExternal,
	ConnectorIOError:          CategoryExternal,
}

var names = map[Code]string{
	SyntaxError:             "SYNTAX_ERROR",
	SemanticError:           "SEMANTIC_ERROR",
	InvalidSessionProperty:  "INVALID_SESSION_PROPERTY",
	InvalidCastArgument:     "INVALID_CAST_ARGUMENT",
	InvalidFunctionArgument: "INVALID_FUNCTION_ARGUMENT",
	DivisionByZero:          "DIVISION_BY_ZERO",
	NumericOverflow:         "NUMERIC_OVERFLOW",
	NotSupported:            "NOT_SUPPORTED",
	PermissionDenied:        "PERMISSION_DENIED",
	NotFound:                "NOT_FOUND",
	AlreadyExists:           "ALREADY_EXISTS",

	InternalError:   "INTERNAL_ERROR",
	RaptorError:     "RAPTOR_ERROR",
	HiveCursorError: "HIVE_CURSOR_ERROR",
	HiveBadData:     "HIVE_BAD_DATA",

	ExceededMemoryLimit: "EXCEEDED_MEMORY_LIMIT",
	NoNodesAvailable:    "NO_NODES_AVAILABLE",

	TransactionConflict:       "TRANSACTION_CONFLICT",
	ExternalBatchAlreadyExists: "EXTERNAL_BATCH_ALREADY_EXISTS",
	ConnectorIOError:          "CONNECTOR_IO_ERROR",
}

// Category returns the category that c belongs to. It panics if c is not
// a registered code, since that indicates a programming error at the call
// site rather than a condition callers should handle.
func (c Code) Category() Category {
	cat, ok := categories[c]
	if !ok {
		panic(fmt.Sprintf("errs: unregistered code %d", c))
	}
	return cat
}

// String returns the canonical uppercase-snake-case name of c.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN_ERROR(%d)", int(c))
}

// Error is the engine-wide error type. Every error that crosses a
// component boundary (stage, task, connector, shard manager) should be
// an *Error so that callers can branch on Code without string matching.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with a formatted message and no cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries cause as its wrapped error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error,
// otherwise it returns InternalError.
func CodeOf(err error) Code {
	var e *Error
	if asError(err, &e) {
		return e.Code
	}
	return InternalError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
