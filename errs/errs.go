// Package errs defines the structured error type used across actorfs.
//
// Every exported operation that can fail returns an *Error carrying one of
// the classified codes below (filesystem errors, CAS/git-object errors,
// compression errors, paging errors, branching errors). Internal helpers
// are free to return plain wrapped errors; the package boundary classifies
// them once before they cross a layer.
package errs

import (
	"errors"
	"fmt"
)

// Code is one of the taxonomy constants below.
type Code string

const (
	// Filesystem
	ENOENT    Code = "ENOENT"
	EEXIST    Code = "EEXIST"
	EISDIR    Code = "EISDIR"
	ENOTDIR   Code = "ENOTDIR"
	ENOTEMPTY Code = "ENOTEMPTY"
	EACCES    Code = "EACCES"
	EINVAL    Code = "EINVAL"
	ELOOP     Code = "ELOOP"

	// CAS / git-object
	EmptyData      Code = "EMPTY_DATA"
	MissingNull    Code = "MISSING_NULL_BYTE"
	MissingSpace   Code = "MISSING_SPACE"
	InvalidType    Code = "INVALID_TYPE"
	InvalidSize    Code = "INVALID_SIZE"
	SizeMismatch   Code = "SIZE_MISMATCH"
	InvalidHash    Code = "INVALID_HASH"
	CorruptedObj   Code = "CORRUPTED_OBJECT"

	// Compression
	InvalidLevel       Code = "INVALID_LEVEL"
	InvalidMemLevel    Code = "INVALID_MEM_LEVEL"
	CompressionFailed  Code = "COMPRESSION_FAILED"
	InvalidZlibHeader  Code = "INVALID_ZLIB_HEADER"
	InvalidChecksum    Code = "INVALID_CHECKSUM"
	TruncatedData      Code = "TRUNCATED_DATA"
	CorruptedData      Code = "CORRUPTED_DATA"
	DecompressionError Code = "DECOMPRESSION_FAILED"

	// Paging / eviction
	RangeOutOfBounds Code = "RANGE_OUT_OF_BOUNDS"
	MissingPage      Code = "MISSING_PAGE_CHUNK"

	// Branching
	BranchExists          Code = "BRANCH_ALREADY_EXISTS"
	BranchNotFound        Code = "BRANCH_NOT_FOUND"
	BranchDeleteForbidden Code = "BRANCH_DELETE_FORBIDDEN"

	// Pattern matching / subscriptions
	InvalidPattern   Code = "INVALID_PATTERN"
	SubscriptionCap  Code = "SUBSCRIPTION_CAP_EXCEEDED"
	InvalidSubscribe Code = "INVALID_SUBSCRIBE_MESSAGE"
)

// Error is the structured error carried across every actorfs boundary.
type Error struct {
	Code    Code
	Path    string
	Details string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &Error{Code: ENOENT}) style matching on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

// New builds a classified error with no wrapped cause.
func New(code Code, path string, details string) *Error {
	return &Error{Code: code, Path: path, Details: details}
}

// Wrap classifies an underlying error under code, attaching path context.
func Wrap(code Code, path string, err error) *Error {
	return &Error{Code: code, Path: path, Err: err}
}

// Wrapf is Wrap with a formatted Details string.
func Wrapf(code Code, path string, format string, args ...any) *Error {
	return &Error{Code: code, Path: path, Details: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Is reports whether err is classified under code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
