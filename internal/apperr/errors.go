// Package apperr holds the error taxonomy shared by access control, the
// document service and the realtime hub.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized means no valid credential was presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the credential resolved, but to a level below the one required.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound covers missing documents, versions and links, and cross-tenant access.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is a malformed request or message payload.
	ErrInvalid = errors.New("invalid")
	// ErrConflict is a storage-level collision, e.g. a duplicate version sequence.
	ErrConflict = errors.New("conflict")
)

// Wire codes carried in realtime error messages.
const (
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeInvalid      = "invalid"
	CodeConflict     = "conflict"
	CodeInternal     = "internal"
)

// Code maps err onto its wire code. Anything outside the taxonomy is internal.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalid):
		return CodeInvalid
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalid:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether err belongs to the taxonomy, i.e. is safe to
// echo back to the caller verbatim.
func IsClientError(err error) bool {
	return Code(err) != CodeInternal
}
