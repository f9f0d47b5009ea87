// Package common defines shared constants and sentinel errors used across
// the scan ingestion layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrStatusConflict = errors.New("status conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Request validation errors.
	ErrMissingIdentifiers = errors.New("owner id or device id missing from request path")
	ErrOwnerNotFound      = errors.New("owner does not exist")
	ErrorIncorrectPayload = errors.New("incorrect upload payload")
	ErrInvalidPageName    = errors.New("invalid page name")

	// Status tracking errors.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Template resolution errors.
	ErrNotResolvable     = errors.New("template id is empty")
	ErrTemplateTimeout   = errors.New("template resolution timed out")
	ErrMalformedTemplate = errors.New("malformed template payload")

	// Merge errors.
	ErrNotMergeable = errors.New("scan is not mergeable")
)
