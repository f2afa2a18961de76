// Package common defines the sentinel errors and shared constants used across
// the chatsync client, the store backends and the relay. Callers match the
// errors with errors.Is.
package common

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation needs a current user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrDuplicateChat reports that a chat record already exists under the
	// derived identifier.
	ErrDuplicateChat = errors.New("duplicate chat")

	// ErrRemoteUnavailable wraps network and store failures. It is always
	// recoverable.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrPermissionDenied is returned for edit/delete by a non-owner and for
	// rejected access tokens.
	ErrPermissionDenied = errors.New("permission denied")

	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")

	ErrInvalidToken = errors.New("invalid token")
)
