// Package services holds the conversation orchestration and the application
// services around it (history paging, premium catalog, per-user registry).
// This file centralizes the service-level error values; handlers translate
// them into HTTP status codes.
package services

import "errors"

var (
	// ErrAuthRequired is returned when a send is attempted without a loaded
	// user profile. Nothing is written and no provider is called.
	ErrAuthRequired = errors.New("user not authenticated")

	// ErrBusy is returned when a send is already in flight on the same
	// orchestrator.
	ErrBusy = errors.New("a message is already being sent")

	// ErrSessionCreate wraps the failure to create the implicit session of
	// a first send.
	ErrSessionCreate = errors.New("create chat session")

	// ErrPersistence wraps a failed message write.
	ErrPersistence = errors.New("persist chat message")

	// ErrSessionNotFound indicates the session does not exist or belongs to
	// another user.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrEmptyMessage is returned for a send with nothing to answer.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrInvalidInput is returned for an unknown input kind.
	ErrInvalidInput = errors.New("invalid input type")
)
