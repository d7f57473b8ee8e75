package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrForbidden         = errors.New("forbidden")
	ErrNotPending        = errors.New("scheduled message is no longer pending")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrScheduleInPast    = errors.New("scheduled time must be in the future")
	ErrInvalidCallType   = errors.New("call type must be voice or video")
	ErrAlreadySetup      = errors.New("connection already bound to a user")
	ErrNotSetup          = errors.New("connection has not completed setup")
	ErrUserMismatch      = errors.New("user does not match token")
)
