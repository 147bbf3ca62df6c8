package util

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrContentNotFound    = errors.New("content not found")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrInvalidTransition  = errors.New("invalid progress transition")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
