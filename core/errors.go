package core

import "errors"

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current turn state, e.g. submitting text while a recording is running.
	ErrInvalidState = errors.New("operation not allowed in current turn state")
	// ErrAlreadyRecording is returned when a recording is started while one
	// is already in progress.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrInvalidInput is returned when required input is missing or blank.
	ErrInvalidInput = errors.New("invalid input")
)
