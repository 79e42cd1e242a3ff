package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidLink indicates the link is malformed or points at nothing
var ErrInvalidLink = errors.New("invalid link")

// ErrPasswordRequired indicates the hosting page asked for a password that was not supplied
var ErrPasswordRequired = errors.New("password required")

// ErrWrongPassword indicates the hosting page rejected the supplied password
var ErrWrongPassword = errors.New("wrong password")

// ErrHostUnreachable indicates the host could not be contacted within the timeout
var ErrHostUnreachable = errors.New("host unreachable")

// ErrRateLimited indicates the host asked us to wait before the next download
var ErrRateLimited = errors.New("rate limited by host")

// ErrNothingSelected is returned by row commands issued without a selection
var ErrNothingSelected = errors.New("no rows were selected")

var ErrTaskNotFound = errors.New("task not found")

var ErrInvalidTransition = errors.New("invalid status transition")

// ErrCorruptStore indicates the persistence store exists but cannot be read
var ErrCorruptStore = errors.New("persistence store is corrupt")

// ResolutionError is reported once as an alert; the link is dropped.
type ResolutionError struct {
	Link string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s: %v", e.Link, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransferError moves a task to Failed. The partial file is kept.
type TransferError struct {
	TaskID string
	Op     string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %s: %v", e.TaskID, e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// PersistenceError degrades to empty state and is only logged.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CommandError is surfaced as a lightweight alert.
type CommandError struct {
	Command Command
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
