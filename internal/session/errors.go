package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryNotFound reports a session request for a path that does
	// not exist or is not a directory.
	ErrDirectoryNotFound = errors.New("project directory not found")

	// ErrNotTrusted reports a session request for a directory outside the
	// trust list.
	ErrNotTrusted = errors.New("directory is not trusted")

	// ErrInitializationFailed reports a failed startup sequence. The
	// record is evicted, so a retry starts from scratch.
	ErrInitializationFailed = errors.New("session initialization failed")

	// ErrWarmingUp reports that a session exists but has not finished
	// initializing within the readiness window.
	ErrWarmingUp = errors.New("session is warming up")

	// ErrEmptyPrompt reports a prompt whose text is empty or whitespace.
	ErrEmptyPrompt = errors.New("prompt text must not be empty")

	// ErrApprovalRequired reports a buffered prompt that stopped at a tool
	// call needing explicit approval.
	ErrApprovalRequired = errors.New("tool call requires approval")

	// ErrEmptyResponse reports a buffered prompt whose final model turn
	// carried no text.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrNoPendingCalls reports a fulfillment for a session with nothing
	// awaiting approval.
	ErrNoPendingCalls = errors.New("no tool calls awaiting approval")

	// ErrSessionNotFound reports an operation on a session that is not in
	// the registry.
	ErrSessionNotFound = errors.New("session not found")
)

// RuntimeError wraps a failure from the model backend so the transport
// layer can map it to its own error code.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("model runtime: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
