// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for the relay core. Handlers match these with errors.Is
// at their catch boundaries; none of them is fatal to the process.
var (
	// ErrNotFound is returned by cache lookups that miss both the local
	// cache and the remote platform.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateBinding is returned by ChannelMap.Bind when the local
	// channel is already bound to a different conversation key. Callers
	// must unbind first; hitting this in normal flow is a programmer error.
	ErrDuplicateBinding = errors.New("local channel already bound")
	// ErrPromptTimeout is returned by interactive prompts whose deadline
	// elapsed. Terminal for the current flow only.
	ErrPromptTimeout = errors.New("prompt timed out")
	// ErrNoTwoFactor is returned by the login flow when the remote account
	// requires two-factor auth but supports no verification mode.
	ErrNoTwoFactor = errors.New("no supported two factor method")
	// ErrLoginFailed is the terminal login flow failure.
	ErrLoginFailed = errors.New("login failed")
)

// InvalidArgumentError reports a command argument that failed validation.
type InvalidArgumentError struct {
	Name string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s's value is invalid", e.Name)
}

// RelayDeliveryError wraps a failed send on either platform. The message is
// considered lost on that hop; there is no automatic retry.
type RelayDeliveryError struct {
	Direction string // "remote" or "local"
	Cause     error
}

func (e *RelayDeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Direction, e.Cause)
}

func (e *RelayDeliveryError) Unwrap() error {
	return e.Cause
}

// TwoFactorRequiredError is returned by RemoteClient.Login when the account
// requires a verification code. Info describes the supported modes.
type TwoFactorRequiredError struct {
	Info TwoFactorInfo
}

func (e *TwoFactorRequiredError) Error() string {
	return "two factor verification required"
}

// CheckpointRequiredError is returned by RemoteClient.Login when the remote
// platform raised a challenge checkpoint that must be resolved with a
// security code.
type CheckpointRequiredError struct{}

func (e *CheckpointRequiredError) Error() string {
	return "checkpoint challenge required"
}
