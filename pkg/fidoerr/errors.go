// Package fidoerr defines the error taxonomy shared by every layer of
// the stack: typed errors for host-side failures, CTAPError for
// authenticator-reported status codes, and classification helpers that
// let callers decide on retry and re-prompt policy.
package fidoerr

import (
	"errors"
	"fmt"

	"github.com/go-ctap/fido2/pkg/fidotypes"
)

var (
	// ErrUnexpectedResponse means the device answered with a payload the
	// originating command cannot account for.
	ErrUnexpectedResponse = errors.New("fido2: unexpected response from device")
	// ErrUserCancelled means the user aborted the operation.
	ErrUserCancelled = errors.New("fido2: operation cancelled by user")
	// ErrDeviceLocked means the device refuses PIN operations until
	// unblocked (too many failed attempts).
	ErrDeviceLocked = errors.New("fido2: device is locked")
	// ErrPinRequired means the operation needs a verified PIN first.
	ErrPinRequired = errors.New("fido2: PIN verification required")
	// ErrUserVerificationRequired means the operation needs user
	// verification (touch or biometric).
	ErrUserVerificationRequired = errors.New("fido2: user verification required")
)

// DeviceNotFoundError reports an unknown or absent device identifier.
type DeviceNotFoundError struct {
	ID string
}

func (e *DeviceNotFoundError) Error() string {
	return "fido2: device not found: " + e.ID
}

// UnsupportedDeviceError means no creator is registered for the device type.
type UnsupportedDeviceError struct {
	DeviceType fidotypes.DeviceType
}

func (e *UnsupportedDeviceError) Error() string {
	return "fido2: unsupported device type: " + string(e.DeviceType)
}

// CommunicationError wraps a transport-level send/receive failure.
type CommunicationError struct {
	Message string
	Err     error
}

func (e *CommunicationError) Error() string {
	if e.Err != nil {
		return "fido2: device communication error: " + e.Message + ": " + e.Err.Error()
	}
	return "fido2: device communication error: " + e.Message
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// Communication builds a CommunicationError, optionally wrapping a cause.
func Communication(message string, cause error) *CommunicationError {
	return &CommunicationError{Message: message, Err: cause}
}

// AuthenticationError reports a failed authentication ceremony.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "fido2: authentication failed: " + e.Reason
}

// InvalidPinError reports a rejected PIN value.
type InvalidPinError struct {
	Reason string
}

func (e *InvalidPinError) Error() string {
	return "fido2: invalid PIN: " + e.Reason
}

// CredentialNotFoundError reports a missing credential.
type CredentialNotFoundError struct {
	ID string
}

func (e *CredentialNotFoundError) Error() string {
	return "fido2: credential not found: " + e.ID
}

// InvalidCredentialError reports malformed credential data.
type InvalidCredentialError struct {
	Reason string
}

func (e *InvalidCredentialError) Error() string {
	return "fido2: invalid credential data: " + e.Reason
}

// UnsupportedProtocolVersionError reports a protocol version mismatch.
type UnsupportedProtocolVersionError struct {
	Version string
}

func (e *UnsupportedProtocolVersionError) Error() string {
	return "fido2: unsupported protocol version: " + e.Version
}

// InvalidParametersError reports request parameters rejected before any
// device I/O happens.
type InvalidParametersError struct {
	Reason string
}

func (e *InvalidParametersError) Error() string {
	return "fido2: invalid request parameters: " + e.Reason
}

// TimeoutError reports an operation exceeding its configured deadline.
// The device-side operation state is not assumed cleared; callers should
// issue Cancel or GetInfo to resynchronize.
type TimeoutError struct {
	Seconds uint
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fido2: operation timed out after %d seconds", e.Seconds)
}

// PermissionDeniedError reports an OS-level access failure.
type PermissionDeniedError struct {
	Resource string
}

func (e *PermissionDeniedError) Error() string {
	return "fido2: permission denied: " + e.Resource
}

// DeviceBusyError means the device is held by another process or channel.
type DeviceBusyError struct {
	Message string
}

func (e *DeviceBusyError) Error() string {
	return "fido2: device busy: " + e.Message
}
