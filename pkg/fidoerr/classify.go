package fidoerr

import "errors"

// IsDeviceLocked reports whether the error means the device refuses PIN
// operations until unblocked.
func IsDeviceLocked(err error) bool {
	if errors.Is(err, ErrDeviceLocked) {
		return true
	}
	var ctap *CTAPError
	return errors.As(err, &ctap) && ctap.Code == ctapPinBlocked
}

// IsPinRequired reports whether the error means a verified PIN is needed
// before retrying the operation.
func IsPinRequired(err error) bool {
	if errors.Is(err, ErrPinRequired) {
		return true
	}
	var ctap *CTAPError
	return errors.As(err, &ctap) && ctap.Code == ctapPinRequired
}

// IsUserVerificationRequired reports whether the error means the user
// must verify presence (touch/biometric) before retrying.
func IsUserVerificationRequired(err error) bool {
	if errors.Is(err, ErrUserVerificationRequired) {
		return true
	}
	var ctap *CTAPError
	return errors.As(err, &ctap) && ctap.Code == ctapUpRequired
}

// IsRetryable reports whether the failure is transient and the same
// operation might succeed if reissued. The engine never retries on its
// own; retry policy belongs to the caller.
func IsRetryable(err error) bool {
	var (
		busy    *DeviceBusyError
		timeout *TimeoutError
		comm    *CommunicationError
		ctap    *CTAPError
	)
	switch {
	case errors.As(err, &busy),
		errors.As(err, &timeout),
		errors.As(err, &comm):
		return true
	case errors.As(err, &ctap):
		return ctap.Code == ctapChannelBusy || ctap.Code == ctapProcessing
	}
	return false
}
