package ctap2

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-ctap/fido2/pkg/device"
	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"
	"github.com/go-ctap/fido2/pkg/options"
	"github.com/go-ctap/fido2/pkg/pinuv"

	"github.com/fxamacker/cbor/v2"
)

// Engine speaks CTAP2 over a connected device. It owns the PIN/UV auth
// token obtained from VerifyPIN and clears it whenever the device state
// that minted it is invalidated (Reset, a successful ChangePIN, or an
// explicit ClearPinToken).
type Engine struct {
	dev      device.Device
	logger   *slog.Logger
	encMode  cbor.EncMode
	timeout  time.Duration
	protocol fidotypes.PinUvAuthProtocol

	mu          sync.Mutex
	pinToken    []byte
	pinProtocol fidotypes.PinUvAuthProtocol
}

func NewEngine(dev device.Device, opts ...options.Option) *Engine {
	oo := options.NewOptions(opts...)

	// An explicit option wins over the device's declared timeout.
	timeout := oo.Timeout
	if timeout <= 0 {
		timeout = dev.OperationTimeout()
	}
	if timeout <= 0 {
		timeout = options.DefaultTimeout
	}

	return &Engine{
		dev:      dev,
		logger:   oo.Logger,
		encMode:  oo.EncMode,
		timeout:  timeout,
		protocol: oo.PinUvAuthProtocol,
	}
}

// GetInfo requests authenticatorGetInfo and decodes the response.
func (e *Engine) GetInfo(ctx context.Context) (*fidotypes.AuthenticatorInfo, error) {
	data, err := e.roundTrip(ctx, CommandGetInfo, nil)
	if err != nil {
		return nil, err
	}

	var info *fidotypes.AuthenticatorInfo
	if err := cbor.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("cannot unmarshal GetInfo CBOR response: %w", err)
	}

	return info, nil
}

// MakeCredential creates a credential. A PinUvAuthParam without its
// protocol number is rejected before any device I/O.
func (e *Engine) MakeCredential(ctx context.Context, params *fidotypes.MakeCredentialParams) (*fidotypes.AttestationObject, error) {
	if params.PinUvAuthParam != nil && params.PinUvAuthProtocol == 0 {
		return nil, &fidoerr.InvalidParametersError{Reason: "pinUvAuthParam set without pinUvAuthProtocol"}
	}

	data, err := e.roundTrip(ctx, CommandMakeCredential, newMakeCredentialRequest(params))
	if err != nil {
		return nil, err
	}

	var attObj *fidotypes.AttestationObject
	if err := cbor.Unmarshal(data, &attObj); err != nil {
		return nil, fmt.Errorf("cannot unmarshal MakeCredential CBOR response: %w", err)
	}

	return attObj, nil
}

// GetAssertion requests an assertion. For multi-credential results the
// remaining assertions are fetched with GetNextAssertion.
func (e *Engine) GetAssertion(ctx context.Context, params *fidotypes.GetAssertionParams) (*fidotypes.AssertionObject, error) {
	if params.PinUvAuthParam != nil && params.PinUvAuthProtocol == 0 {
		return nil, &fidoerr.InvalidParametersError{Reason: "pinUvAuthParam set without pinUvAuthProtocol"}
	}

	data, err := e.roundTrip(ctx, CommandGetAssertion, newGetAssertionRequest(params))
	if err != nil {
		return nil, err
	}

	var assertion *fidotypes.AssertionObject
	if err := cbor.Unmarshal(data, &assertion); err != nil {
		return nil, fmt.Errorf("cannot unmarshal GetAssertion CBOR response: %w", err)
	}

	return assertion, nil
}

// GetNextAssertion fetches the next assertion of an in-flight
// multi-credential GetAssertion sequence.
func (e *Engine) GetNextAssertion(ctx context.Context) (*fidotypes.AssertionObject, error) {
	data, err := e.roundTrip(ctx, CommandGetNextAssertion, nil)
	if err != nil {
		return nil, err
	}

	var assertion *fidotypes.AssertionObject
	if err := cbor.Unmarshal(data, &assertion); err != nil {
		return nil, fmt.Errorf("cannot unmarshal GetNextAssertion CBOR response: %w", err)
	}

	return assertion, nil
}

// Reset factory-resets the authenticator. A confirmed reset invalidates
// any held PIN token; a rejected one leaves the session state untouched,
// since the device still holds the PIN that minted it.
func (e *Engine) Reset(ctx context.Context) error {
	if _, err := e.roundTrip(ctx, CommandReset, nil); err != nil {
		return err
	}

	e.ClearPinToken()
	return nil
}

// Cancel sends the fixed cancel packet, aborting any pending
// user-presence wait. Authenticators acknowledge with either plain
// success or the keepalive-cancel status; both count as success here.
func (e *Engine) Cancel(ctx context.Context) error {
	resp, err := e.sendRaw(ctx, cancelPacket)
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		return fidoerr.Communication("empty cancel response", nil)
	}
	if resp[0] != statusSuccess && resp[0] != statusKeepaliveCancel {
		return fidoerr.NewCTAPError(resp[0])
	}

	return nil
}

// HasPinToken reports whether a PIN token from a prior VerifyPIN is
// held.
func (e *Engine) HasPinToken() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinToken != nil
}

// PinUvAuthProtocol returns the protocol the held token was minted
// under, or the engine's preferred protocol when no token is held.
func (e *Engine) PinUvAuthProtocol() fidotypes.PinUvAuthProtocol {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pinToken != nil {
		return e.pinProtocol
	}
	return e.protocol
}

// ClearPinToken drops the held PIN token, if any.
func (e *Engine) ClearPinToken() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinToken = nil
	e.pinProtocol = 0
}

// Authorize computes a pinUvAuthParam over the message with the held
// PIN token. Fails when no token is held.
func (e *Engine) Authorize(message []byte) ([]byte, fidotypes.PinUvAuthProtocol, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pinToken == nil {
		return nil, 0, fidoerr.ErrPinRequired
	}

	param, err := pinuv.Authenticate(e.pinProtocol, e.pinToken, message)
	if err != nil {
		return nil, 0, err
	}

	return param, e.pinProtocol, nil
}

func (e *Engine) storePinToken(token []byte, protocol fidotypes.PinUvAuthProtocol) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinToken = token
	e.pinProtocol = protocol
}

// roundTrip marshals the request, prefixes the command byte, exchanges
// it with the device and strips the status byte off the response.
func (e *Engine) roundTrip(ctx context.Context, cmd Command, req any) ([]byte, error) {
	payload := []byte{byte(cmd)}
	if req != nil {
		b, err := e.encMode.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("cannot marshal %#04x CBOR request: %w", byte(cmd), err)
		}
		payload = slices.Concat(payload, b)
	}
	e.logger.Debug("CTAP request", "cmd", fmt.Sprintf("%#04x", byte(cmd)), "hex", hex.EncodeToString(payload))

	resp, err := e.sendRaw(ctx, payload)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("CTAP response", "cmd", fmt.Sprintf("%#04x", byte(cmd)), "hex", hex.EncodeToString(resp))

	if len(resp) == 0 {
		return nil, fidoerr.Communication("empty response", nil)
	}
	if resp[0] != statusSuccess {
		return nil, fidoerr.NewCTAPError(resp[0])
	}

	return resp[1:], nil
}

// sendRaw runs the exchange in its own goroutine so the caller can be
// released by context cancellation or the operation timeout while a
// write or read is still blocked on the transport.
func (e *Engine) sendRaw(ctx context.Context, payload []byte) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		data, err := e.dev.SendRaw(ctx, payload)
		done <- result{data: data, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &fidoerr.TimeoutError{Seconds: uint(e.timeout / time.Second)}
	case res := <-done:
		if res.err != nil {
			return nil, fidoerr.Communication("device exchange failed", res.err)
		}
		return res.data, nil
	}
}
