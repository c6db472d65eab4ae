package ctap2

import (
	"context"
	"crypto/sha256"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/pinuv"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/key"
)

// GetPINRetries returns how many PIN attempts remain before the device
// locks.
func (e *Engine) GetPINRetries(ctx context.Context) (uint, error) {
	resp, err := e.clientPIN(ctx, &clientPINRequest{
		PinUvAuthProtocol: e.protocol,
		SubCommand:        ClientPINSubCommandGetPINRetries,
	})
	if err != nil {
		return 0, err
	}

	return resp.PinRetries, nil
}

// GetKeyAgreement fetches the authenticator's ECDH public key for the
// engine's preferred protocol.
func (e *Engine) GetKeyAgreement(ctx context.Context) (key.Key, error) {
	resp, err := e.clientPIN(ctx, &clientPINRequest{
		PinUvAuthProtocol: e.protocol,
		SubCommand:        ClientPINSubCommandGetKeyAgreement,
	})
	if err != nil {
		return nil, err
	}
	if resp.KeyAgreement == nil {
		return nil, fidoerr.Communication("key agreement response without key", nil)
	}

	return resp.KeyAgreement, nil
}

// SetPIN installs the first PIN on a device that has none. The PIN is
// length-checked locally before any device I/O.
func (e *Engine) SetPIN(ctx context.Context, pin string) error {
	if err := validatePIN(pin); err != nil {
		return err
	}

	protocol, sharedSecret, platformCoseKey, err := e.encapsulate(ctx)
	if err != nil {
		return err
	}

	newPinEnc, err := protocol.Encrypt(sharedSecret, padPIN(pin))
	if err != nil {
		return err
	}

	pinUvAuthParam, err := pinuv.Authenticate(protocol.Number, sharedSecret, newPinEnc)
	if err != nil {
		return err
	}

	_, err = e.clientPIN(ctx, &clientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ClientPINSubCommandSetPIN,
		KeyAgreement:      platformCoseKey,
		PinUvAuthParam:    pinUvAuthParam,
		NewPinEnc:         newPinEnc,
	})
	return err
}

// ChangePIN replaces the current PIN. Only the new PIN is
// length-checked; the current one is proven by its hash. A successful
// change invalidates any token minted under the old PIN.
func (e *Engine) ChangePIN(ctx context.Context, currentPIN, newPIN string) error {
	if err := validatePIN(newPIN); err != nil {
		return err
	}

	protocol, sharedSecret, platformCoseKey, err := e.encapsulate(ctx)
	if err != nil {
		return err
	}

	pinHashEnc, err := protocol.Encrypt(sharedSecret, pinHash(currentPIN))
	if err != nil {
		return err
	}
	newPinEnc, err := protocol.Encrypt(sharedSecret, padPIN(newPIN))
	if err != nil {
		return err
	}

	pinUvAuthParam, err := pinuv.Authenticate(protocol.Number, sharedSecret, slices.Concat(newPinEnc, pinHashEnc))
	if err != nil {
		return err
	}

	_, err = e.clientPIN(ctx, &clientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ClientPINSubCommandChangePIN,
		KeyAgreement:      platformCoseKey,
		PinUvAuthParam:    pinUvAuthParam,
		NewPinEnc:         newPinEnc,
		PinHashEnc:        pinHashEnc,
	})
	if err != nil {
		return err
	}

	e.ClearPinToken()
	return nil
}

// VerifyPIN proves the PIN to the device and stores the returned PIN
// token for later Authorize calls. No local length check: the device is
// the authority on whether a PIN matches.
func (e *Engine) VerifyPIN(ctx context.Context, pin string) error {
	protocol, sharedSecret, platformCoseKey, err := e.encapsulate(ctx)
	if err != nil {
		return err
	}

	pinHashEnc, err := protocol.Encrypt(sharedSecret, pinHash(pin))
	if err != nil {
		return err
	}

	resp, err := e.clientPIN(ctx, &clientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ClientPINSubCommandGetPinToken,
		KeyAgreement:      platformCoseKey,
		PinHashEnc:        pinHashEnc,
	})
	if err != nil {
		return err
	}

	token, err := protocol.Decrypt(sharedSecret, resp.PinUvAuthToken)
	if err != nil {
		return err
	}

	e.storePinToken(token, protocol.Number)
	return nil
}

// encapsulate runs the key-agreement handshake: fetch the device's
// public key, derive the shared secret, and hand back the platform key
// to include in the follow-up request.
func (e *Engine) encapsulate(ctx context.Context) (*pinuv.Protocol, []byte, key.Key, error) {
	protocol, err := pinuv.New(e.protocol)
	if err != nil {
		return nil, nil, nil, err
	}

	peerKey, err := e.GetKeyAgreement(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(peerKey)
	if err != nil {
		return nil, nil, nil, err
	}

	return protocol, sharedSecret, platformCoseKey, nil
}

func (e *Engine) clientPIN(ctx context.Context, req *clientPINRequest) (*clientPINResponse, error) {
	data, err := e.roundTrip(ctx, CommandClientPIN, req)
	if err != nil {
		return nil, err
	}

	var resp *clientPINResponse
	if len(data) > 0 {
		if err := cbor.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("cannot unmarshal ClientPIN CBOR response: %w", err)
		}
	}
	if resp == nil {
		resp = &clientPINResponse{}
	}

	return resp, nil
}

func validatePIN(pin string) error {
	n := utf8.RuneCountInString(pin)
	if n < minPINLength || n > maxPINLength {
		return &fidoerr.InvalidParametersError{
			Reason: fmt.Sprintf("PIN must be %d to %d characters, got %d", minPINLength, maxPINLength, n),
		}
	}
	if len(pin) > pinPadLength-1 {
		return &fidoerr.InvalidParametersError{Reason: "PIN exceeds 63 bytes"}
	}
	return nil
}

// padPIN zero-pads the PIN to the fixed ciphertext block the device
// expects, hiding its length on the wire.
func padPIN(pin string) []byte {
	padded := make([]byte, pinPadLength)
	copy(padded, pin)
	return padded
}

// pinHash is the left half of sha256(pin), the only form the PIN ever
// leaves the platform in after initial enrollment.
func pinHash(pin string) []byte {
	sum := sha256.Sum256([]byte(pin))
	return sum[:16]
}
