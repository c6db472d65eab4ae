// Package pinuv implements the CTAP2 PIN/UV auth protocols (one and
// two): ECDH P-256 key agreement with the authenticator's COSE_Key,
// shared-secret derivation, AES-CBC encryption of PIN material, and
// HMAC-based request authentication.
package pinuv

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/go-ctap/fido2/pkg/fidotypes"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	coseecdh "github.com/ldclabs/cose/key/ecdh"
)

var ErrInvalidAuthProtocol = errors.New("pinuv: invalid PIN/UV auth protocol")

// Protocol holds the platform-side ephemeral key pair for one PIN/UV
// key agreement, bound to a protocol version.
type Protocol struct {
	Number             fidotypes.PinUvAuthProtocol
	platformPrivateKey *ecdh.PrivateKey
	platformCoseKey    key.Key
}

// New generates a fresh platform P-256 key pair for the given protocol
// version.
func New(number fidotypes.PinUvAuthProtocol) (*Protocol, error) {
	if number != fidotypes.PinUvAuthProtocolOne && number != fidotypes.PinUvAuthProtocolTwo {
		return nil, ErrInvalidAuthProtocol
	}

	platformPrivkey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cannot generate platform P-256 keypair: %w", err)
	}

	platformPubkey, err := coseecdh.KeyFromPublic(platformPrivkey.Public().(*ecdh.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("cannot convert platform public key to COSE_Key: %w", err)
	}
	if err := platformPubkey.Set(iana.KeyParameterAlg, -25); err != nil {
		return nil, fmt.Errorf("cannot set alg parameter for COSE_Key: %w", err)
	}

	// COSE_Key must contain only the required parameters; some
	// authenticators reject extras (e.g. SoloKeys Solo 2).
	delete(platformPubkey, iana.KeyParameterKid)

	return &Protocol{
		Number:             number,
		platformPrivateKey: platformPrivkey,
		platformCoseKey:    platformPubkey,
	}, nil
}

// Encapsulate derives the shared secret with the authenticator's key
// agreement key and returns the platform COSE_Key to send along.
func (p *Protocol) Encapsulate(peerCoseKey key.Key) (key.Key, []byte, error) {
	peerPubkey, err := coseecdh.KeyToPublic(peerCoseKey)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot convert peer public key: %w", err)
	}

	z, err := p.platformPrivateKey.ECDH(peerPubkey)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot derive shared secret: %w", err)
	}

	sharedSecret, err := p.KDF(z)
	if err != nil {
		return nil, nil, err
	}

	return p.platformCoseKey, sharedSecret, nil
}

// KDF derives the shared secret from the raw ECDH output.
func (p *Protocol) KDF(z []byte) ([]byte, error) {
	switch p.Number {
	case fidotypes.PinUvAuthProtocolOne:
		return kdfOne(z), nil
	case fidotypes.PinUvAuthProtocolTwo:
		return kdfTwo(z)
	default:
		return nil, ErrInvalidAuthProtocol
	}
}

// Encrypt encrypts PIN material under the shared secret.
func (p *Protocol) Encrypt(sharedSecret, plaintext []byte) ([]byte, error) {
	switch p.Number {
	case fidotypes.PinUvAuthProtocolOne:
		return encryptOne(sharedSecret, plaintext)
	case fidotypes.PinUvAuthProtocolTwo:
		return encryptTwo(sharedSecret, plaintext)
	default:
		return nil, ErrInvalidAuthProtocol
	}
}

// Decrypt reverses Encrypt; used for the pinUvAuthToken the
// authenticator returns.
func (p *Protocol) Decrypt(sharedSecret, ciphertext []byte) ([]byte, error) {
	switch p.Number {
	case fidotypes.PinUvAuthProtocolOne:
		return decryptOne(sharedSecret, ciphertext)
	case fidotypes.PinUvAuthProtocolTwo:
		return decryptTwo(sharedSecret, ciphertext)
	default:
		return nil, ErrInvalidAuthProtocol
	}
}

// Authenticate computes the pinUvAuthParam over a message using either a
// shared secret or an already-decrypted pinUvAuthToken as the key.
func Authenticate(number fidotypes.PinUvAuthProtocol, secret, message []byte) ([]byte, error) {
	switch number {
	case fidotypes.PinUvAuthProtocolOne:
		return authenticateOne(secret, message), nil
	case fidotypes.PinUvAuthProtocolTwo:
		return authenticateTwo(secret, message), nil
	default:
		return nil, ErrInvalidAuthProtocol
	}
}
