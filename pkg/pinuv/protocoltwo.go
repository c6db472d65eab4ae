package pinuv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"slices"

	"golang.org/x/crypto/hkdf"
)

// Protocol two: HKDF-derived HMAC and AES keys (64-byte shared secret),
// AES-256-CBC with a random IV prepended to the ciphertext, and a full
// 32-byte HMAC-SHA-256 authentication parameter.

func kdfTwo(z []byte) ([]byte, error) {
	salt := make([]byte, 32)

	hmacKey := make([]byte, 32)
	if _, err := io.ReadFull(
		hkdf.New(sha256.New, z, salt, []byte("CTAP2 HMAC key")),
		hmacKey,
	); err != nil {
		return nil, fmt.Errorf("deriving CTAP2 HMAC key failed: %w", err)
	}

	aesKey := make([]byte, 32)
	if _, err := io.ReadFull(
		hkdf.New(sha256.New, z, salt, []byte("CTAP2 AES key")),
		aesKey,
	); err != nil {
		return nil, fmt.Errorf("deriving CTAP2 AES key failed: %w", err)
	}

	return slices.Concat(hmacKey, aesKey), nil
}

func encryptTwo(sharedSecret, plaintext []byte) ([]byte, error) {
	if len(sharedSecret) != 64 {
		return nil, errors.New("pinuv: invalid shared secret length")
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, errors.New("pinuv: plaintext is not block aligned")
	}

	// The second half of the shared secret is the AES key.
	block, err := aes.NewCipher(sharedSecret[32:])
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("cannot generate random IV: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return slices.Concat(iv, ciphertext), nil
}

func decryptTwo(sharedSecret, ciphertext []byte) ([]byte, error) {
	if len(sharedSecret) != 64 {
		return nil, errors.New("pinuv: invalid shared secret length")
	}
	if len(ciphertext) <= aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("pinuv: invalid ciphertext")
	}

	block, err := aes.NewCipher(sharedSecret[32:])
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	body := ciphertext[aes.BlockSize:]
	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, body)

	return plaintext, nil
}

func authenticateTwo(secret, message []byte) []byte {
	// The first 32 bytes select the HMAC key; a pinUvAuthToken is
	// already exactly 32 bytes.
	key := secret
	if len(key) > 32 {
		key = key[:32]
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
