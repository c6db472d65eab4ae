package pinuv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// Protocol one: SHA-256 KDF, AES-256-CBC with a zero IV, and the first
// 16 bytes of HMAC-SHA-256 as the authentication parameter.

func kdfOne(z []byte) []byte {
	hash := sha256.Sum256(z)
	return hash[:]
}

func encryptOne(sharedSecret, plaintext []byte) ([]byte, error) {
	if len(sharedSecret) != 32 {
		return nil, errors.New("pinuv: invalid shared secret length")
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, errors.New("pinuv: plaintext is not block aligned")
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return ciphertext, nil
}

func decryptOne(sharedSecret, ciphertext []byte) ([]byte, error) {
	if len(sharedSecret) != 32 {
		return nil, errors.New("pinuv: invalid shared secret length")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("pinuv: ciphertext is not block aligned")
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return plaintext, nil
}

func authenticateOne(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)[:16]
}
