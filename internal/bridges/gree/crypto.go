package gree

import (
	"crypto/aes"
	"encoding/base64"
	"errors"
)

// GenericKey is the well-known key that every unit accepts before bind, and
// that some firmware keeps using when bind returns no key of its own.
// Anyone on the LAN who knows it can talk to such units.
const GenericKey = "a3K8Bx%2r8Y7#xDh"

// keySize is the AES-128 key length in bytes.
const keySize = 16

var (
	errBadPadding = errors.New("invalid padding")
	errBadLength  = errors.New("ciphertext is not a multiple of the block size")
)

// Encrypt pads plaintext with PKCS#7, encrypts it block by block with
// AES-128 in ECB mode and returns the base64 encoding.
//
// ECB is what the hardware speaks. It leaks equal-block patterns and has no
// integrity check; changing it breaks compatibility with real units.
func Encrypt(plaintext []byte, key string) (string, error) {
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	for bs := 0; bs < len(padded); bs += block.BlockSize() {
		block.Encrypt(out[bs:bs+block.BlockSize()], padded[bs:bs+block.BlockSize()])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any failure (bad base64, length, or padding) is
// returned as a *CryptoError.
func Decrypt(ciphertext string, key string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}

	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		return nil, &CryptoError{Op: "decrypt", Err: errBadLength}
	}

	out := make([]byte, len(raw))
	for bs := 0; bs < len(raw); bs += block.BlockSize() {
		block.Decrypt(out[bs:bs+block.BlockSize()], raw[bs:bs+block.BlockSize()])
	}

	plain, err := pkcs7Unpad(out, block.BlockSize())
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}
	return plain, nil
}

// normalizeKey truncates or zero-pads key to 16 bytes.
func normalizeKey(key string) []byte {
	k := make([]byte, keySize)
	copy(k, key)
	return k
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadPadding
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-padding], nil
}
