package otp

import (
	"crypto/aes"
	"encoding/hex"
	"errors"
	"fmt"
)

// BlockSize is the size of an AES-128 key and of the encrypted token block.
const BlockSize = 16

var ErrDecryption = errors.New("otp: key or ciphertext has wrong length")

// DecryptBlock decrypts a single 16-byte block with AES-128. The protocol
// uses no chaining, so one raw block operation is the whole ciphertext.
func DecryptBlock(key []byte, block []byte) ([]byte, error) {
	if len(key) != BlockSize || len(block) != BlockSize {
		return nil, ErrDecryption
	}
	cipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, BlockSize)
	cipher.Decrypt(plain, block)
	return plain, nil
}

// Decrypt decodes a hex AES-128 key and a modhex ciphertext, decrypts the
// block and returns the plaintext as a lowercase hex string.
func Decrypt(keyHex string, cipherModhex string) (string, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("otp: malformed key: %w", err)
	}
	cipherHex, err := DecodeModhex(cipherModhex)
	if err != nil {
		return "", err
	}
	block, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", fmt.Errorf("otp: malformed ciphertext: %w", err)
	}
	plain, err := DecryptBlock(key, block)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(plain), nil
}
