package otp

import (
	"encoding/binary"
	"errors"
)

const (
	// UIDSize is the length of the private identity inside the block.
	UIDSize = 6
	// CipherLength is the modhex length of the encrypted part of an OTP.
	CipherLength = 32
	// MaxPublicNameLength is the longest allowed public identity prefix.
	MaxPublicNameLength = 16
)

var ErrMalformedOTP = errors.New("otp: malformed otp string")

// Token is the decrypted 16-byte block mapped onto its named fields.
type Token struct {
	// UID is the private device identity.
	UID [UIDSize]byte
	// Counter increments each time the device powers up.
	Counter uint16
	// TimestampLow and TimestampHigh form a 24-bit internal clock value.
	TimestampLow  uint16
	TimestampHigh uint8
	// Use increments per generated token within a session and resets on
	// power-up.
	Use uint8
	// Random is device-supplied entropy.
	Random uint16
	// CRC is the residue bytes as stored in the block.
	CRC uint16
}

// ExtractToken maps a decrypted 16-byte block onto a Token. It performs no
// validation beyond the length check; run CheckCRC before trusting fields.
func ExtractToken(block []byte) (Token, error) {
	if len(block) != BlockSize {
		return Token{}, ErrDecryption
	}
	var token Token
	copy(token.UID[:], block[:UIDSize])
	token.Counter = binary.LittleEndian.Uint16(block[6:])
	token.TimestampLow = binary.LittleEndian.Uint16(block[8:])
	token.TimestampHigh = block[10]
	token.Use = block[11]
	token.Random = binary.LittleEndian.Uint16(block[12:])
	token.CRC = binary.LittleEndian.Uint16(block[14:])
	return token, nil
}

// Split separates an OTP string into its public identity prefix and the
// 32-character encrypted part. The prefix may be empty.
func Split(otpString string) (string, string, error) {
	if len(otpString) < CipherLength {
		return "", "", ErrMalformedOTP
	}
	canary := len(otpString) - CipherLength
	publicName := otpString[:canary]
	cipher := otpString[canary:]
	if len(publicName) > MaxPublicNameLength {
		return "", "", ErrMalformedOTP
	}
	if !IsModhex(publicName) || !IsModhex(cipher) {
		return "", "", ErrInvalidEncoding
	}
	return publicName, cipher, nil
}
