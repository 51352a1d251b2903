package otp

import (
	"errors"
	"strings"
)

// Modhex is the keyboard-layout-independent alphabet hardware tokens emit.
// Each symbol maps to the hex digit at the same position.
const modhexAlphabet = "cbdefghijklnrtuv"
const hexAlphabet = "0123456789abcdef"

var ErrInvalidEncoding = errors.New("otp: invalid modhex encoding")

// DecodeModhex translates a modhex string into the equivalent lowercase hex
// string, character for character.
func DecodeModhex(modhex string) (string, error) {
	var b strings.Builder
	b.Grow(len(modhex))
	for i := 0; i < len(modhex); i++ {
		j := strings.IndexByte(modhexAlphabet, modhex[i])
		if j < 0 {
			return "", ErrInvalidEncoding
		}
		b.WriteByte(hexAlphabet[j])
	}
	return b.String(), nil
}

// EncodeModhex is the inverse of DecodeModhex. It accepts lowercase hex only.
func EncodeModhex(hexText string) (string, error) {
	var b strings.Builder
	b.Grow(len(hexText))
	for i := 0; i < len(hexText); i++ {
		j := strings.IndexByte(hexAlphabet, hexText[i])
		if j < 0 {
			return "", ErrInvalidEncoding
		}
		b.WriteByte(modhexAlphabet[j])
	}
	return b.String(), nil
}

// IsModhex reports whether every character of s is part of the modhex
// alphabet.
func IsModhex(s string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(modhexAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
