package main

import (
	"crypto/aes"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ykval/otp"
	"ykval/ratelimit"
)

func initializeTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// Each connection gets its own in-memory database.
	db.SetMaxOpenConns(1)
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		t.Fatal(err)
	}
	return db
}

func createTestEnvironment(db *sql.DB, config *Config) *Environment {
	env := &Environment{
		db:     db,
		config: config,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		verifyIPRateLimit: ratelimit.NewTokenBucketRateLimit(1000, time.Second),
		badSignatureLimit: ratelimit.NewLimitCounter(10),
	}
	if config.LocalKeystore {
		env.decryptor = &KeystoreDecryptor{db: db}
	}
	return env
}

// encryptToken builds a complete OTP string: a 16-byte block with a valid
// CRC, encrypted with key and rendered as publicName + modhex ciphertext.
func encryptToken(t *testing.T, publicName string, keyHex string, counter uint16, low uint16, high uint8, use uint8) string {
	key, err := hex.DecodeString(keyHex)
	assert.NoError(t, err)

	block := make([]byte, 16)
	copy(block, []byte{0x87, 0x92, 0xeb, 0xfe, 0x26, 0xcc})
	binary.LittleEndian.PutUint16(block[6:], counter)
	binary.LittleEndian.PutUint16(block[8:], low)
	block[10] = high
	block[11] = use
	binary.LittleEndian.PutUint16(block[12:], 0x1f2c)
	crc := otp.CalculateCRC(block[:14])
	binary.LittleEndian.PutUint16(block[14:], ^crc)

	cipher, err := aes.NewCipher(key)
	assert.NoError(t, err)
	encrypted := make([]byte, 16)
	cipher.Encrypt(encrypted, block)

	cipherModhex, err := otp.EncodeModhex(hex.EncodeToString(encrypted))
	assert.NoError(t, err)
	return publicName + cipherModhex
}

// parseResponseBody maps the CRLF lines of a signed response back onto their
// fields.
func parseResponseBody(body string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(body, "\r\n") {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[name] = value
	}
	return fields
}
