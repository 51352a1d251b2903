package main

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ykval/wsapi"
)

const testAESKeyHex = "abcdef0123456789abcdef0123456789"
const testPublicName = "ccccccreuvic"

func provisionTestYubikey(t *testing.T, db *sql.DB, publicName string) {
	err := insertAESKey(db, context.Background(), publicName, testAESKeyHex)
	assert.NoError(t, err)
	now := time.Unix(time.Now().Unix(), 0)
	err = insertYubikey(db, context.Background(), &Yubikey{
		PublicName: publicName,
		CreatedAt:  now,
		ModifiedAt: now,
		Active:     true,
		Counter:    -1,
		Use:        -1,
		Low:        -1,
		High:       -1,
	})
	assert.NoError(t, err)
}

func verifyRequest(t *testing.T, app http.Handler, params url.Values) map[string]string {
	req := httptest.NewRequest("GET", "/wsapi/2.0/verify?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	return parseResponseBody(rec.Body.String())
}

func TestVerify(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	client, err := createClient(db, context.Background())
	assert.NoError(t, err)
	provisionTestYubikey(t, db, testPublicName)

	otpString := encryptToken(t, testPublicName, testAESKeyHex, 5, 0xa8c2, 0x00, 1)
	params := url.Values{}
	params.Set("id", strconv.FormatInt(client.ID, 10))
	params.Set("otp", otpString)
	params.Set("nonce", "fe36a3b9c57f")

	fields := verifyRequest(t, app, params)
	assert.Equal(t, "OK", fields["status"])
	assert.Equal(t, otpString, fields["otp"])
	assert.Equal(t, "fe36a3b9c57f", fields["nonce"])

	// The response must be signed with the client key.
	signature := fields["h"]
	signed := map[string]string{}
	for name, value := range fields {
		if name != "h" {
			signed[name] = value
		}
	}
	assert.True(t, wsapi.Verify(signed, signature, client.Secret))

	// Same OTP and nonce: idempotent resubmission.
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "REPLAYED_REQUEST", fields["status"])

	// Same OTP, new nonce: replay.
	params.Set("nonce", "0123456789ab")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "REPLAYED_OTP", fields["status"])

	// A token generated later on the same session is accepted.
	params.Set("otp", encryptToken(t, testPublicName, testAESKeyHex, 5, 0xa9ff, 0x00, 2))
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "OK", fields["status"])

	// A token from an earlier power cycle is a replay even with a higher use.
	params.Set("otp", encryptToken(t, testPublicName, testAESKeyHex, 4, 0xa9ff, 0x00, 200))
	params.Set("nonce", "00000000aaaa")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "REPLAYED_OTP", fields["status"])
}

func TestVerifyMissingParameter(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	params := url.Values{}
	params.Set("otp", "ccccccreuvicjjjjjjjjjjjjjjjjjjjjjjjjjjjjjjjj")
	fields := verifyRequest(t, app, params)
	assert.Equal(t, "MISSING_PARAMETER", fields["status"])
}

func TestVerifyNoSuchClient(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	params := url.Values{}
	params.Set("id", "99")
	params.Set("otp", "ccccccreuvicjjjjjjjjjjjjjjjjjjjjjjjjjjjjjjjj")
	params.Set("nonce", "fe36a3b9c57f")
	fields := verifyRequest(t, app, params)
	assert.Equal(t, "NO_SUCH_CLIENT", fields["status"])

	params.Set("id", "not-a-number")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "NO_SUCH_CLIENT", fields["status"])
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	client, err := createClient(db, context.Background())
	assert.NoError(t, err)
	provisionTestYubikey(t, db, testPublicName)

	otpString := encryptToken(t, testPublicName, testAESKeyHex, 1, 0x0001, 0x00, 1)
	request := map[string]string{
		"id":    strconv.FormatInt(client.ID, 10),
		"otp":   otpString,
		"nonce": "fe36a3b9c57f",
	}

	params := url.Values{}
	for name, value := range request {
		params.Set(name, value)
	}
	params.Set("h", "AAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	fields := verifyRequest(t, app, params)
	assert.Equal(t, "BAD_SIGNATURE", fields["status"])

	params.Set("h", wsapi.Sign(request, client.Secret))
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "OK", fields["status"])
}

func TestVerifyBadOTP(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	client, err := createClient(db, context.Background())
	assert.NoError(t, err)
	provisionTestYubikey(t, db, testPublicName)

	params := url.Values{}
	params.Set("id", strconv.FormatInt(client.ID, 10))
	params.Set("nonce", "fe36a3b9c57f")

	// Wrong ciphertext decrypts to a block that fails the CRC check.
	params.Set("otp", testPublicName+"jjjjjjjjjjjjjjjjjjjjjjjjjjjjjjjj")
	fields := verifyRequest(t, app, params)
	assert.Equal(t, "BAD_OTP", fields["status"])

	// Unknown device.
	params.Set("otp", encryptToken(t, "cccccccccccb", testAESKeyHex, 1, 0x0001, 0x00, 1))
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "BAD_OTP", fields["status"])

	// Not even modhex.
	params.Set("otp", "xxxx")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "BAD_OTP", fields["status"])
}

func TestVerifyTimestampFields(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	client, err := createClient(db, context.Background())
	assert.NoError(t, err)
	provisionTestYubikey(t, db, testPublicName)

	params := url.Values{}
	params.Set("id", strconv.FormatInt(client.ID, 10))
	params.Set("otp", encryptToken(t, testPublicName, testAESKeyHex, 3, 0xa8c2, 0x01, 7))
	params.Set("nonce", "fe36a3b9c57f")
	params.Set("timestamp", "1")

	fields := verifyRequest(t, app, params)
	assert.Equal(t, "OK", fields["status"])
	assert.Equal(t, strconv.Itoa(0x01<<16|0xa8c2), fields["timestamp"])
	assert.Equal(t, "3", fields["sessioncounter"])
	assert.Equal(t, "7", fields["sessionuse"])
}

func TestVerifyInvalidSyncLevel(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	client, err := createClient(db, context.Background())
	assert.NoError(t, err)
	provisionTestYubikey(t, db, testPublicName)

	otpString := encryptToken(t, testPublicName, testAESKeyHex, 1, 0x0001, 0x00, 1)
	params := url.Values{}
	params.Set("id", strconv.FormatInt(client.ID, 10))
	params.Set("otp", otpString)
	params.Set("nonce", "fe36a3b9c57f")

	// A malformed sl rejects the request without burning the OTP: the same
	// token must still validate on the corrected retry.
	params.Set("sl", "notanumber")
	fields := verifyRequest(t, app, params)
	assert.Equal(t, "MISSING_PARAMETER", fields["status"])

	params.Del("sl")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "OK", fields["status"])
	assert.Equal(t, "60", fields["sl"])

	// Out of range is rejected the same way.
	params.Set("otp", encryptToken(t, testPublicName, testAESKeyHex, 1, 0x0002, 0x00, 2))
	params.Set("sl", "101")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "MISSING_PARAMETER", fields["status"])

	params.Del("sl")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "OK", fields["status"])

	// Zero is a valid sync level.
	params.Set("otp", encryptToken(t, testPublicName, testAESKeyHex, 1, 0x0003, 0x00, 3))
	params.Set("sl", "0")
	fields = verifyRequest(t, app, params)
	assert.Equal(t, "OK", fields["status"])
	assert.Equal(t, "0", fields["sl"])
}

func TestVerifyBadSignatureLockout(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	client, err := createClient(db, context.Background())
	assert.NoError(t, err)
	provisionTestYubikey(t, db, testPublicName)

	otpString := encryptToken(t, testPublicName, testAESKeyHex, 1, 0x0001, 0x00, 1)
	request := map[string]string{
		"id":    strconv.FormatInt(client.ID, 10),
		"otp":   otpString,
		"nonce": "fe36a3b9c57f",
	}
	params := url.Values{}
	for name, value := range request {
		params.Set(name, value)
	}

	params.Set("h", "AAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	for i := 0; i < 10; i++ {
		fields := verifyRequest(t, app, params)
		assert.Equal(t, "BAD_SIGNATURE", fields["status"])
	}

	// The strikes are used up: even a correctly signed request is refused
	// until the lockout is cleared.
	params.Set("h", wsapi.Sign(request, client.Secret))
	fields := verifyRequest(t, app, params)
	assert.Equal(t, "BAD_SIGNATURE", fields["status"])
}

func TestVerifyInactiveClient(t *testing.T) {
	t.Parallel()

	db := initializeTestDB(t)
	defer db.Close()
	env := createTestEnvironment(db, &Config{LocalKeystore: true})
	app := CreateApp(env)

	client, err := createClient(db, context.Background())
	assert.NoError(t, err)
	_, err = db.Exec("UPDATE client SET active = 0 WHERE id = ?", client.ID)
	assert.NoError(t, err)
	provisionTestYubikey(t, db, testPublicName)

	params := url.Values{}
	params.Set("id", strconv.FormatInt(client.ID, 10))
	params.Set("otp", encryptToken(t, testPublicName, testAESKeyHex, 1, 0x0001, 0x00, 1))
	params.Set("nonce", "fe36a3b9c57f")
	fields := verifyRequest(t, app, params)
	assert.Equal(t, "NO_SUCH_CLIENT", fields["status"])
}
