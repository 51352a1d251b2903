package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"ykval/otp"
)

var (
	errNotConfigured   = errors.New("no decryption source configured")
	errLookupExhausted = errors.New("all lookup endpoints failed")
)

// Decryptor resolves an OTP into its decoded fields (hex-encoded values for
// counter, low, high and use). Implementations may decrypt locally or call
// out to a key storage service.
type Decryptor interface {
	Decrypt(ctx context.Context, otpString string) (map[string]string, error)
}

// KeystoreDecryptor decrypts OTPs with AES keys held in the local aes_key
// table.
type KeystoreDecryptor struct {
	db *sql.DB
}

func (d *KeystoreDecryptor) Decrypt(ctx context.Context, otpString string) (map[string]string, error) {
	publicName, cipher, err := otp.Split(otpString)
	if err != nil {
		return nil, err
	}
	keyHex, err := getAESKey(d.db, ctx, publicName)
	if err != nil {
		return nil, err
	}
	plainHex, err := otp.Decrypt(keyHex, cipher)
	if err != nil {
		return nil, err
	}
	block, err := hex.DecodeString(plainHex)
	if err != nil {
		return nil, err
	}
	if !otp.CheckCRC(block) {
		return nil, otp.ErrChecksum
	}
	token, err := otp.ExtractToken(block)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"counter": fmt.Sprintf("%04x", token.Counter),
		"low":     fmt.Sprintf("%04x", token.TimestampLow),
		"high":    fmt.Sprintf("%02x", token.TimestampHigh),
		"use":     fmt.Sprintf("%02x", token.Use),
	}, nil
}

// decryptOTP resolves an OTP into integer fields. A configured local
// decryptor takes precedence; otherwise the remote endpoints are tried in
// configured order and the first response starting with OK wins.
func decryptOTP(env *Environment, ctx context.Context, otpString string) (map[string]int64, error) {
	if env.decryptor != nil {
		data, err := env.decryptor.Decrypt(ctx, otpString)
		if err != nil {
			return nil, err
		}
		return coerceHexFields(data)
	}
	if len(env.config.KSMURLs) == 0 {
		logrus.Error("No decryption service configured, cannot decrypt OTP")
		return nil, errNotConfigured
	}
	for _, ksmURL := range env.config.KSMURLs {
		body, err := fetchKSM(env, ctx, ksmURL, otpString)
		if err != nil {
			logrus.WithError(err).WithField("url", ksmURL).Warn("Key storage lookup failed")
			continue
		}
		logrus.WithFields(logrus.Fields{"url": ksmURL, "response": body}).Debug("Key storage response")
		if !strings.HasPrefix(body, "OK") {
			continue
		}
		data := map[string]string{}
		for _, pair := range strings.Fields(body)[1:] {
			name, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			data[name] = value
		}
		return coerceHexFields(data)
	}
	return nil, errLookupExhausted
}

func fetchKSM(env *Environment, ctx context.Context, ksmURL string, otpString string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ksmURL, nil)
	if err != nil {
		return "", err
	}
	query := req.URL.Query()
	query.Set("otp", otpString)
	req.URL.RawQuery = query.Encode()
	resp, err := env.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func coerceHexFields(data map[string]string) (map[string]int64, error) {
	fields := make(map[string]int64, len(data))
	for name, value := range data {
		n, err := strconv.ParseInt(value, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s is not hex: %w", name, err)
		}
		fields[name] = n
	}
	return fields, nil
}

// handleDecryptRequest serves the key-storage wire contract consumed by
// decryptOTP's remote path, backed by the local keystore.
func handleDecryptRequest(env *Environment, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain")
	if env.decryptor == nil {
		w.Write([]byte("ERR Backend failure\n"))
		return
	}
	otpString := strings.TrimSpace(r.URL.Query().Get("otp"))
	if otpString == "" {
		w.Write([]byte("ERR No OTP provided\n"))
		return
	}
	data, err := env.decryptor.Decrypt(r.Context(), otpString)
	if errors.Is(err, ErrRecordNotFound) {
		w.Write([]byte("ERR Unknown yubikey\n"))
		return
	}
	if errors.Is(err, otp.ErrChecksum) {
		w.Write([]byte("ERR Corrupt OTP\n"))
		return
	}
	if errors.Is(err, otp.ErrInvalidEncoding) || errors.Is(err, otp.ErrMalformedOTP) || errors.Is(err, otp.ErrDecryption) {
		w.Write([]byte("ERR Invalid OTP\n"))
		return
	}
	if err != nil {
		logrus.WithError(err).Error("Decrypt request failed")
		w.Write([]byte("ERR Backend failure\n"))
		return
	}
	w.Write([]byte(fmt.Sprintf("OK counter=%s low=%s high=%s use=%s\n", data["counter"], data["low"], data["high"], data["use"])))
}
