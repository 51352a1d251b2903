package main

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"ykval/otp"
	"ykval/wsapi"
)

// handleVerifyRequest decides whether a submitted OTP is genuine and fresh.
// Every outcome is rendered as a signed status line; rejections carry no
// internal detail beyond their status code.
func handleVerifyRequest(env *Environment, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	clientIP := r.Header.Get("X-Client-IP")
	if clientIP == "" {
		clientIP, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	if clientIP != "" && !env.verifyIPRateLimit.Consume(clientIP) {
		logrus.WithField("client_ip", clientIP).Info("Verify rate limit exceeded")
		writeSignedResponse(w, nil, statusBackendError, nil)
		return
	}

	query := r.URL.Query()
	otpString := strings.TrimSpace(query.Get("otp"))
	nonce := query.Get("nonce")
	clientParam := query.Get("id")
	if otpString == "" || nonce == "" || clientParam == "" {
		writeVerifyResponse(w, nil, statusMissingParameter, otpString, nonce)
		return
	}

	clientID, err := strconv.ParseInt(clientParam, 10, 64)
	if err != nil {
		writeVerifyResponse(w, nil, statusNoSuchClient, otpString, nonce)
		return
	}
	client, err := getClient(env.db, r.Context(), clientID)
	if errors.Is(err, ErrRecordNotFound) {
		writeVerifyResponse(w, nil, statusNoSuchClient, otpString, nonce)
		return
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to load client")
		writeVerifyResponse(w, nil, statusBackendError, otpString, nonce)
		return
	}
	if !client.Active {
		writeVerifyResponse(w, nil, statusNoSuchClient, otpString, nonce)
		return
	}
	apiKey := client.Secret

	if signature := query.Get("h"); signature != "" {
		if env.badSignatureLimit.Exhausted(clientParam) {
			logrus.WithField("client_id", clientID).Warn("Client locked out after repeated bad signatures")
			writeVerifyResponse(w, apiKey, statusBadSignature, otpString, nonce)
			return
		}
		fields := map[string]string{}
		for name := range query {
			if name == "h" {
				continue
			}
			fields[name] = query.Get(name)
		}
		if !wsapi.Verify(fields, signature, apiKey) {
			if !env.badSignatureLimit.Consume(clientParam) {
				logrus.WithField("client_id", clientID).Warn("Repeated bad request signatures")
			}
			writeVerifyResponse(w, apiKey, statusBadSignature, otpString, nonce)
			return
		}
		env.badSignatureLimit.Delete(clientParam)
	}

	// All parameters must be valid before the replay state may move; a
	// rejected request must never burn the submitted OTP.
	syncLevel := env.config.defaultSyncLevel()
	if slParam := query.Get("sl"); slParam != "" {
		sl, err := strconv.Atoi(slParam)
		if err != nil || sl < 0 || sl > 100 {
			writeVerifyResponse(w, apiKey, statusMissingParameter, otpString, nonce)
			return
		}
		syncLevel = sl
	}

	publicName, _, err := otp.Split(otpString)
	if err != nil {
		writeVerifyResponse(w, apiKey, statusBadOTP, otpString, nonce)
		return
	}

	data, err := decryptOTP(env, r.Context(), otpString)
	if errors.Is(err, errNotConfigured) || errors.Is(err, errLookupExhausted) {
		logrus.WithError(err).Error("OTP decryption unavailable")
		writeVerifyResponse(w, apiKey, statusBackendError, otpString, nonce)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("public_name", publicName).Info("OTP rejected")
		writeVerifyResponse(w, apiKey, statusBadOTP, otpString, nonce)
		return
	}
	submitted := otp.Counters{Counter: data["counter"], Use: data["use"]}

	yubikey, err := getYubikey(env.db, r.Context(), publicName)
	if errors.Is(err, ErrRecordNotFound) {
		writeVerifyResponse(w, apiKey, statusBadOTP, otpString, nonce)
		return
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to load yubikey state")
		writeVerifyResponse(w, apiKey, statusBackendError, otpString, nonce)
		return
	}
	if !yubikey.Active {
		writeVerifyResponse(w, apiKey, statusBadOTP, otpString, nonce)
		return
	}

	if yubikey.Counters().Eq(submitted) && yubikey.Nonce == nonce {
		// The exact request was already answered once; idempotent resubmission.
		writeVerifyResponse(w, apiKey, statusReplayedRequest, otpString, nonce)
		return
	}
	if yubikey.Counters().Gte(submitted) {
		logrus.WithFields(logrus.Fields{
			"public_name": publicName,
			"stored":      yubikey.Counters(),
			"submitted":   submitted,
		}).Info("Replayed OTP")
		writeVerifyResponse(w, apiKey, statusReplayedOTP, otpString, nonce)
		return
	}

	err = updateYubikeyState(env.db, r.Context(), publicName, submitted, data["low"], data["high"], nonce)
	if err != nil {
		logrus.WithError(err).Error("Failed to update yubikey state")
		writeVerifyResponse(w, apiKey, statusBackendError, otpString, nonce)
		return
	}

	if len(env.config.SyncPool) > 0 {
		status := syncWithPool(env, r.Context(), publicName, submitted, data["low"], data["high"], nonce, syncLevel)
		if status != statusOK {
			writeVerifyResponse(w, apiKey, status, otpString, nonce)
			return
		}
	}

	extra := []wsapi.Field{
		{Name: "sl", Value: strconv.Itoa(syncLevel)},
	}
	if query.Get("timestamp") == "1" {
		internalTimestamp := data["high"]<<16 | data["low"]
		extra = append(extra,
			wsapi.Field{Name: "timestamp", Value: strconv.FormatInt(internalTimestamp, 10)},
			wsapi.Field{Name: "sessioncounter", Value: strconv.FormatInt(data["counter"], 10)},
			wsapi.Field{Name: "sessionuse", Value: strconv.FormatInt(data["use"], 10)},
		)
	}
	writeVerifyResponse(w, apiKey, statusOK, otpString, nonce, extra...)
}

// writeVerifyResponse echoes the otp and nonce back (when supplied) ahead of
// any additional fields, then renders the signed status response.
func writeVerifyResponse(w http.ResponseWriter, apiKey []byte, status string, otpString string, nonce string, extra ...wsapi.Field) {
	fields := []wsapi.Field{}
	if otpString != "" {
		fields = append(fields, wsapi.Field{Name: "otp", Value: otpString})
	}
	if nonce != "" {
		fields = append(fields, wsapi.Field{Name: "nonce", Value: nonce})
	}
	fields = append(fields, extra...)
	writeSignedResponse(w, apiKey, status, fields)
}
