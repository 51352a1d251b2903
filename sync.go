package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"ykval/otp"
	"ykval/wsapi"
)

// handleSyncRequest serves a pool peer pushing its view of a device's replay
// state. The local state is advanced when the peer is ahead; the response
// always carries the local view from before the update so the peer can tell
// whether it was behind.
func handleSyncRequest(env *Environment, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	poolKey := env.config.syncPoolKeyBytes()
	query := r.URL.Query()

	if poolKey != nil {
		signature := query.Get("h")
		fields := map[string]string{}
		for name := range query {
			if name == "h" {
				continue
			}
			fields[name] = query.Get(name)
		}
		if signature == "" || !wsapi.Verify(fields, signature, poolKey) {
			writeSignedResponse(w, poolKey, statusBadSignature, nil)
			return
		}
	}

	params := wsapi.ParseQueryString(r.URL.RawQuery)
	publicName, _ := params["yk_publicname"].(string)
	counter, counterOK := syncParamInt(params, "yk_counter")
	use, useOK := syncParamInt(params, "yk_use")
	low, lowOK := syncParamInt(params, "yk_low")
	high, highOK := syncParamInt(params, "yk_high")
	nonce, _ := params["nonce"].(string)
	if publicName == "" || !otp.IsModhex(publicName) || !counterOK || !useOK || !lowOK || !highOK || nonce == "" {
		writeSignedResponse(w, poolKey, statusMissingParameter, nil)
		return
	}
	remote := otp.Counters{Counter: counter, Use: use}

	local, err := getYubikey(env.db, r.Context(), publicName)
	if errors.Is(err, ErrRecordNotFound) {
		now := time.Unix(time.Now().Unix(), 0)
		yubikey := Yubikey{
			PublicName: publicName,
			CreatedAt:  now,
			ModifiedAt: now,
			Active:     true,
			Counter:    counter,
			Use:        use,
			Low:        low,
			High:       high,
			Nonce:      nonce,
		}
		err = insertYubikey(env.db, r.Context(), &yubikey)
		if err != nil {
			logrus.WithError(err).Error("Failed to insert yubikey state from sync")
			writeSignedResponse(w, poolKey, statusBackendError, nil)
			return
		}
		// The device was unknown here; answer with the sentinel view.
		writeSyncResponse(w, poolKey, publicName, -1, otp.Counters{Counter: -1, Use: -1}, -1, -1, nonce)
		return
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to load yubikey state for sync")
		writeSignedResponse(w, poolKey, statusBackendError, nil)
		return
	}

	if remote.Gt(local.Counters()) {
		err = updateYubikeyState(env.db, r.Context(), publicName, remote, low, high, nonce)
		if err != nil {
			logrus.WithError(err).Error("Failed to update yubikey state from sync")
			writeSignedResponse(w, poolKey, statusBackendError, nil)
			return
		}
	}

	localNonce := local.Nonce
	if localNonce == "" {
		localNonce = nonce
	}
	writeSyncResponse(w, poolKey, publicName, local.ModifiedAt.Unix(), local.Counters(), local.Low, local.High, localNonce)
}

func writeSyncResponse(w http.ResponseWriter, poolKey []byte, publicName string, modified int64, counters otp.Counters, low int64, high int64, nonce string) {
	extra := []wsapi.Field{
		{Name: "modified", Value: strconv.FormatInt(modified, 10)},
		{Name: "yk_publicname", Value: publicName},
		{Name: "yk_counter", Value: strconv.FormatInt(counters.Counter, 10)},
		{Name: "yk_use", Value: strconv.FormatInt(counters.Use, 10)},
		{Name: "yk_high", Value: strconv.FormatInt(high, 10)},
		{Name: "yk_low", Value: strconv.FormatInt(low, 10)},
		{Name: "nonce", Value: nonce},
	}
	writeSignedResponse(w, poolKey, statusOK, extra)
}

// syncWithPool pushes a freshly accepted OTP's counters to the configured
// peers, one at a time in configured order, and evaluates their answers. A
// peer that is already ahead of the submitted token means the OTP was
// accepted elsewhere.
func syncWithPool(env *Environment, ctx context.Context, publicName string, submitted otp.Counters, low int64, high int64, nonce string, syncLevel int) string {
	pool := env.config.SyncPool
	requiredAnswers := (len(pool)*syncLevel + 99) / 100
	answers := 0
	for _, peerURL := range pool {
		record, err := syncRequest(env, ctx, peerURL, publicName, submitted, low, high, nonce)
		if err != nil {
			logrus.WithError(err).WithField("peer", peerURL).Warn("Sync request failed")
			continue
		}
		if status, _ := record["status"].(string); status != statusOK {
			logrus.WithFields(logrus.Fields{"peer": peerURL, "status": record["status"]}).Warn("Peer rejected sync request")
			continue
		}
		answers++
		remote, ok := syncRecordCounters(record)
		if !ok {
			continue
		}
		remoteNonce, _ := record["nonce"].(string)
		if remote.Gt(submitted) || (remote.Eq(submitted) && remoteNonce != nonce) {
			logrus.WithFields(logrus.Fields{
				"peer":        peerURL,
				"public_name": publicName,
			}).Info("Peer reports newer state, OTP replayed")
			return statusReplayedOTP
		}
	}
	if answers < requiredAnswers {
		logrus.WithFields(logrus.Fields{
			"answers":  answers,
			"required": requiredAnswers,
		}).Warn("Not enough sync answers")
		return statusNotEnoughAnswers
	}
	return statusOK
}

func syncRequest(env *Environment, ctx context.Context, peerURL string, publicName string, submitted otp.Counters, low int64, high int64, nonce string) (map[string]any, error) {
	fields := map[string]string{
		"modified":      strconv.FormatInt(time.Now().Unix(), 10),
		"yk_publicname": publicName,
		"yk_counter":    strconv.FormatInt(submitted.Counter, 10),
		"yk_use":        strconv.FormatInt(submitted.Use, 10),
		"yk_high":       strconv.FormatInt(high, 10),
		"yk_low":        strconv.FormatInt(low, 10),
		"nonce":         nonce,
	}
	poolKey := env.config.syncPoolKeyBytes()

	req, err := http.NewRequestWithContext(ctx, "GET", peerURL, nil)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	for name, value := range fields {
		query.Set(name, value)
	}
	if poolKey != nil {
		query.Set("h", wsapi.Sign(fields, poolKey))
	}
	req.URL.RawQuery = query.Encode()

	resp, err := env.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	body := string(raw)
	logrus.WithFields(logrus.Fields{"peer": peerURL, "response": body}).Debug("Sync response")

	if poolKey != nil && !verifySyncResponseSignature(body, poolKey) {
		return nil, errors.New("bad sync response signature")
	}
	return wsapi.ParseSyncResponse(body), nil
}

// verifySyncResponseSignature checks the h line of a peer response against
// the raw (uncoerced) values of every other line.
func verifySyncResponseSignature(body string, poolKey []byte) bool {
	fields := map[string]string{}
	signature := ""
	for _, line := range strings.Split(body, "\r\n") {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if name == "h" {
			signature = value
			continue
		}
		fields[name] = value
	}
	if signature == "" {
		return false
	}
	return wsapi.Verify(fields, signature, poolKey)
}

func syncRecordCounters(record map[string]any) (otp.Counters, bool) {
	counter, counterOK := syncParamInt(record, "yk_counter")
	use, useOK := syncParamInt(record, "yk_use")
	if !counterOK || !useOK {
		return otp.Counters{}, false
	}
	return otp.Counters{Counter: counter, Use: use}, true
}

// syncParamInt reads an integer field from a parsed query or sync record,
// accepting the uncoerced -1 sentinel string.
func syncParamInt(params map[string]any, name string) (int64, bool) {
	switch value := params[name].(type) {
	case int64:
		return value, true
	case string:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
