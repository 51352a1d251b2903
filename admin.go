package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"ykval/argon2id"
	"ykval/otp"
)

// verifyAdminSecret checks the Authorization header against the argon2id
// hash from the configuration. Provisioning is disabled entirely when no
// hash is configured.
func verifyAdminSecret(env *Environment, r *http.Request) bool {
	if env.config.AdminSecretHash == "" {
		return false
	}
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return false
	}
	valid, err := argon2id.Verify(env.config.AdminSecretHash, authorization)
	if err != nil {
		logrus.WithError(err).Error("Failed to verify admin secret")
		return false
	}
	return valid
}

func handleCreateClientRequest(env *Environment, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !verifyAdminSecret(env, r) {
		w.WriteHeader(401)
		return
	}
	client, err := createClient(env.db, r.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to create client")
		w.WriteHeader(500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	w.Write([]byte(client.EncodeToJSON()))
}

func handleGetClientRequest(env *Environment, w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if !verifyAdminSecret(env, r) {
		w.WriteHeader(401)
		return
	}
	clientID, err := strconv.ParseInt(params.ByName("client_id"), 10, 64)
	if err != nil {
		w.WriteHeader(404)
		return
	}
	client, err := getClient(env.db, r.Context(), clientID)
	if errors.Is(err, ErrRecordNotFound) {
		w.WriteHeader(404)
		return
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to load client")
		w.WriteHeader(500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	w.Write([]byte(client.EncodeToJSON()))
}

// handleImportYubikeyRequest provisions a device: its AES key goes into the
// local keystore and its replay state starts at the sentinel counters.
func handleImportYubikeyRequest(env *Environment, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !verifyAdminSecret(env, r) {
		w.WriteHeader(401)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logrus.WithError(err).Error("Failed to read request body")
		w.WriteHeader(500)
		return
	}
	var data struct {
		PublicName *string `json:"public_name"`
		AESKey     *string `json:"aes_key"`
	}
	err = json.Unmarshal(body, &data)
	if err != nil {
		w.WriteHeader(400)
		return
	}
	if data.PublicName == nil || data.AESKey == nil {
		w.WriteHeader(400)
		return
	}
	publicName, aesKeyHex := *data.PublicName, *data.AESKey
	if publicName == "" || len(publicName) > otp.MaxPublicNameLength || !otp.IsModhex(publicName) {
		w.WriteHeader(400)
		return
	}
	aesKey, err := hex.DecodeString(aesKeyHex)
	if err != nil || len(aesKey) != otp.BlockSize {
		w.WriteHeader(400)
		return
	}

	err = insertAESKey(env.db, r.Context(), publicName, aesKeyHex)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert AES key")
		w.WriteHeader(500)
		return
	}
	now := time.Unix(time.Now().Unix(), 0)
	yubikey := Yubikey{
		PublicName: publicName,
		CreatedAt:  now,
		ModifiedAt: now,
		Active:     true,
		Counter:    -1,
		Use:        -1,
		Low:        -1,
		High:       -1,
	}
	err = insertYubikey(env.db, r.Context(), &yubikey)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert yubikey state")
		w.WriteHeader(500)
		return
	}
	w.WriteHeader(204)
}
