package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"ykval/ratelimit"
)

const version = "0.1.0"

// Validation protocol status codes. Every response carries exactly one of
// these in its status line.
const (
	statusOK               = "OK"
	statusBadOTP           = "BAD_OTP"
	statusReplayedOTP      = "REPLAYED_OTP"
	statusReplayedRequest  = "REPLAYED_REQUEST"
	statusBadSignature     = "BAD_SIGNATURE"
	statusMissingParameter = "MISSING_PARAMETER"
	statusNoSuchClient     = "NO_SUCH_CLIENT"
	statusNotEnoughAnswers = "NOT_ENOUGH_ANSWERS"
	statusBackendError     = "BACKEND_ERROR"
)

type Environment struct {
	db                *sql.DB
	config            *Config
	decryptor         Decryptor
	httpClient        *http.Client
	verifyIPRateLimit ratelimit.TokenBucketRateLimit
	badSignatureLimit ratelimit.LimitCounter
}

func CreateApp(env *Environment) http.Handler {
	router := NewRouter(env, func(env *Environment, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(404)
	})

	router.Handle("GET", "/", func(env *Environment, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Write([]byte(fmt.Sprintf("ykval version %s\n", version)))
	})

	router.Handle("GET", "/wsapi/2.0/verify", handleVerifyRequest)
	router.Handle("GET", "/wsapi/2.0/sync", handleSyncRequest)
	router.Handle("GET", "/wsapi/decrypt", handleDecryptRequest)

	router.Handle("POST", "/clients", handleCreateClientRequest)
	router.Handle("GET", "/clients/:client_id", handleGetClientRequest)
	router.Handle("POST", "/yubikeys", handleImportYubikeyRequest)

	return router.Handler()
}

func main() {
	configPath := "ykval.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	config, err := loadConfig(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if config.LogLevel != "" {
		level, err := logrus.ParseLevel(config.LogLevel)
		if err != nil {
			logrus.WithError(err).Fatal("Invalid log level")
		}
		logrus.SetLevel(level)
	}

	db, err := openDatabase(config.DatabasePath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	env := &Environment{
		db:     db,
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.RequestTimeoutSeconds) * time.Second,
		},
		verifyIPRateLimit: ratelimit.NewTokenBucketRateLimit(config.VerifyRateLimit, time.Second),
		badSignatureLimit: ratelimit.NewLimitCounter(10),
	}
	if config.LocalKeystore {
		env.decryptor = &KeystoreDecryptor{db: db}
	}

	app := CreateApp(env)
	logrus.WithField("listen", config.Listen).Info("Starting ykval")
	err = http.ListenAndServe(config.Listen, app)
	logrus.WithError(err).Fatal("Server stopped")
}
