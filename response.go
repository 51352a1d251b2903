package main

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"ykval/wsapi"
)

// writeSignedResponse renders the signed plain-text protocol response. Early
// rejections that happen before a client key is known are signed with an
// empty key, matching the protocol's unauthenticated error responses.
func writeSignedResponse(w http.ResponseWriter, apiKey []byte, status string, extra []wsapi.Field) {
	body := wsapi.FormatResponse(apiKey, status, extra, time.Now())
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(200)
	w.Write([]byte(body))
	logrus.WithField("status", status).Debug("Sent signed response")
}
