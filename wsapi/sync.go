package wsapi

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// syncFieldPatterns is the per-field grammar peer responses are validated
// against before numeric coercion. Patterns are anchored at the start only,
// matching the protocol's original checks.
var syncFieldPatterns = map[string]*regexp.Regexp{
	"modified":      regexp.MustCompile(`^(-1|[0-9]+)`),
	"yk_publicname": regexp.MustCompile(`^[cbdefghijklnrtuv]+`),
	"yk_counter":    regexp.MustCompile(`^(-1|[0-9]+)`),
	"yk_use":        regexp.MustCompile(`^(-1|[0-9]+)`),
	"yk_high":       regexp.MustCompile(`^(-1|[0-9]+)`),
	"yk_low":        regexp.MustCompile(`^(-1|[0-9]+)`),
	"nonce":         regexp.MustCompile(`^[a-zA-Z0-9]+`),
}

// ParseSyncResponse decodes a peer's CRLF-delimited key=value response body.
// A recognized field that fails its grammar is dropped and logged while the
// rest of the response stays accepted; a bad field never fails the whole
// message. All-digit values are coerced to int64, the -1 sentinel stays a
// string, and unrecognized fields (such as status) pass through unchanged.
func ParseSyncResponse(body string) map[string]any {
	raw := map[string]string{}
	for _, line := range strings.Split(body, "\r\n") {
		if !strings.Contains(line, "=") {
			continue
		}
		name, value, _ := strings.Cut(line, "=")
		raw[name] = value
	}

	record := make(map[string]any, len(raw))
	for name, value := range raw {
		pattern, recognized := syncFieldPatterns[name]
		if !recognized {
			record[name] = value
			continue
		}
		if !pattern.MatchString(value) {
			logrus.WithFields(logrus.Fields{"field": name, "value": value}).Error("Dropping invalid sync response field")
			continue
		}
		record[name] = coerceDigits(value)
	}
	for name := range syncFieldPatterns {
		if _, ok := raw[name]; !ok {
			logrus.WithField("field", name).Error("Sync response is missing a field")
		}
	}
	return record
}

// coerceDigits converts an all-digit value to int64 and leaves anything else
// (including the -1 sentinel) as a string.
func coerceDigits(value string) any {
	if !isDigits(value) {
		return value
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return value
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
