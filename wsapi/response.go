package wsapi

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Field is one name=value pair echoed back to the caller. Echoed fields keep
// the order the handler supplied them in, unlike the sorted signing input.
type Field struct {
	Name  string
	Value string
}

// Timestamp renders t in the protocol's wire form: UTC seconds followed by a
// literal Z and the first four digits of the microsecond field.
func Timestamp(t time.Time) string {
	utc := t.UTC()
	return fmt.Sprintf("%sZ%04d", utc.Format("2006-01-02T15:04:05"), utc.Nanosecond()/100000)
}

// Nonce returns 128 random bits as unpadded lowercase hex. The width varies
// when the leading bits are zero; consumers must not assume a fixed length.
func Nonce() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(bytes).Text(16), nil
}

// FormatResponse builds the signed plain-text response body: an h= line with
// the signature, a t= timestamp line, the extra fields in supplied order, a
// status= line and a terminating blank line, all CRLF-separated. The
// signature covers status, t and the extra fields but not itself.
func FormatResponse(apiKey []byte, status string, extra []Field, now time.Time) string {
	timestamp := Timestamp(now)
	fields := map[string]string{
		"status": status,
		"t":      timestamp,
	}
	for _, field := range extra {
		fields[field.Name] = field.Value
	}
	signature := Sign(fields, apiKey)

	var body strings.Builder
	body.WriteString("h=" + signature + "\r\n")
	body.WriteString("t=" + timestamp + "\r\n")
	for _, field := range extra {
		body.WriteString(field.Name + "=" + field.Value + "\r\n")
	}
	body.WriteString("status=" + status + "\r\n")
	body.WriteString("\r\n")
	return body.String()
}
