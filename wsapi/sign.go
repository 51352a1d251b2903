package wsapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"sort"
	"strings"
)

// Canonicalize renders fields as the exact byte input to the signer: keys
// sorted bytewise ascending, joined as key=value pairs with &, no escaping,
// no whitespace, no line breaks.
func Canonicalize(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + fields[key]
	}
	return strings.Join(pairs, "&")
}

// Sign computes the HMAC-SHA1 signature of the canonical form of fields,
// keyed with the raw API key, and encodes it with standard padded base64.
func Sign(fields map[string]string, apiKey []byte) string {
	mac := hmac.New(sha1.New, apiKey)
	mac.Write([]byte(Canonicalize(fields)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature for fields and compares it against the
// submitted one in constant time.
func Verify(fields map[string]string, signature string, apiKey []byte) bool {
	expected := Sign(fields, apiKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
