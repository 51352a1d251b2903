package wsapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	fields := map[string]string{
		"b": "1",
		"a": "2",
		"c": "3",
	}
	assert.Equal(t, "a=2&b=1&c=3", Canonicalize(fields))

	assert.Equal(t, "", Canonicalize(map[string]string{}))

	// Bytewise key ordering: uppercase sorts before lowercase.
	fields = map[string]string{
		"nonce":  "abc",
		"Status": "OK",
	}
	assert.Equal(t, "Status=OK&nonce=abc", Canonicalize(fields))
}

func TestSignDeterministic(t *testing.T) {
	t.Parallel()

	key := []byte("8Vjp7qbkdCGLYSdFwPh01IrHTTo=")
	fields := map[string]string{
		"status": "OK",
		"t":      "2015-04-11T22:27:30Z1234",
		"otp":    "ccccccreuvicjjjjjjjjjjjjjjjjjjjjjjjjjjjjjjjj",
		"nonce":  "a1b2c3",
	}

	first := Sign(fields, key)
	second := Sign(fields, key)
	assert.Equal(t, first, second)
	assert.True(t, Verify(fields, first, key))

	// Changing a single value changes the canonical string and breaks the
	// signature.
	before := Canonicalize(fields)
	fields["nonce"] = "a1b2c4"
	assert.NotEqual(t, before, Canonicalize(fields))
	assert.False(t, Verify(fields, first, key))
}

func TestVerifyWrongKey(t *testing.T) {
	t.Parallel()

	fields := map[string]string{"status": "OK"}
	signature := Sign(fields, []byte("key-one"))
	assert.False(t, Verify(fields, signature, []byte("key-two")))
	assert.False(t, Verify(fields, "not base64 at all", []byte("key-one")))
}
