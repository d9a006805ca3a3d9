package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuth() *HMACAuth {
	return &HMACAuth{
		Key:        "11111111-2222-3333-4444-555555555555",
		Secret:     base64.URLEncoding.EncodeToString([]byte("super-secret-bytes")),
		Passphrase: "passphrase",
	}
}

func TestL2HeadersAt_SignsTimestampMethodPathBody(t *testing.T) {
	auth := testAuth()
	headers := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)

	assert.Equal(t, "0xabc", headers["POLY_ADDRESS"])
	assert.Equal(t, auth.Key, headers["POLY_API_KEY"])
	assert.Equal(t, "1700000000", headers["POLY_TIMESTAMP"])
	assert.Equal(t, auth.Passphrase, headers["POLY_PASSPHRASE"])

	mac := hmac.New(sha256.New, []byte("super-secret-bytes"))
	mac.Write([]byte(`1700000000POST/order{"x":1}`))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, headers["POLY_SIGNATURE"])
}

func TestL2HeadersAt_EmptyBody(t *testing.T) {
	auth := testAuth()
	headers := auth.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)

	mac := hmac.New(sha256.New, []byte("super-secret-bytes"))
	mac.Write([]byte("1700000000GET/orders"))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, headers["POLY_SIGNATURE"])
}

func TestL2HeadersAt_RawSecretFallback(t *testing.T) {
	// A secret that is not valid base64 is used as raw bytes instead of
	// panicking; the venue will reject the signature, not the process.
	auth := &HMACAuth{Key: "k", Secret: "!!not-base64!!", Passphrase: "p"}
	headers := auth.L2HeadersAt("0xabc", "GET", "/", "", 1700000000)
	require.NotEmpty(t, headers["POLY_SIGNATURE"])
}

func TestString_RedactsCredentials(t *testing.T) {
	auth := testAuth()
	s := auth.String()
	assert.NotContains(t, s, auth.Secret)
	assert.Contains(t, s, "****")
}
