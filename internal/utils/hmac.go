package utils

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// SignHMAC512 creates a hex-encoded HMAC-SHA512 signature over a raw body.
// Paystack signs webhook deliveries this way (x-paystack-signature header).
func SignHMAC512(body []byte, secret string) string {
	h := hmac.New(sha512.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC512 verifies a hex-encoded HMAC-SHA512 signature in constant time
func VerifyHMAC512(body []byte, signature, secret string) bool {
	expectedMAC := SignHMAC512(body, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expectedMAC)) == 1
}
