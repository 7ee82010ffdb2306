package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature is the hex HMAC-SHA256 of "gatewayOrderID|paymentID" keyed by
// secret, as sent by the gateway after a successful payment.
func Signature(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	expected := Signature(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
