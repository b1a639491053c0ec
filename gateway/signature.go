package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	rzputils "github.com/razorpay/razorpay-go/utils"
)

const (
	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

// LinkCallback holds the query parameters the gateway appends when it
// redirects the donor back from a payment link.
type LinkCallback struct {
	LinkID      string
	ReferenceID string
	Status      string
	PaymentID   string
}

func (cb LinkCallback) params() map[string]interface{} {
	return map[string]interface{}{
		"payment_link_id":           cb.LinkID,
		"payment_link_reference_id": cb.ReferenceID,
		"payment_link_status":       cb.Status,
		"razorpay_payment_id":       cb.PaymentID,
	}
}

func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return rzputils.VerifyWebhookSignature(string(body), signature, secret)
}

func VerifyLinkSignature(cb LinkCallback, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return rzputils.VerifyPaymentLinkSignature(cb.params(), signature, secret)
}

// Sign computes the signature the gateway sends, hex HMAC-SHA256. The SDK
// only verifies, so tests and local tooling sign with this.
func Sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func SignLinkCallback(cb LinkCallback, secret string) string {
	payload := strings.Join([]string{cb.LinkID, cb.ReferenceID, cb.Status, cb.PaymentID}, "|")
	return Sign([]byte(payload), secret)
}
