package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// SignCallback считает HMAC-SHA256 подпись callback'а провайдера
// над строкой "<session_id>|<payment_ref>".
func SignCallback(sessionID, paymentRef, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallback проверяет подпись success-callback'а. Сравнение
// константное по времени; несовпадение — ErrSignatureMismatch.
func VerifyCallback(payload domain.CallbackPayload, secret string) error {
	if payload.Signature == "" {
		return domain.ErrProviderSignatureRequired
	}
	expected := SignCallback(payload.SessionID, payload.PaymentRef, secret)
	if !hmac.Equal([]byte(expected), []byte(payload.Signature)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}
