package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/payment"
)

// Signer computes MoMo HMAC-SHA256 signatures: hex over the fields joined
// as key=value pairs in alphabetical key order.
type Signer struct {
	accessKey string
	secretKey []byte
}

// NewSigner creates a Signer for the partner keys.
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{accessKey: accessKey, secretKey: []byte(secretKey)}
}

// Canonical joins fields as "k1=v1&k2=v2" sorted by key.
func Canonical(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

func (s *Signer) sign(fields map[string]string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(Canonical(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignCreate sets the signature of a create-payment request.
func (s *Signer) SignCreate(r *CreateRequest) {
	r.Signature = s.sign(map[string]string{
		"accessKey":   s.accessKey,
		"amount":      itoa(r.Amount),
		"extraData":   r.ExtraData,
		"ipnUrl":      r.IPNURL,
		"orderId":     r.OrderID,
		"orderInfo":   r.OrderInfo,
		"partnerCode": r.PartnerCode,
		"redirectUrl": r.RedirectURL,
		"requestId":   r.RequestID,
		"requestType": r.RequestType,
	})
}

func (s *Signer) ipnFields(n IPN) map[string]string {
	return map[string]string{
		"accessKey":    s.accessKey,
		"amount":       itoa(n.Amount),
		"extraData":    n.ExtraData,
		"message":      n.Message,
		"orderId":      n.OrderID,
		"orderInfo":    n.OrderInfo,
		"orderType":    n.OrderType,
		"partnerCode":  n.PartnerCode,
		"payType":      n.PayType,
		"requestId":    n.RequestID,
		"responseTime": itoa(n.ResponseTime),
		"resultCode":   strconv.Itoa(n.ResultCode),
		"transId":      itoa(n.TransID),
	}
}

// SignIPN returns the signature MoMo would put on n.
func (s *Signer) SignIPN(n IPN) string {
	return s.sign(s.ipnFields(n))
}

// VerifyIPN checks n's signature in constant time.
func (s *Signer) VerifyIPN(n IPN) error {
	expected := s.SignIPN(n)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(n.Signature))) {
		return payment.ErrInvalidSignature()
	}
	return nil
}
