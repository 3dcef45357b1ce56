package momo

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/Abraxas-365/keybridge/pkg/payment"
)

// CreateRequest is the body of a MoMo create-payment call.
type CreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	AutoCapture bool   `json:"autoCapture"`
	Signature   string `json:"signature"`
}

// CreateResponse is MoMo's answer to a create request.
type CreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink,omitempty"`
	QRCodeURL    string `json:"qrCodeUrl,omitempty"`
}

// IPN is the instant payment notification MoMo posts after a payment.
type IPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// Succeeded reports a zero result code.
func (n IPN) Succeeded() bool { return n.ResultCode == 0 }

// ExtraData is the payload carried through the payment, base64 JSON
// encoded.
type ExtraData struct {
	Email string `json:"email"`
}

// EncodeExtraData renders d as base64 JSON, the form MoMo echoes back.
func EncodeExtraData(d ExtraData) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func DecodeExtraData(s string) (ExtraData, error) {
	var d ExtraData
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return d, payment.ErrInvalidPayload("extraData is not base64").WithCause(err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, payment.ErrInvalidPayload("extraData is not JSON").WithCause(err)
	}
	if d.Email == "" {
		return d, payment.ErrInvalidPayload("extraData has no email")
	}
	return d, nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
