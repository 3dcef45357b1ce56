// Package momo talks to the MoMo wallet payment gateway.
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/payment"
	"github.com/google/uuid"
)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client creates payments and verifies notifications.
type Client struct {
	cfg    config.MoMoConfig
	http   *http.Client
	signer *Signer
}

// NewClient creates a MoMo client. Without credentials every
// CreatePayment fails with NOT_CONFIGURED.
func NewClient(cfg config.MoMoConfig, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		signer: NewSigner(cfg.AccessKey, cfg.SecretKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signer returns the signer built from the client credentials.
func (c *Client) Signer() *Signer { return c.signer }

// CreatePayment opens a VIP upgrade payment for email and returns MoMo's
// answer, including the payUrl to send the user to.
func (c *Client) CreatePayment(ctx context.Context, email string) (*CreateResponse, error) {
	if !c.cfg.Enabled() {
		return nil, payment.ErrNotConfigured()
	}

	extra, err := EncodeExtraData(ExtraData{Email: email})
	if err != nil {
		return nil, payment.ErrInvalidPayload("extraData").WithCause(err)
	}

	orderID := c.cfg.PartnerCode + "-" + uuid.NewString()
	req := CreateRequest{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   orderID,
		Amount:      c.cfg.Amount,
		OrderID:     orderID,
		OrderInfo:   c.cfg.OrderInfo,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: c.cfg.RequestType,
		ExtraData:   extra,
		Lang:        "vi",
		AutoCapture: true,
	}
	c.signer.SignCreate(&req)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, payment.ErrGateway(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, payment.ErrGateway(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, payment.ErrGateway(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, payment.ErrGateway(err)
	}

	var out CreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, payment.ErrGateway(fmt.Errorf("decode status %d: %w", resp.StatusCode, err))
	}
	if out.ResultCode != 0 || out.PayURL == "" {
		logx.WithContext(ctx).WithFields(logx.Fields{
			"order_id":    orderID,
			"result_code": out.ResultCode,
			"gateway_msg": out.Message,
		}).Warn("momo: payment creation refused")
		return nil, payment.ErrGateway(fmt.Errorf("resultCode %d: %s", out.ResultCode, out.Message)).
			WithDetail("result_code", out.ResultCode)
	}

	logx.WithContext(ctx).WithField("order_id", orderID).Info("momo: payment created")
	return &out, nil
}
