// Package gateway talks to a Midtrans-compatible payment provider: it fetches
// transaction status on demand and verifies push notification signatures.
package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

var (
	ErrOrderNotFound = errors.New("order not found at payment provider")
	ErrUnavailable   = errors.New("payment provider unavailable")
)

// Notification is the provider's transaction status document, used both for
// push notifications and for status queries.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// Client queries transaction status through the Midtrans core API SDK.
type Client struct {
	core coreapi.Client
}

// NewClient targets baseURL, which may be the provider's production or
// sandbox host or a compatible stand-in.
func NewClient(baseURL, serverKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	env := midtrans.Sandbox
	if baseURL == midtrans.Production.BaseUrl() {
		env = midtrans.Production
	}

	httpClient := midtrans.GetHttpClient(env)
	httpClient.HttpClient = &http.Client{Timeout: timeout}

	var core coreapi.Client
	core.New(serverKey, env)
	core.HttpClient = &hostRewriter{from: env.BaseUrl(), to: baseURL, next: httpClient}

	return &Client{core: core}
}

// hostRewriter points SDK requests at the configured host.
type hostRewriter struct {
	from string
	to   string
	next midtrans.HttpClient
}

func (h *hostRewriter) Call(method, target string, apiKey *string, options *midtrans.ConfigOptions, body io.Reader, result interface{}) *midtrans.Error {
	if h.to != "" && strings.HasPrefix(target, h.from) {
		target = h.to + strings.TrimPrefix(target, h.from)
	}
	return h.next.Call(method, target, apiKey, options, body, result)
}

type statusResult struct {
	resp *coreapi.TransactionStatusResponse
	err  *midtrans.Error
}

// GetStatus fetches the current status of orderID. The SDK call is not
// context aware, so ctx only bounds how long the caller waits.
func (c *Client) GetStatus(ctx context.Context, orderID string) (*Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	done := make(chan statusResult, 1)
	go func() {
		resp, err := c.core.CheckTransaction(url.PathEscape(orderID))
		done <- statusResult{resp: resp, err: err}
	}()

	var r statusResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case r = <-done:
	}

	if r.err != nil {
		return nil, statusError(r.err)
	}
	// The provider reports unknown orders with HTTP 200 and an in-body code.
	if r.resp == nil || r.resp.StatusCode == "404" {
		return nil, ErrOrderNotFound
	}

	return &Notification{
		OrderID:           r.resp.OrderID,
		TransactionStatus: r.resp.TransactionStatus,
		FraudStatus:       r.resp.FraudStatus,
		PaymentType:       r.resp.PaymentType,
		StatusCode:        r.resp.StatusCode,
		GrossAmount:       r.resp.GrossAmount,
		SignatureKey:      r.resp.SignatureKey,
	}, nil
}

func statusError(err *midtrans.Error) error {
	code := err.GetStatusCode()
	switch {
	case code == http.StatusNotFound:
		return ErrOrderNotFound
	case code == 0, code == http.StatusRequestTimeout, code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrUnavailable, err.GetMessage())
	default:
		return fmt.Errorf("unexpected provider response (%d): %s", code, err.GetMessage())
	}
}

// Signature is sha512(order_id + status_code + gross_amount + serverKey), hex encoded.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func VerifySignature(n *Notification, serverKey string) bool {
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) == 1
}
