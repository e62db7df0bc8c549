package paysera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/JonasKairys/EduTeka/internal/pkg/env"
)

const (
	defaultAPIBaseURL        = "https://wallet.paysera.com"
	defaultSandboxAPIBaseURL = "https://wallet-sandbox.paysera.com"
	defaultPayURL            = "https://bank.paysera.com/pay/"
	defaultSandboxPayURL     = "https://sandbox.paysera.com/pay/"

	paymentRequestsPath = "/checkout/rest/v1/payment-requests"
	notificationsPath   = "/notification/rest/v1/notifications"

	// macAlgorithm is the only MAC algorithm the REST API accepts.
	macAlgorithm = "hmac-sha-256"
)

// Config carries the provider credentials. It is read once at application
// start and injected; there is no package-level client instance.
type Config struct {
	ProjectID    string
	SignPassword string
	BusinessID   string
	MacID        string
	MacKey       string
	MacAlgorithm string
	Test         bool

	AcceptURL   string
	CancelURL   string
	CallbackURL string

	PaymentMethodKey string
}

// Client talks to the payment provider. Legacy payments are signed redirect
// URLs built locally; recurring payments go through the MAC-authenticated
// REST API.
type Client struct {
	cfg Config

	APIBaseURL string
	PayURL     string

	HTTPClient *http.Client
}

// NewClient creates a gateway client from an explicit configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MacAlgorithm != "" && !strings.EqualFold(cfg.MacAlgorithm, macAlgorithm) {
		return nil, fmt.Errorf("unsupported MAC algorithm %q (only %s is supported)", cfg.MacAlgorithm, macAlgorithm)
	}
	if cfg.PaymentMethodKey == "" {
		cfg.PaymentMethodKey = "card"
	}

	apiBase := defaultAPIBaseURL
	payURL := defaultPayURL
	if cfg.Test {
		apiBase = defaultSandboxAPIBaseURL
		payURL = defaultSandboxPayURL
	}

	return &Client{
		cfg:        cfg,
		APIBaseURL: apiBase,
		PayURL:     payURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// NewClientFromEnv creates a gateway client from PAYSERA_* environment
// variables. Missing credentials are not validated here; they surface as
// authentication failures from the provider.
func NewClientFromEnv() (*Client, error) {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	acceptURL := strings.TrimSpace(env.GetEnv("PAYSERA_ACCEPT_URL", ""))
	cancelURL := strings.TrimSpace(env.GetEnv("PAYSERA_CANCEL_URL", ""))
	callbackURL := strings.TrimSpace(env.GetEnv("PAYSERA_CALLBACK_URL", ""))
	if base != "" {
		if acceptURL == "" {
			acceptURL = base + "/payments/accept"
		}
		if cancelURL == "" {
			cancelURL = base + "/payments/cancel"
		}
		if callbackURL == "" {
			callbackURL = base + "/payments/callback"
		}
	}

	return NewClient(Config{
		ProjectID:        strings.TrimSpace(env.GetEnv("PAYSERA_PROJECT_ID", "")),
		SignPassword:     strings.TrimSpace(env.GetEnv("PAYSERA_SIGN_PASSWORD", "")),
		BusinessID:       strings.TrimSpace(env.GetEnv("PAYSERA_BUSINESS_ID", "")),
		MacID:            strings.TrimSpace(env.GetEnv("PAYSERA_MAC_ID", "")),
		MacKey:           strings.TrimSpace(env.GetEnv("PAYSERA_MAC_KEY", "")),
		MacAlgorithm:     strings.TrimSpace(env.GetEnv("PAYSERA_MAC_ALGORITHM", macAlgorithm)),
		Test:             env.GetEnv("PAYSERA_TEST", "true") == "true",
		AcceptURL:        acceptURL,
		CancelURL:        cancelURL,
		CallbackURL:      callbackURL,
		PaymentMethodKey: strings.TrimSpace(env.GetEnv("PAYSERA_PAYMENT_METHOD_KEY", "card")),
	})
}

// CreatePayment initiates a payment. Non-recurring payments are the legacy
// flow: a signed redirect URL is built locally and returned without any
// network call. Recurring payments are delegated to CreateRecurringPayment.
func (c *Client) CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	if p.IsRecurring {
		return c.CreateRecurringPayment(ctx, p)
	}

	if strings.TrimSpace(p.OrderID) == "" {
		return nil, errors.New("order id is required")
	}

	testFlag := "0"
	if c.cfg.Test {
		testFlag = "1"
	}
	params := map[string]string{
		"projectid":   c.cfg.ProjectID,
		"orderid":     p.OrderID,
		"amount":      fmt.Sprintf("%.2f", p.Amount),
		"currency":    p.Currency,
		"accepturl":   c.cfg.AcceptURL,
		"cancelurl":   c.cfg.CancelURL,
		"callbackurl": c.cfg.CallbackURL,
		"test":        testFlag,
	}
	if p.Email != "" {
		params["p_email"] = p.Email
	}
	if p.Description != "" {
		params["paytext"] = p.Description
	}

	sign, err := GenerateSignature(params, c.cfg.SignPassword)
	if err != nil {
		return nil, err
	}

	return &CreatePaymentResult{
		Status:     "redirect",
		PaymentURL: c.PayURL + "?" + encodeSortedQuery(params) + "&sign=" + sign,
		OrderID:    p.OrderID,
	}, nil
}

// CreateRecurringPayment creates a tokenizing payment request via the REST
// API and returns the authorization URL the payer must visit.
func (c *Client) CreateRecurringPayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, errors.New("order id is required")
	}

	reqBody := paymentRequestBody{
		BusinessID: c.cfg.BusinessID,
		OrderID:    p.OrderID,
		Price: priceBody{
			Amount:   fmt.Sprintf("%.2f", p.Amount),
			Currency: p.Currency,
		},
		PaymentMethodKey: c.cfg.PaymentMethodKey,
		Payer:            payerBody{Email: p.Email},
		Description:      p.Description,
		Locale:           p.Locale,
		AcceptURL:        c.cfg.AcceptURL,
		CancelURL:        c.cfg.CancelURL,
		CallbackURL:      c.cfg.CallbackURL,
		TokenStrategy:    "required",
		RefundOnCapture:  p.RefundOnCapture,
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.APIBaseURL+paymentRequestsPath, reqBody)
	if err != nil {
		return nil, err
	}

	var out paymentRequestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid payment request response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("payment request response missing id")
	}
	if strings.TrimSpace(out.AuthorizationURL) == "" {
		return nil, errors.New("payment request response missing authorization_url")
	}

	return &CreatePaymentResult{
		Status:           out.Status,
		PaymentURL:       out.AuthorizationURL,
		OrderID:          p.OrderID,
		PaymentRequestID: out.ID,
	}, nil
}

// CreateTokenOnlyPayment obtains a reusable token without keeping the
// charge: the captured amount is refunded by provider policy when
// refund_on_capture is set.
func (c *Client) CreateTokenOnlyPayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	p.IsRecurring = true
	p.RefundOnCapture = true
	return c.CreateRecurringPayment(ctx, p)
}

// AuthorizeRecurringPayment authorizes a created payment request with a
// stored token. The provider must answer with status "authorized".
func (c *Client) AuthorizeRecurringPayment(ctx context.Context, p AuthorizeParams) (*StatusResult, error) {
	if strings.TrimSpace(p.PaymentRequestID) == "" {
		return nil, errors.New("payment request id is required")
	}
	if strings.TrimSpace(p.Token) == "" {
		return nil, errors.New("payment token is required")
	}

	endpoint := fmt.Sprintf("%s%s/%s/authorize", c.APIBaseURL, paymentRequestsPath, url.PathEscape(p.PaymentRequestID))
	body, err := c.doRequest(ctx, http.MethodPut, endpoint, map[string]string{"token": p.Token})
	if err != nil {
		return nil, err
	}

	status, err := parseStatus(body, "authorization")
	if err != nil {
		return nil, err
	}
	if status != "authorized" {
		return nil, fmt.Errorf("payment authorization failed: %s", status)
	}
	return &StatusResult{Status: status}, nil
}

// CapturePayment captures an authorized payment request. The provider must
// answer with status "captured".
func (c *Client) CapturePayment(ctx context.Context, paymentRequestID string) (*StatusResult, error) {
	if strings.TrimSpace(paymentRequestID) == "" {
		return nil, errors.New("payment request id is required")
	}

	endpoint := fmt.Sprintf("%s%s/%s/capture", c.APIBaseURL, paymentRequestsPath, url.PathEscape(paymentRequestID))
	body, err := c.doRequest(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, err
	}

	status, err := parseStatus(body, "capture")
	if err != nil {
		return nil, err
	}
	if status != "captured" {
		return nil, fmt.Errorf("payment capture failed: %s", status)
	}
	return &StatusResult{Status: status}, nil
}

// GetNotification fetches an asynchronous status notification.
func (c *Client) GetNotification(ctx context.Context, notificationID string) (*Notification, error) {
	if strings.TrimSpace(notificationID) == "" {
		return nil, errors.New("notification id is required")
	}

	endpoint := fmt.Sprintf("%s%s/%s", c.APIBaseURL, notificationsPath, url.PathEscape(notificationID))
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out Notification
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid notification response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("notification response missing id")
	}
	return &out, nil
}

// MarkNotificationAsRead acknowledges a notification so the provider stops
// redelivering it.
func (c *Client) MarkNotificationAsRead(ctx context.Context, notificationID string) (*Notification, error) {
	if strings.TrimSpace(notificationID) == "" {
		return nil, errors.New("notification id is required")
	}

	endpoint := fmt.Sprintf("%s%s/%s/read", c.APIBaseURL, notificationsPath, url.PathEscape(notificationID))
	body, err := c.doRequest(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out Notification
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid notification response: %w", err)
	}
	return &out, nil
}

// VerifyWebhook recomputes the legacy signature over data and compares it to
// the claimed signature. The caller must have stripped the sign field from
// data. Never returns an error; any internal failure means false.
func (c *Client) VerifyWebhook(data map[string]string, signature string) bool {
	return VerifySignature(data, c.cfg.SignPassword, signature)
}

// ParsePaymentResponse verifies and maps a legacy callback payload. A bad
// signature wins over any claimed status.
func (c *Client) ParsePaymentResponse(data map[string]string) PaymentResponse {
	signed := make(map[string]string, len(data))
	for k, v := range data {
		if k == "sign" {
			continue
		}
		signed[k] = v
	}

	if !c.VerifyWebhook(signed, data["sign"]) {
		return PaymentResponse{Status: "error", Error: "Invalid signature"}
	}
	if data["status"] != "1" {
		return PaymentResponse{Status: "error", Error: "Payment failed"}
	}

	return PaymentResponse{
		Status:    "ok",
		OrderID:   data["orderid"],
		PaymentID: data["requestid"],
		Token:     data["token"],
	}
}

// doRequest performs one MAC-authenticated REST call. A fresh Authorization
// header is generated per call; non-2xx responses become errors carrying
// status, status text and body for diagnosis.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var bodyStr string
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyStr = string(raw)
		reader = bytes.NewReader(raw)
	}

	authHeader, err := GenerateMACAuthHeader(c.cfg.MacID, c.cfg.MacKey, endpoint, method, bodyStr)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paysera request failed: status=%d %s body=%s",
			resp.StatusCode, http.StatusText(resp.StatusCode), string(body))
	}
	return body, nil
}

func parseStatus(body []byte, operation string) (string, error) {
	var out statusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("invalid %s response: %w", operation, err)
	}
	if strings.TrimSpace(out.Status) == "" {
		return "", fmt.Errorf("%s response missing status", operation)
	}
	return out.Status, nil
}

// encodeSortedQuery renders params as a query string in sorted key order so
// the redirect URL is deterministic for a given parameter set.
func encodeSortedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
