package paysera

// CreatePaymentParams describes one payment to initiate. Amount is in major
// currency units (9.99 means nine euros and ninety-nine cents).
type CreatePaymentParams struct {
	OrderID         string
	Amount          float64
	Currency        string
	Email           string
	Description     string
	Locale          string
	IsRecurring     bool
	RefundOnCapture bool
}

// CreatePaymentResult is the provider-agnostic outcome of payment creation.
// For the legacy flow PaymentURL is the signed redirect URL and
// PaymentRequestID stays empty; for the REST flow PaymentURL is the
// authorization URL and PaymentRequestID identifies the request for the
// authorize/capture steps.
type CreatePaymentResult struct {
	Status           string
	PaymentURL       string
	OrderID          string
	PaymentRequestID string
}

// AuthorizeParams identifies a created payment request and the stored token
// to authorize it with.
type AuthorizeParams struct {
	PaymentRequestID string
	Token            string
}

// StatusResult carries the provider status of an authorize/capture call.
type StatusResult struct {
	Status string
}

// PaymentResponse is the typed result of parsing a legacy callback payload.
// Status is "ok" or "error"; Error is set only on "error".
type PaymentResponse struct {
	Status    string
	OrderID   string
	PaymentID string
	Token     string
	Error     string
}

// Notification is an asynchronous status update fetched from the REST API.
type Notification struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Type   string `json:"type"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

type priceBody struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type payerBody struct {
	Email string `json:"email,omitempty"`
}

// paymentRequestBody is the JSON body POSTed to the payment-requests
// endpoint. Field presence is part of the provider contract.
type paymentRequestBody struct {
	BusinessID       string    `json:"business_id"`
	OrderID          string    `json:"order_id"`
	Price            priceBody `json:"price"`
	PaymentMethodKey string    `json:"payment_method_key"`
	Payer            payerBody `json:"payer"`
	Description      string    `json:"description,omitempty"`
	Locale           string    `json:"locale,omitempty"`
	AcceptURL        string    `json:"accept_url"`
	CancelURL        string    `json:"cancel_url"`
	CallbackURL      string    `json:"callback_url"`
	TokenStrategy    string    `json:"token_strategy"`
	RefundOnCapture  bool      `json:"refund_on_capture,omitempty"`
}

// paymentRequestResponse is the expected shape of a successful
// payment-request creation. Missing id or authorization_url is treated as a
// provider contract violation.
type paymentRequestResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	AuthorizationURL string `json:"authorization_url"`
}

type statusResponse struct {
	Status string `json:"status"`
}
