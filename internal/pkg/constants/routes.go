package constants

// Payment route constants
const (
	CheckoutRoute        = "/api/v1/payments/checkout"
	PaymentCallbackRoute = "/payments/callback"
	PaymentAcceptRoute   = "/payments/accept"
	PaymentCancelRoute   = "/payments/cancel"
)
