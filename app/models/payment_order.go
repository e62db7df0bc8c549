package models

import "time"

// Payment provider constants used across payment-related models.
const (
	PaymentProviderPaysera = "paysera"
)

// Order status values. An order only ever moves pending -> completed or
// pending -> failed and is never deleted (audit trail).
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Charge state values track how far the create/authorize/capture sequence
// got, so a run cut short mid-sequence leaves an unambiguous row behind.
const (
	ChargeStateCreated    = "created"
	ChargeStateAuthorized = "authorized"
	ChargeStateCaptured   = "captured"
)

// PaymentOrder records one attempted charge against a user.
type PaymentOrder struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	OrderID          string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"order_id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	Amount           float64    `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency         string     `gorm:"type:varchar(3);not null" json:"currency"`
	TierID           uint       `gorm:"not null;index" json:"tier_id"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ChargeState      string     `gorm:"type:varchar(20);not null;default:'created'" json:"charge_state"`
	Provider         string     `gorm:"type:varchar(20);not null;default:'paysera'" json:"provider"`
	IsRecurring      bool       `gorm:"default:false" json:"is_recurring"`
	Description      string     `gorm:"type:varchar(255)" json:"description"`
	PaymentRequestID string     `gorm:"type:varchar(191);index" json:"payment_request_id"`
	PaymentID        string     `gorm:"type:varchar(191)" json:"payment_id"`
	FailureReason    string     `gorm:"type:text" json:"failure_reason"`
	CompletedAt      *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
