package models

import "time"

// PaymentToken is a provider-issued credential that lets us charge a user
// without re-presenting card details. Tokens are immutable once stored; the
// most recent active token per user and provider wins.
type PaymentToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_payment_tokens_user_provider,priority:1" json:"user_id"`
	Token     string    `gorm:"type:varchar(191);not null" json:"-"`
	Provider  string    `gorm:"type:varchar(20);not null;default:'paysera';index:idx_payment_tokens_user_provider,priority:2" json:"provider"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
