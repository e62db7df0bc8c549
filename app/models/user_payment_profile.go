package models

import "time"

// UserPaymentProfile holds per-user subscription state. SubscriptionEndDate
// is pushed forward by the renewal batch; RenewalFailures counts consecutive
// failed renewal attempts and resets to zero on success.
type UserPaymentProfile struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UserID              uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	TierID              uint       `gorm:"index" json:"tier_id"`
	SubscriptionEndDate *time.Time `gorm:"type:timestamp;default:null;index" json:"subscription_end_date,omitempty"`
	IsRecurringPayment  bool       `gorm:"default:false;index" json:"is_recurring_payment"`
	RenewalFailures     int        `gorm:"default:0" json:"renewal_failures"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
