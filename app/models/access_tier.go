package models

import "time"

// AccessTier is a subscription plan a member can be billed for. Price is in
// major currency units (e.g. 9.99 EUR), never minor units.
type AccessTier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=2,max=100"`
	Price     float64   `gorm:"type:decimal(10,2);not null" json:"price" validate:"gte=0"`
	Currency  string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency" validate:"len=3"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
