package renewal

import (
	"time"

	"github.com/JonasKairys/EduTeka/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the renewal service.
type Repository interface {
	FindExpiringProfiles(from, to time.Time) ([]models.UserPaymentProfile, error)
	GetTier(tierID uint) (*models.AccessTier, error)
	GetActiveToken(userID uint, provider string) (*models.PaymentToken, error)
	CreateOrder(order *models.PaymentOrder) error
	UpdateOrder(order *models.PaymentOrder) error
	SaveProfile(profile *models.UserPaymentProfile) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a renewal repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindExpiringProfiles(from, to time.Time) ([]models.UserPaymentProfile, error) {
	var profiles []models.UserPaymentProfile
	err := r.db.
		Where("is_recurring_payment = ? AND subscription_end_date IS NOT NULL AND subscription_end_date BETWEEN ? AND ?", true, from, to).
		Order("subscription_end_date ASC").
		Find(&profiles).Error
	return profiles, err
}

func (r *gormRepository) GetTier(tierID uint) (*models.AccessTier, error) {
	var tier models.AccessTier
	if err := r.db.First(&tier, tierID).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *gormRepository) GetActiveToken(userID uint, provider string) (*models.PaymentToken, error) {
	var token models.PaymentToken
	err := r.db.
		Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).
		Order("created_at DESC").
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *gormRepository) CreateOrder(order *models.PaymentOrder) error {
	return r.db.Create(order).Error
}

func (r *gormRepository) UpdateOrder(order *models.PaymentOrder) error {
	return r.db.Save(order).Error
}

func (r *gormRepository) SaveProfile(profile *models.UserPaymentProfile) error {
	return r.db.Save(profile).Error
}
