package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/JonasKairys/EduTeka/app/models"
	"github.com/JonasKairys/EduTeka/internal/pkg/database"
	"github.com/JonasKairys/EduTeka/internal/pkg/paysera"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// paymentGateway is the slice of the gateway client the handlers use.
type paymentGateway interface {
	CreatePayment(ctx context.Context, p paysera.CreatePaymentParams) (*paysera.CreatePaymentResult, error)
	CreateTokenOnlyPayment(ctx context.Context, p paysera.CreatePaymentParams) (*paysera.CreatePaymentResult, error)
	ParsePaymentResponse(data map[string]string) paysera.PaymentResponse
}

// paymentStore provides the DB operations the payment handlers need.
type paymentStore interface {
	GetTier(tierID uint) (*models.AccessTier, error)
	CreateOrder(order *models.PaymentOrder) error
	SaveOrder(order *models.PaymentOrder) error
	GetOrderByOrderID(orderID string) (*models.PaymentOrder, error)
	CreateToken(token *models.PaymentToken) error
}

var (
	paymentClient paymentGateway
	paymentRepo   paymentStore
)

type gormPaymentStore struct {
	db *gorm.DB
}

func (s *gormPaymentStore) GetTier(tierID uint) (*models.AccessTier, error) {
	var tier models.AccessTier
	if err := s.db.First(&tier, tierID).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (s *gormPaymentStore) CreateOrder(order *models.PaymentOrder) error {
	return s.db.Create(order).Error
}

func (s *gormPaymentStore) SaveOrder(order *models.PaymentOrder) error {
	return s.db.Save(order).Error
}

func (s *gormPaymentStore) GetOrderByOrderID(orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := s.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *gormPaymentStore) CreateToken(token *models.PaymentToken) error {
	return s.db.Create(token).Error
}

// InitializePaymentController builds the shared gateway client from the
// environment and binds the store to the shared DB handle. Called once
// during router installation.
func InitializePaymentController() error {
	client, err := paysera.NewClientFromEnv()
	if err != nil {
		return err
	}
	paymentClient = client
	paymentRepo = &gormPaymentStore{db: database.GetDB()}
	return nil
}

type checkoutRequest struct {
	UserID    uint   `json:"user_id"`
	TierID    uint   `json:"tier_id"`
	Recurring bool   `json:"recurring"`
	TokenOnly bool   `json:"token_only"`
	Email     string `json:"email"`
	Locale    string `json:"locale"`
}

// HandleCheckout creates a pending order for a tier and returns the URL the
// payer must be sent to: the signed legacy redirect for one-off payments, or
// the REST authorization URL for recurring/tokenizing ones.
func HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == 0 || req.TierID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and tier_id are required"})
	}

	tier, err := paymentRepo.GetTier(req.TierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tier not found"})
		}
		log.Errorf("[Payment] Tier lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	if !tier.IsActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tier is not available"})
	}

	order := &models.PaymentOrder{
		OrderID:     "checkout_" + uuid.NewString(),
		UserID:      req.UserID,
		Amount:      tier.Price,
		Currency:    tier.Currency,
		TierID:      tier.ID,
		Status:      models.OrderStatusPending,
		ChargeState: models.ChargeStateCreated,
		Provider:    models.PaymentProviderPaysera,
		IsRecurring: req.Recurring || req.TokenOnly,
		Description: "Membership: " + tier.Name,
	}
	if err := paymentRepo.CreateOrder(order); err != nil {
		log.Errorf("[Payment] Failed to create order: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	params := paysera.CreatePaymentParams{
		OrderID:     order.OrderID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Email:       req.Email,
		Description: order.Description,
		Locale:      req.Locale,
		IsRecurring: order.IsRecurring,
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	var result *paysera.CreatePaymentResult
	if req.TokenOnly {
		result, err = paymentClient.CreateTokenOnlyPayment(ctx, params)
	} else {
		result, err = paymentClient.CreatePayment(ctx, params)
	}
	if err != nil {
		log.Errorf("[Payment] Payment creation failed for order %s: %v", order.OrderID, err)
		order.Status = models.OrderStatusFailed
		order.FailureReason = err.Error()
		if dbErr := paymentRepo.SaveOrder(order); dbErr != nil {
			log.Errorf("[Payment] Failed to mark order %s failed: %v", order.OrderID, dbErr)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "payment provider unavailable"})
	}

	if result.PaymentRequestID != "" {
		order.PaymentRequestID = result.PaymentRequestID
		if err := paymentRepo.SaveOrder(order); err != nil {
			log.Errorf("[Payment] Failed to store payment request id for %s: %v", order.OrderID, err)
		}
	}

	return c.JSON(fiber.Map{
		"order_id":    order.OrderID,
		"payment_url": result.PaymentURL,
	})
}

// HandlePaymentCallback processes the legacy server-to-server callback. The
// provider retries until it receives the literal body "OK", so every handled
// outcome answers with it; only signature failures are rejected.
func HandlePaymentCallback(c *fiber.Ctx) error {
	data := make(map[string]string)
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		data[string(key)] = string(value)
	})

	resp := paymentClient.ParsePaymentResponse(data)
	if resp.Status != "ok" {
		if resp.Error == "Invalid signature" {
			log.Warnf("[Payment] Callback with invalid signature for order %q", data["orderid"])
			return c.Status(fiber.StatusBadRequest).SendString("invalid signature")
		}
		log.Warnf("[Payment] Callback reported failed payment for order %q", data["orderid"])
		markOrderFailed(data["orderid"], "provider reported failed payment")
		return c.SendString("OK")
	}

	order, err := paymentRepo.GetOrderByOrderID(resp.OrderID)
	if err != nil {
		log.Errorf("[Payment] Callback for unknown order %q: %v", resp.OrderID, err)
		return c.SendString("OK")
	}

	if order.Status == models.OrderStatusCompleted {
		// Duplicate callback delivery.
		return c.SendString("OK")
	}

	if resp.Token != "" {
		token := &models.PaymentToken{
			UserID:   order.UserID,
			Token:    resp.Token,
			Provider: order.Provider,
			IsActive: true,
		}
		if err := paymentRepo.CreateToken(token); err != nil {
			log.Errorf("[Payment] Failed to store payment token for user %d: %v", order.UserID, err)
		}
	}

	now := time.Now()
	order.Status = models.OrderStatusCompleted
	order.PaymentID = resp.PaymentID
	order.CompletedAt = &now
	if err := paymentRepo.SaveOrder(order); err != nil {
		log.Errorf("[Payment] Failed to complete order %s: %v", order.OrderID, err)
		return c.SendString("OK")
	}

	log.Infof("[Payment] Order %s completed via callback", order.OrderID)
	return c.SendString("OK")
}

// HandlePaymentAccept is the browser return target after a successful
// payment. The authoritative state change happens in the callback.
func HandlePaymentAccept(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "accepted", "order_id": c.Query("orderid")})
}

// HandlePaymentCancel is the browser return target after a cancelled payment.
func HandlePaymentCancel(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "cancelled", "order_id": c.Query("orderid")})
}

func markOrderFailed(orderID, reason string) {
	if orderID == "" {
		return
	}
	order, err := paymentRepo.GetOrderByOrderID(orderID)
	if err != nil {
		return
	}
	if order.Status != models.OrderStatusPending {
		return
	}
	order.Status = models.OrderStatusFailed
	order.FailureReason = reason
	if err := paymentRepo.SaveOrder(order); err != nil {
		log.Errorf("[Payment] Failed to mark order %s failed: %v", orderID, err)
	}
}
