package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonasKairys/EduTeka/app/models"
	"github.com/JonasKairys/EduTeka/internal/pkg/cache"
	"github.com/JonasKairys/EduTeka/internal/pkg/paysera"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gateway is the slice of the payment client the renewal batch drives.
type Gateway interface {
	CreatePayment(ctx context.Context, p paysera.CreatePaymentParams) (*paysera.CreatePaymentResult, error)
	AuthorizeRecurringPayment(ctx context.Context, p paysera.AuthorizeParams) (*paysera.StatusResult, error)
	CapturePayment(ctx context.Context, paymentRequestID string) (*paysera.StatusResult, error)
}

// Locker guards a single user's renewal against overlapping batch runs.
type Locker interface {
	Acquire(key string, ttl time.Duration) (bool, error)
	Release(key string) error
}

type cacheLocker struct{}

func (cacheLocker) Acquire(key string, ttl time.Duration) (bool, error) { return cache.AcquireLock(key, ttl) }
func (cacheLocker) Release(key string) error                            { return cache.ReleaseLock(key) }

// NewCacheLocker returns a Locker backed by the shared Redis cache.
func NewCacheLocker() Locker {
	return cacheLocker{}
}

// Config controls the renewal window and failure policy.
type Config struct {
	// DaysBeforeExpiry is the lookahead window for expiring subscriptions.
	DaysBeforeExpiry int
	// ExtensionDays is added to the previous end date after a successful
	// capture. Extending from the previous value, not from "today", avoids
	// compounding drift when the batch runs late.
	ExtensionDays int
	// MaxFailures is the number of consecutive failed renewal attempts
	// after which auto-renew is switched off for a profile.
	MaxFailures int
	Provider    string
	LockTTL     time.Duration
}

// DefaultConfig returns the production renewal policy.
func DefaultConfig() Config {
	return Config{
		DaysBeforeExpiry: 3,
		ExtensionDays:    30,
		MaxFailures:      3,
		Provider:         models.PaymentProviderPaysera,
		LockTTL:          10 * time.Minute,
	}
}

// Summary is what one batch run did. Skipped counts benign contention (lock
// already held, no tier); LockErrors counts lock backend failures, which
// mean the overlap guard was not in effect.
type Summary struct {
	Candidates int
	Renewed    int
	Failed     int
	Skipped    int
	LockErrors int
}

// Service renews expiring recurring subscriptions. One run is one sequential
// pass over the candidates; retry across runs comes from the external
// scheduler invoking the batch daily.
type Service struct {
	repo    Repository
	gateway Gateway
	locker  Locker
	cfg     Config
}

// NewService creates a renewal service. locker may be nil when overlapping
// runs are impossible (tests, single-instance deployments).
func NewService(repo Repository, gateway Gateway, locker Locker, cfg Config) *Service {
	if cfg.DaysBeforeExpiry <= 0 {
		cfg.DaysBeforeExpiry = 3
	}
	if cfg.ExtensionDays <= 0 {
		cfg.ExtensionDays = 30
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Provider == "" {
		cfg.Provider = models.PaymentProviderPaysera
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Service{repo: repo, gateway: gateway, locker: locker, cfg: cfg}
}

// Run processes every subscription expiring within the window, strictly
// sequentially. Per-subscription failures are logged and do not abort the
// batch; only the initial candidate query can fail the whole run.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	now := time.Now()
	from := now.Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, s.cfg.DaysBeforeExpiry)

	profiles, err := s.repo.FindExpiringProfiles(from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to query expiring subscriptions: %w", err)
	}

	summary := Summary{Candidates: len(profiles)}
	log.Infof("[Renewal] Found %d subscriptions expiring between %s and %s",
		len(profiles), from.Format("2006-01-02"), to.Format("2006-01-02"))

	for i := range profiles {
		profile := &profiles[i]

		if profile.TierID == 0 {
			log.Warnf("[Renewal] Skipping user %d: no tier assigned", profile.UserID)
			summary.Skipped++
			continue
		}

		if s.locker != nil {
			lockKey := fmt.Sprintf("renew_lock:user:%d", profile.UserID)
			ok, lockErr := s.locker.Acquire(lockKey, s.cfg.LockTTL)
			if lockErr != nil {
				log.Errorf("[Renewal] Lock acquisition failed for user %d: %v", profile.UserID, lockErr)
				summary.LockErrors++
				continue
			}
			if !ok {
				log.Infof("[Renewal] Skipping user %d: renewal already in progress", profile.UserID)
				summary.Skipped++
				continue
			}
			err = s.renewProfile(ctx, profile)
			if relErr := s.locker.Release(lockKey); relErr != nil {
				log.Warnf("[Renewal] Failed to release lock for user %d: %v", profile.UserID, relErr)
			}
		} else {
			err = s.renewProfile(ctx, profile)
		}

		if err != nil {
			log.Errorf("[Renewal] Renewal failed for user %d: %v", profile.UserID, err)
			summary.Failed++
			continue
		}
		summary.Renewed++
	}

	return summary, nil
}

// renewProfile drives one subscription through create -> authorize ->
// capture and extends the subscription on success. Every persisted step is
// an independent write; a crash mid-sequence leaves an explicit order row
// behind rather than a guaranteed rollback.
func (s *Service) renewProfile(ctx context.Context, profile *models.UserPaymentProfile) error {
	if profile.SubscriptionEndDate == nil {
		return fmt.Errorf("user %d has no subscription end date", profile.UserID)
	}

	tier, err := s.repo.GetTier(profile.TierID)
	if err != nil {
		return fmt.Errorf("tier %d lookup failed: %w", profile.TierID, err)
	}

	token, err := s.repo.GetActiveToken(profile.UserID, s.cfg.Provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no active payment token for user %d", profile.UserID)
		}
		return fmt.Errorf("token lookup failed for user %d: %w", profile.UserID, err)
	}

	order := &models.PaymentOrder{
		OrderID:     "renewal_" + uuid.NewString(),
		UserID:      profile.UserID,
		Amount:      tier.Price,
		Currency:    tier.Currency,
		TierID:      tier.ID,
		Status:      models.OrderStatusPending,
		ChargeState: models.ChargeStateCreated,
		Provider:    s.cfg.Provider,
		IsRecurring: true,
		Description: fmt.Sprintf("Subscription renewal: %s", tier.Name),
	}
	if err := s.repo.CreateOrder(order); err != nil {
		return fmt.Errorf("failed to create order for user %d: %w", profile.UserID, err)
	}

	if err := s.chargeOrder(ctx, order, token.Token); err != nil {
		order.Status = models.OrderStatusFailed
		order.FailureReason = err.Error()
		if updErr := s.repo.UpdateOrder(order); updErr != nil {
			log.Errorf("[Renewal] Failed to mark order %s failed: %v", order.OrderID, updErr)
		}
		// Only declined charges count against the profile. Precondition
		// problems (missing token, missing tier) are not the card's fault
		// and must not burn down the auto-renew allowance.
		s.recordProfileFailure(profile)
		return err
	}

	now := time.Now()
	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now
	if err := s.repo.UpdateOrder(order); err != nil {
		return fmt.Errorf("failed to mark order %s completed: %w", order.OrderID, err)
	}

	// Extend from the previous end date, not from today.
	newEnd := profile.SubscriptionEndDate.AddDate(0, 0, s.cfg.ExtensionDays)
	profile.SubscriptionEndDate = &newEnd
	profile.RenewalFailures = 0
	if err := s.repo.SaveProfile(profile); err != nil {
		return fmt.Errorf("failed to extend subscription for user %d: %w", profile.UserID, err)
	}

	log.Infof("[Renewal] Renewed user %d until %s (order %s)",
		profile.UserID, newEnd.Format("2006-01-02"), order.OrderID)
	return nil
}

func (s *Service) chargeOrder(ctx context.Context, order *models.PaymentOrder, token string) error {
	created, err := s.gateway.CreatePayment(ctx, paysera.CreatePaymentParams{
		OrderID:     order.OrderID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Description: order.Description,
		IsRecurring: true,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(created.PaymentRequestID) == "" {
		return errors.New("payment creation returned no payment request id")
	}

	order.PaymentRequestID = created.PaymentRequestID
	if err := s.repo.UpdateOrder(order); err != nil {
		return fmt.Errorf("failed to store payment request id: %w", err)
	}

	if _, err := s.gateway.AuthorizeRecurringPayment(ctx, paysera.AuthorizeParams{
		PaymentRequestID: created.PaymentRequestID,
		Token:            token,
	}); err != nil {
		return err
	}
	order.ChargeState = models.ChargeStateAuthorized
	if err := s.repo.UpdateOrder(order); err != nil {
		return fmt.Errorf("failed to record authorization: %w", err)
	}

	if _, err := s.gateway.CapturePayment(ctx, created.PaymentRequestID); err != nil {
		return err
	}
	order.ChargeState = models.ChargeStateCaptured
	order.PaymentID = created.PaymentRequestID
	if err := s.repo.UpdateOrder(order); err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}

	return nil
}

// recordProfileFailure counts a failed charge attempt against the profile.
// After MaxFailures consecutive failures auto-renew is switched off so dead
// cards stop being retried forever. The end date is left untouched, so the
// next run retries naturally while the profile stays eligible.
func (s *Service) recordProfileFailure(profile *models.UserPaymentProfile) {
	profile.RenewalFailures++
	if profile.RenewalFailures >= s.cfg.MaxFailures {
		profile.IsRecurringPayment = false
		log.Warnf("[Renewal] Disabling auto-renew for user %d after %d consecutive failures",
			profile.UserID, profile.RenewalFailures)
	}
	if err := s.repo.SaveProfile(profile); err != nil {
		log.Errorf("[Renewal] Failed to update profile for user %d: %v", profile.UserID, err)
	}
}
