package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/JonasKairys/EduTeka/app/models"
	"github.com/JonasKairys/EduTeka/internal/pkg/paysera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRepo struct {
	profiles []models.UserPaymentProfile
	tiers    map[uint]*models.AccessTier
	tokens   map[uint]*models.PaymentToken
	orders   []*models.PaymentOrder

	queryErr error
}

func (r *fakeRepo) FindExpiringProfiles(from, to time.Time) ([]models.UserPaymentProfile, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return r.profiles, nil
}

func (r *fakeRepo) GetTier(tierID uint) (*models.AccessTier, error) {
	tier, ok := r.tiers[tierID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tier, nil
}

func (r *fakeRepo) GetActiveToken(userID uint, provider string) (*models.PaymentToken, error) {
	token, ok := r.tokens[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return token, nil
}

func (r *fakeRepo) CreateOrder(order *models.PaymentOrder) error {
	r.orders = append(r.orders, order)
	return nil
}

func (r *fakeRepo) UpdateOrder(order *models.PaymentOrder) error { return nil }

func (r *fakeRepo) SaveProfile(profile *models.UserPaymentProfile) error { return nil }

func (r *fakeRepo) orderForUser(userID uint) *models.PaymentOrder {
	for _, o := range r.orders {
		if o.UserID == userID {
			return o
		}
	}
	return nil
}

type fakeGateway struct {
	createErr    error
	authorizeErr error
	captureErr   error
	created      []paysera.CreatePaymentParams
	requestID    string
}

func (g *fakeGateway) CreatePayment(ctx context.Context, p paysera.CreatePaymentParams) (*paysera.CreatePaymentResult, error) {
	g.created = append(g.created, p)
	if g.createErr != nil {
		return nil, g.createErr
	}
	requestID := g.requestID
	if requestID == "" {
		requestID = fmt.Sprintf("pr-%s", p.OrderID)
	}
	return &paysera.CreatePaymentResult{
		Status:           "new",
		OrderID:          p.OrderID,
		PaymentRequestID: requestID,
		PaymentURL:       "https://provider.example/authorize/" + requestID,
	}, nil
}

func (g *fakeGateway) AuthorizeRecurringPayment(ctx context.Context, p paysera.AuthorizeParams) (*paysera.StatusResult, error) {
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	return &paysera.StatusResult{Status: "authorized"}, nil
}

func (g *fakeGateway) CapturePayment(ctx context.Context, paymentRequestID string) (*paysera.StatusResult, error) {
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &paysera.StatusResult{Status: "captured"}, nil
}

type fakeLocker struct {
	held       bool
	acquireErr error
	acquired   []string
	released   []string
}

func (l *fakeLocker) Acquire(key string, ttl time.Duration) (bool, error) {
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held {
		return false, nil
	}
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *fakeLocker) Release(key string) error {
	l.released = append(l.released, key)
	return nil
}

func endDate(daysFromNow int) *time.Time {
	d := time.Now().AddDate(0, 0, daysFromNow)
	return &d
}

func newTestService(repo *fakeRepo, gateway *fakeGateway) *Service {
	return NewService(repo, gateway, nil, DefaultConfig())
}

func TestRun_RenewsExpiringSubscriptions(t *testing.T) {
	previousEnd := *endDate(2)
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: &previousEnd, IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR", IsActive: true},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_abc", Provider: "paysera", IsActive: true},
		},
	}
	gateway := &fakeGateway{}

	summary, err := newTestService(repo, gateway).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Candidates: 1, Renewed: 1}, summary)

	order := repo.orderForUser(1)
	require.NotNil(t, order)
	assert.True(t, strings.HasPrefix(order.OrderID, "renewal_"), order.OrderID)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, models.ChargeStateCaptured, order.ChargeState)
	assert.Equal(t, 9.99, order.Amount)
	assert.Equal(t, "EUR", order.Currency)
	assert.True(t, order.IsRecurring)
	assert.NotNil(t, order.CompletedAt)

	// The extension is anchored to the previous end date, not to "today".
	wantEnd := previousEnd.AddDate(0, 0, 30)
	assert.True(t, repo.profiles[0].SubscriptionEndDate.Equal(wantEnd),
		"end date %s, want %s", repo.profiles[0].SubscriptionEndDate, wantEnd)
	assert.Equal(t, 0, repo.profiles[0].RenewalFailures)
}

func TestRun_MissingTokenDoesNotBlockOthers(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
			{UserID: 2, TierID: 10, SubscriptionEndDate: endDate(2), IsRecurringPayment: true},
			{UserID: 3, TierID: 10, SubscriptionEndDate: endDate(3), IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 4.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
			3: {UserID: 3, Token: "tok_3"},
		},
	}
	gateway := &fakeGateway{}

	secondEnd := *repo.profiles[1].SubscriptionEndDate

	summary, err := newTestService(repo, gateway).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 2, summary.Renewed)
	assert.Equal(t, 1, summary.Failed)

	// The failing subscription's end date stays untouched, and a missing
	// token is not a declined charge, so its failure counter stays at zero.
	assert.True(t, repo.profiles[1].SubscriptionEndDate.Equal(secondEnd))
	assert.Equal(t, 0, repo.profiles[1].RenewalFailures)
	assert.True(t, repo.profiles[1].IsRecurringPayment)
	assert.Nil(t, repo.orderForUser(2), "no order should be created before the token lookup")
}

func TestRun_SkipsProfilesWithoutTier(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 0, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
		},
	}
	summary, err := newTestService(repo, &fakeGateway{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Candidates: 1, Skipped: 1}, summary)
	assert.Empty(t, repo.orders)
}

func TestRun_CaptureFailureMarksOrderFailed(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
		},
	}
	gateway := &fakeGateway{captureErr: errors.New("payment capture failed: something-else")}

	summary, err := newTestService(repo, gateway).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	order := repo.orderForUser(1)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Equal(t, models.ChargeStateAuthorized, order.ChargeState)
	assert.Contains(t, order.FailureReason, "payment capture failed")
	assert.Equal(t, 1, repo.profiles[0].RenewalFailures)
	assert.True(t, repo.profiles[0].IsRecurringPayment)
}

func TestRun_DisablesAutoRenewAfterMaxFailures(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true, RenewalFailures: 2},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
		},
	}
	gateway := &fakeGateway{authorizeErr: errors.New("payment authorization failed: declined")}

	_, err := newTestService(repo, gateway).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, repo.profiles[0].RenewalFailures)
	assert.False(t, repo.profiles[0].IsRecurringPayment)
}

func TestRun_MissingPaymentRequestID(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
		},
	}
	gateway := &fakeGateway{requestID: " "}

	summary, err := newTestService(repo, gateway).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	order := repo.orderForUser(1)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
}

func TestRun_HeldLockSkipsProfile(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
		},
	}
	locker := &fakeLocker{held: true}

	summary, err := NewService(repo, &fakeGateway{}, locker, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Candidates: 1, Skipped: 1}, summary)
	assert.Empty(t, repo.orders)
	assert.Empty(t, locker.released)
}

func TestRun_LockBackendErrorCountedSeparately(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
		},
	}
	locker := &fakeLocker{acquireErr: errors.New("redis: connection refused")}

	summary, err := NewService(repo, &fakeGateway{}, locker, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	// A lock backend failure is not contention; it gets its own counter and
	// the profile is not charged without the overlap guard.
	assert.Equal(t, Summary{Candidates: 1, LockErrors: 1}, summary)
	assert.Empty(t, repo.orders)
}

func TestRun_AcquiredLockIsReleased(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
		},
	}
	locker := &fakeLocker{}

	summary, err := NewService(repo, &fakeGateway{}, locker, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Renewed)
	require.Len(t, locker.acquired, 1)
	assert.Equal(t, []string{"renew_lock:user:1"}, locker.acquired)
	assert.Equal(t, locker.acquired, locker.released)
}

func TestRun_QueryFailureAbortsBatch(t *testing.T) {
	repo := &fakeRepo{queryErr: errors.New("connection refused")}

	_, err := newTestService(repo, &fakeGateway{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query expiring subscriptions")
}

func TestRun_RequestsAreRecurring(t *testing.T) {
	repo := &fakeRepo{
		profiles: []models.UserPaymentProfile{
			{UserID: 1, TierID: 10, SubscriptionEndDate: endDate(1), IsRecurringPayment: true},
		},
		tiers: map[uint]*models.AccessTier{
			10: {ID: 10, Name: "Premium", Price: 9.99, Currency: "EUR"},
		},
		tokens: map[uint]*models.PaymentToken{
			1: {UserID: 1, Token: "tok_1"},
		},
	}
	gateway := &fakeGateway{}

	_, err := newTestService(repo, gateway).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, gateway.created, 1)
	assert.True(t, gateway.created[0].IsRecurring)
	assert.Equal(t, 9.99, gateway.created[0].Amount)
}
