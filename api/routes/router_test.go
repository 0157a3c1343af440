package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/beatstore-backend/internal/checkout"
	"github.com/angelmondragon/beatstore-backend/internal/licenses"
	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/internal/transactions"
	paypalwebhook "github.com/angelmondragon/beatstore-backend/internal/webhooks/paypal"
	pkgAuth "github.com/angelmondragon/beatstore-backend/pkg/auth"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

type windowLimiter struct{ hits map[string]int64 }

func (l *windowLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	l.hits[scope]++
	return l.hits[scope] <= limit, l.hits[scope], nil
}

type stubCartService struct{ calls int }

func (s *stubCartService) NewGuestToken() uuid.UUID { return uuid.New() }

func (s *stubCartService) GetCart(ctx context.Context, id cart.Identity) (*cart.View, error) {
	s.calls++
	return &cart.View{}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, id cart.Identity, beatID, licenseID uuid.UUID) (*cart.View, error) {
	s.calls++
	return &cart.View{}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, id cart.Identity, beatID uuid.UUID) (*cart.View, error) {
	s.calls++
	return &cart.View{}, nil
}

func (s *stubCartService) Clear(ctx context.Context, id cart.Identity) (*cart.View, error) {
	s.calls++
	return &cart.View{}, nil
}

func (s *stubCartService) Import(ctx context.Context, userID, token uuid.UUID) (*cart.View, error) {
	s.calls++
	return &cart.View{}, nil
}

type stubCheckoutService struct{ creates int }

func (s *stubCheckoutService) CreateCheckout(ctx context.Context, buyerID uuid.UUID) (*checkoutsvc.Session, error) {
	s.creates++
	return &checkoutsvc.Session{
		RedirectURL: "https://gateway.test/checkoutnow?token=EC-1",
		Token:       "EC-1",
		Transaction: &models.Transaction{ID: uuid.New(), UserID: buyerID},
	}, nil
}

func (s *stubCheckoutService) Finalize(ctx context.Context, buyerID uuid.UUID, token, payerID string) (*models.Transaction, error) {
	return &models.Transaction{ID: uuid.New(), UserID: buyerID}, nil
}

func (s *stubCheckoutService) Refresh(ctx context.Context, buyerID uuid.UUID, token string) (*models.Transaction, error) {
	return &models.Transaction{ID: uuid.New(), UserID: buyerID}, nil
}

type stubTransactionsService struct{}

func (stubTransactionsService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	return &models.Transaction{ID: id, UserID: userID}, nil
}

func (stubTransactionsService) List(ctx context.Context, params transactions.ListParams) (*transactions.ListResult, error) {
	return &transactions.ListResult{}, nil
}

type stubLicensesService struct{}

func (stubLicensesService) SeedDefaults(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]models.License, error) {
	return nil, nil
}

func (stubLicensesService) CreateLicense(ctx context.Context, userID uuid.UUID, input licenses.CreateLicenseInput) (*models.License, error) {
	return &models.License{ID: uuid.New(), UserID: userID, Name: input.Name}, nil
}

func (stubLicensesService) ListLicenses(ctx context.Context, params licenses.ListParams) (*licenses.ListResult, error) {
	return &licenses.ListResult{}, nil
}

func (stubLicensesService) GetLicense(ctx context.Context, userID, licenseID uuid.UUID) (*models.License, error) {
	return &models.License{ID: licenseID, UserID: userID}, nil
}

func (stubLicensesService) UpdateLicense(ctx context.Context, userID, licenseID uuid.UUID, input licenses.UpdateLicenseInput) (*models.License, error) {
	return &models.License{ID: licenseID, UserID: userID}, nil
}

func (stubLicensesService) DeleteLicense(ctx context.Context, userID, licenseID uuid.UUID) error {
	return nil
}

type stubIPNService struct{}

func (stubIPNService) HandleNotification(ctx context.Context, n *paypalwebhook.Notification) (*settlement.Result, error) {
	return &settlement.Result{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "beatstore", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			GuestCartLimit:  2,
			GuestCartWindow: time.Minute,
		},
	}
}

type routerFixture struct {
	handler  http.Handler
	cart     *stubCartService
	checkout *stubCheckoutService
	signer   *pkgAuth.Signer
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	cfg := testConfig()
	cartSvc := &stubCartService{}
	checkoutSvc := &stubCheckoutService{}
	signer, err := pkgAuth.NewSigner(cfg.JWT)
	require.NoError(t, err)
	handler := NewRouter(Deps{
		Config:       cfg,
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:           stubPinger{},
		Redis:        stubPinger{},
		Responses:    &memoryStore{data: map[string]string{}},
		Limiter:      &windowLimiter{hits: map[string]int64{}},
		Tokens:       signer,
		Metrics:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
		Cart:         cartSvc,
		Checkout:     checkoutSvc,
		Transactions: stubTransactionsService{},
		Licenses:     stubLicensesService{},
		IPN:          stubIPNService{},
	})
	return &routerFixture{handler: handler, cart: cartSvc, checkout: checkoutSvc, signer: signer}
}

func (f *routerFixture) bearer(t *testing.T) string {
	t.Helper()
	token, err := f.signer.Mint(time.Now(), pkgAuth.Subject{UserID: uuid.New()})
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newRouterFixture(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestGuestCartNeedsNoAccount(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/cart/guest", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/cart/guest/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.cart.calls)
}

func TestAccountRoutesRequireBearer(t *testing.T) {
	f := newRouterFixture(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/cart"},
		{http.MethodPost, "/api/v1/checkout"},
		{http.MethodGet, "/api/v1/transactions"},
		{http.MethodGet, "/api/v1/licenses"},
	} {
		rec := f.do(httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
	assert.Zero(t, f.cart.calls)
}

func TestAccountCartWithBearer(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", f.bearer(t))
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.cart.calls)
}

func TestCheckoutRequiresIdempotencyKeyAndReplays(t *testing.T) {
	f := newRouterFixture(t)
	auth := f.bearer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("Authorization", auth)
	rec := f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.checkout.creates)

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(""))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Idempotency-Key", "checkout-1")
		rec = f.do(req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 1, f.checkout.creates)
}

func TestRefreshIsNotIdempotencyGuarded(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/EC-1/refresh", nil)
	req.Header.Set("Authorization", f.bearer(t))
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuestCartCreationIsRateLimited(t *testing.T) {
	f := newRouterFixture(t)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(httptest.NewRequest(http.MethodPost, "/api/v1/cart/guest", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
}

func TestLicenseCreateReplaysWithSameKey(t *testing.T) {
	f := newRouterFixture(t)
	auth := f.bearer(t)

	var ids []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses", strings.NewReader(`{"name":"Premium","wav":true}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Idempotency-Key", "license-1")
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var env struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
		ids = append(ids, env.Data.ID)
	}
	assert.Equal(t, ids[0], ids[1])
}

func TestPayPalWebhookWithoutClientFailsClosed(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader("txn_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
