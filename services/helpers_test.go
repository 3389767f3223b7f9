package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-pos/database"
	"github.com/yeremiapane/restaurant-pos/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testTaxRate = decimal.RequireFromString("0.08")

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type testMenu struct {
	Sushi      models.Category
	Drinks     models.Category
	MisoSoup   models.MenuItem
	California models.MenuItem
	GreenTea   models.MenuItem
}

func seedTestMenu(t *testing.T, db *gorm.DB) testMenu {
	t.Helper()
	m := testMenu{
		Sushi:  models.Category{Name: "Sushi"},
		Drinks: models.Category{Name: "Drinks"},
	}
	require.NoError(t, db.Create(&m.Sushi).Error)
	require.NoError(t, db.Create(&m.Drinks).Error)

	m.MisoSoup = models.MenuItem{Name: "Miso Soup", Price: decimal.RequireFromString("4.99"), CategoryID: &m.Sushi.ID}
	m.California = models.MenuItem{Name: "California Roll", Price: decimal.RequireFromString("8.99"), CategoryID: &m.Sushi.ID}
	m.GreenTea = models.MenuItem{Name: "Green Tea", Price: decimal.RequireFromString("2.50"), CategoryID: &m.Drinks.ID}
	for _, item := range []*models.MenuItem{&m.MisoSoup, &m.California, &m.GreenTea} {
		require.NoError(t, db.Create(item).Error)
	}
	return m
}

type publishedEvent struct {
	Room    string
	Event   string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, room, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Room: room, Event: event, Payload: payload})
	return nil
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

// fakeGateway replays an intent for a repeated idempotency key, like the
// processor does.
type fakeGateway struct {
	mu        sync.Mutex
	requests  []PaymentIntentRequest
	byKey     map[string]*PaymentIntent
	captured  []string
	canceled  []string
	err       error
	cancelErr error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	if g.byKey == nil {
		g.byKey = make(map[string]*PaymentIntent)
	}
	if intent, ok := g.byKey[req.IdempotencyKey]; ok {
		return intent, nil
	}
	id := fmt.Sprintf("pi_test_%d_%s_%d", req.OrderID, req.PaymentMethod, len(g.byKey)+1)
	intent := &PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       req.AmountMinor,
		Currency:     req.Currency,
	}
	g.byKey[req.IdempotencyKey] = intent
	return intent, nil
}

func (g *fakeGateway) CancelPaymentIntent(_ context.Context, intentID string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	g.canceled = append(g.canceled, intentID)
	return &PaymentIntent{ID: intentID, Status: "canceled"}, nil
}

func (g *fakeGateway) Canceled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.canceled...)
}

func (g *fakeGateway) CapturePaymentIntent(_ context.Context, intentID string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.captured = append(g.captured, intentID)
	return &PaymentIntent{ID: intentID, Status: "succeeded"}, nil
}

func (g *fakeGateway) CreateConnectionToken(context.Context) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "pst_test_token", nil
}

func newTestOrderService(db *gorm.DB, pub *recordingPublisher) *OrderService {
	return newTestOrderServiceWithGateway(db, pub, &fakeGateway{})
}

func newTestOrderServiceWithGateway(db *gorm.DB, pub *recordingPublisher, gw *fakeGateway) *OrderService {
	catalog := NewCatalogService(db, time.Second)
	return NewOrderService(db, catalog, gw, pub, testTaxRate, time.Second)
}

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
