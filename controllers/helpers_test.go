package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-pos/controllers"
	"github.com/yeremiapane/restaurant-pos/database"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/middlewares"
	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/services"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testWebhookSecret = "whsec_controllers"
	testJWTSecret     = "controllers-jwt-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.InitLogger()
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type stubGateway struct {
	requests []services.PaymentIntentRequest
	canceled []string
}

func (g *stubGateway) CreatePaymentIntent(_ context.Context, req services.PaymentIntentRequest) (*services.PaymentIntent, error) {
	g.requests = append(g.requests, req)
	id := fmt.Sprintf("pi_%d", req.OrderID)
	return &services.PaymentIntent{ID: id, ClientSecret: id + "_secret_abc", Amount: req.AmountMinor}, nil
}

func (g *stubGateway) CapturePaymentIntent(_ context.Context, id string) (*services.PaymentIntent, error) {
	return &services.PaymentIntent{ID: id, Status: "succeeded"}, nil
}

func (g *stubGateway) CancelPaymentIntent(_ context.Context, id string) (*services.PaymentIntent, error) {
	g.canceled = append(g.canceled, id)
	return &services.PaymentIntent{ID: id, Status: "canceled"}, nil
}

func (g *stubGateway) CreateConnectionToken(context.Context) (string, error) {
	return "pst_test_123", nil
}

type testApp struct {
	db      *gorm.DB
	engine  *gin.Engine
	catalog *services.CatalogService
	orders  *services.OrderService
	auth    *services.AuthService
	gateway *stubGateway
	sushi   models.Category
	miso    models.MenuItem
	roll    models.MenuItem
	token   string
}

func newTestApp(t *testing.T) *testApp {
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

	app := &testApp{db: db, gateway: &stubGateway{}}
	app.sushi = models.Category{Name: "Sushi"}
	require.NoError(t, db.Create(&app.sushi).Error)
	app.miso = models.MenuItem{Name: "Miso Soup", Price: decimal.RequireFromString("4.99"), CategoryID: &app.sushi.ID}
	app.roll = models.MenuItem{Name: "California Roll", Price: decimal.RequireFromString("8.99"), CategoryID: &app.sushi.ID}
	require.NoError(t, db.Create(&app.miso).Error)
	require.NoError(t, db.Create(&app.roll).Error)

	secret := []byte(testJWTSecret)
	app.catalog = services.NewCatalogService(db, time.Second)
	app.orders = services.NewOrderService(db, app.catalog, app.gateway, hub.Noop{}, decimal.RequireFromString("0.08"), time.Second)
	verifier := services.NewStripeGateway("sk_test_unused", testWebhookSecret, time.Second)
	payments := services.NewPaymentService(db, app.gateway, verifier, hub.Noop{}, "usd", time.Second, time.Second)
	app.auth = services.NewAuthService(db, secret, time.Hour, time.Second)
	uploads := services.NewUploadService(t.TempDir(), "http://localhost:8080", app.catalog)

	admin, err := app.auth.CreateAdmin(context.Background(), "admin@example.com", "supersecret")
	require.NoError(t, err)
	app.token, err = utils.GenerateToken(secret, admin.ID, admin.Email, utils.RoleAdmin, time.Hour)
	require.NoError(t, err)

	categoryCtrl := controllers.NewCategoryController(app.catalog)
	menuCtrl := controllers.NewMenuController(app.catalog)
	orderCtrl := controllers.NewOrderController(app.orders)
	paymentCtrl := controllers.NewPaymentController(payments)
	userCtrl := controllers.NewUserController(app.auth)
	adminCtrl := controllers.NewAdminController(db, uploads, time.Second)

	r := gin.New()
	r.GET("/categories", categoryCtrl.GetAllCategories)
	r.GET("/menu-items", menuCtrl.GetAllMenus)
	r.GET("/menu-items/:id", menuCtrl.GetMenuByID)
	r.POST("/orders", orderCtrl.CreateOrder)
	r.GET("/orders/:id", orderCtrl.GetOrderByID)
	r.POST("/payment", paymentCtrl.CreatePayment)
	r.POST("/payment/:order_id/capture", paymentCtrl.CapturePayment)
	r.GET("/terminal/connection-token", paymentCtrl.ConnectionToken)
	r.POST("/webhooks/payment", paymentCtrl.HandleWebhook)
	r.POST("/login", userCtrl.Login)

	adminGroup := r.Group("/admin", middlewares.AdminAuth(secret))
	adminGroup.POST("/categories", categoryCtrl.CreateCategory)
	adminGroup.PUT("/categories/:id", categoryCtrl.UpdateCategory)
	adminGroup.DELETE("/categories/:id", categoryCtrl.DeleteCategory)
	adminGroup.POST("/menu-items", menuCtrl.CreateMenu)
	adminGroup.PUT("/menu-items/:id", menuCtrl.UpdateMenu)
	adminGroup.DELETE("/menu-items/:id", menuCtrl.DeleteMenu)
	adminGroup.GET("/orders", orderCtrl.GetAllOrders)
	adminGroup.POST("/orders/:id/cancel", orderCtrl.CancelOrder)
	adminGroup.POST("/uploads", adminCtrl.UploadImage)
	adminGroup.GET("/diagnostics", adminCtrl.Diagnostics)
	adminGroup.POST("/init-db", adminCtrl.InitDB)
	app.engine = r
	return app
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testApp) admin() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, w.Code, w.Body.String())
}
