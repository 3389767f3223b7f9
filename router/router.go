package router

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-pos/controllers"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/middlewares"
	"github.com/yeremiapane/restaurant-pos/services"
	"gorm.io/gorm"
)

const maxRequestBody = 6 << 20

// Services groups everything the HTTP layer calls into.
type Services struct {
	Catalog  *services.CatalogService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Auth     *services.AuthService
	Uploads  *services.UploadService
}

type Options struct {
	JWTSecret      []byte
	CORSOrigin     string
	ConnectTimeout time.Duration
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

func SetupRouter(db *gorm.DB, realtime *hub.Hub, svc Services, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Apply security middlewares
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(opts.CORSOrigin))
	r.Use(middlewares.MaxBodySize(maxRequestBody))

	// Hanya izinkan akses ke file gambar
	r.Use(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/uploads/") &&
			!imageExtensions[strings.ToLower(path.Ext(c.Request.URL.Path))] {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	})
	r.Static(strings.TrimSuffix(services.ImageURLPrefix, "/"), svc.Uploads.Dir())

	// Inisialisasi controller
	userCtrl := controllers.NewUserController(svc.Auth)
	categoryCtrl := controllers.NewCategoryController(svc.Catalog)
	menuCtrl := controllers.NewMenuController(svc.Catalog)
	orderCtrl := controllers.NewOrderController(svc.Orders)
	paymentCtrl := controllers.NewPaymentController(svc.Payments)
	adminCtrl := controllers.NewAdminController(db, svc.Uploads, opts.ConnectTimeout)
	realtimeCtrl := controllers.NewRealtimeController(realtime, opts.CORSOrigin)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.POST("/login", middlewares.NewStrictRateLimiter(), userCtrl.Login)

	r.GET("/categories", categoryCtrl.GetAllCategories)
	r.GET("/menu-items", menuCtrl.GetAllMenus)
	r.GET("/menu-items/:id", menuCtrl.GetMenuByID)

	// Membuat order (customer tidak perlu login)
	r.POST("/orders", orderCtrl.CreateOrder)
	r.GET("/orders/:id", orderCtrl.GetOrderByID)

	paymentLimiter := middlewares.PaymentRateLimiter()
	payment := r.Group("/payment", paymentLimiter, middlewares.PaymentSecurityHeaders(), middlewares.LogPaymentRequest())
	{
		payment.POST("", paymentCtrl.CreatePayment)
		payment.POST("/:order_id/capture", paymentCtrl.CapturePayment)
	}
	r.GET("/terminal/connection-token", paymentLimiter, middlewares.PaymentSecurityHeaders(), paymentCtrl.ConnectionToken)

	// Dipanggil oleh payment processor, autentikasi lewat signature
	r.POST("/webhooks/payment", middlewares.LogPaymentRequest(), paymentCtrl.HandleWebhook)

	// Realtime order updates
	r.GET("/ws", realtimeCtrl.Subscribe)

	// ----------------------------------------------------------------
	//                      ADMIN ROUTES
	// ----------------------------------------------------------------
	admin := r.Group("/admin")
	admin.Use(middlewares.AdminAuth(opts.JWTSecret))

	// MENU CATEGORIES
	admin.POST("/categories", categoryCtrl.CreateCategory)
	admin.PUT("/categories/:id", categoryCtrl.UpdateCategory)
	admin.DELETE("/categories/:id", categoryCtrl.DeleteCategory)

	// MENU ITEMS
	admin.POST("/menu-items", menuCtrl.CreateMenu)
	admin.PUT("/menu-items/:id", menuCtrl.UpdateMenu)
	admin.DELETE("/menu-items/:id", menuCtrl.DeleteMenu)

	// ORDERS
	admin.GET("/orders", orderCtrl.GetAllOrders)
	admin.GET("/orders/:id", orderCtrl.GetOrderByID)
	admin.POST("/orders/:id/cancel", orderCtrl.CancelOrder)

	admin.POST("/uploads", adminCtrl.UploadImage)
	admin.GET("/diagnostics", adminCtrl.Diagnostics)
	admin.POST("/init-db", adminCtrl.InitDB)

	return r
}
