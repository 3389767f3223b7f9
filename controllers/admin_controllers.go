package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-pos/database"
	"github.com/yeremiapane/restaurant-pos/middlewares"
	"github.com/yeremiapane/restaurant-pos/services"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
)

type AdminController struct {
	DB             *gorm.DB
	Uploads        *services.UploadService
	ConnectTimeout time.Duration
}

func NewAdminController(db *gorm.DB, uploads *services.UploadService, connectTimeout time.Duration) *AdminController {
	return &AdminController{DB: db, Uploads: uploads, ConnectTimeout: connectTimeout}
}

// Diagnostics reports whether the database is reachable.
func (ac *AdminController) Diagnostics(c *gin.Context) {
	report := services.CheckDatabase(c.Request.Context(), ac.DB, ac.ConnectTimeout)
	if !report.Success {
		utils.ErrorLogger.Printf("Diagnostics: %s", report.Error)
		c.JSON(http.StatusServiceUnavailable, utils.JSONResponse{
			Status:  false,
			Message: report.Message,
			Data:    report,
		})
		return
	}
	utils.RespondJSON(c, http.StatusOK, report.Message, report)
}

// InitDB runs migrations and loads the sample menu.
func (ac *AdminController) InitDB(c *gin.Context) {
	db := ac.DB.WithContext(c.Request.Context())
	if err := database.Migrate(db); err != nil {
		utils.RespondFailure(c, utils.NewPersistenceError("failed to migrate database", err))
		return
	}
	if err := database.Seed(db); err != nil {
		utils.RespondFailure(c, utils.NewPersistenceError("failed to seed database", err))
		return
	}
	utils.InfoLogger.Printf("Database initialized by admin %d", c.GetUint(middlewares.ContextUserID))
	utils.RespondJSON(c, http.StatusOK, "Database initialized", nil)
}

// UploadImage stores a menu image. With menu_item_id the item is updated too.
func (ac *AdminController) UploadImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		utils.RespondFailure(c, utils.NewValidationError("file is required"))
		return
	}

	var menuItemID *uint
	if raw := c.PostForm("menu_item_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			utils.RespondFailure(c, utils.NewValidationError("invalid menu_item_id"))
			return
		}
		v := uint(id)
		menuItemID = &v
	}

	url, err := ac.Uploads.SaveImage(c.Request.Context(), file, menuItemID)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Image uploaded", gin.H{"url": url})
}
