package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-pos/services"
	"github.com/yeremiapane/restaurant-pos/utils"
)

type MenuController struct {
	Catalog *services.CatalogService
}

func NewMenuController(catalog *services.CatalogService) *MenuController {
	return &MenuController{Catalog: catalog}
}

type menuItemRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	ImageURL    *string          `json:"image_url"`
	CategoryID  uint             `json:"category_id" binding:"required"`
}

func (r menuItemRequest) input() services.MenuItemInput {
	return services.MenuItemInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       *r.Price,
		ImageURL:    r.ImageURL,
		CategoryID:  r.CategoryID,
	}
}

// GetAllMenus lists menu items, optionally for one category.
func (mc *MenuController) GetAllMenus(c *gin.Context) {
	var categoryID *uint
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			utils.RespondFailure(c, utils.NewValidationError("invalid category_id"))
			return
		}
		v := uint(id)
		categoryID = &v
	}

	items, err := mc.Catalog.ListMenuItems(c.Request.Context(), categoryID)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of menu items", items)
}

func (mc *MenuController) GetMenuByID(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	item, err := mc.Catalog.GetMenuItem(c.Request.Context(), id)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu item detail", item)
}

func (mc *MenuController) CreateMenu(c *gin.Context) {
	var req menuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondFailure(c, invalidBody(err))
		return
	}

	item, err := mc.Catalog.CreateMenuItem(c.Request.Context(), req.input())
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.InfoLogger.Printf("Menu item created: %s (%s)", item.Name, item.Price.StringFixed(2))
	utils.RespondJSON(c, http.StatusCreated, "Menu item created", item)
}

func (mc *MenuController) UpdateMenu(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	var req menuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondFailure(c, invalidBody(err))
		return
	}

	item, err := mc.Catalog.UpdateMenuItem(c.Request.Context(), id, req.input())
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu item updated", item)
}

func (mc *MenuController) DeleteMenu(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	if err := mc.Catalog.DeleteMenuItem(c.Request.Context(), id); err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu item deleted", nil)
}
