package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-pos/services"
	"github.com/yeremiapane/restaurant-pos/utils"
)

type CategoryController struct {
	Catalog *services.CatalogService
}

func NewCategoryController(catalog *services.CatalogService) *CategoryController {
	return &CategoryController{Catalog: catalog}
}

type categoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// GetAllCategories
func (cc *CategoryController) GetAllCategories(c *gin.Context) {
	categories, err := cc.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of categories", categories)
}

func (cc *CategoryController) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondFailure(c, invalidBody(err))
		return
	}

	category, err := cc.Catalog.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.InfoLogger.Printf("Category created: %s", category.Name)
	utils.RespondJSON(c, http.StatusCreated, "Category created", category)
}

func (cc *CategoryController) UpdateCategory(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondFailure(c, invalidBody(err))
		return
	}

	category, err := cc.Catalog.UpdateCategory(c.Request.Context(), id, req.Name)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Category updated", category)
}

func (cc *CategoryController) DeleteCategory(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	if err := cc.Catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Category deleted", nil)
}
