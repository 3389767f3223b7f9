package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
)

// MenuItemInput is the editable part of a menu item.
type MenuItemInput struct {
	Name        string
	Description *string
	Price       decimal.Decimal
	ImageURL    *string
	CategoryID  uint
}

// CatalogService manages categories and menu items.
type CatalogService struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewCatalogService(db *gorm.DB, queryTimeout time.Duration) *CatalogService {
	return &CatalogService{db: db, queryTimeout: queryTimeout}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	categories := make([]models.Category, 0)
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, utils.WrapDBError(err, "failed to list categories")
	}
	return categories, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var category models.Category
	if err := s.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, categoryLookupError(err, id)
	}
	return &category, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.NewValidationError("category name is required")
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	category := models.Category{Name: name}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCategoryNameFree(tx, name, 0); err != nil {
			return err
		}
		return tx.Create(&category).Error
	})
	if err != nil {
		return nil, utils.WrapDBError(err, "failed to create category")
	}
	return &category, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id uint, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.NewValidationError("category name is required")
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var category models.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&category, id).Error; err != nil {
			return categoryLookupError(err, id)
		}
		if err := ensureCategoryNameFree(tx, name, id); err != nil {
			return err
		}
		category.Name = name
		return tx.Save(&category).Error
	})
	if err != nil {
		return nil, utils.WrapDBError(err, "failed to update category")
	}
	return &category, nil
}

// DeleteCategory refuses to remove a category that still has menu items.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uint) error {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, id).Error; err != nil {
			return categoryLookupError(err, id)
		}
		var items int64
		if err := tx.Model(&models.MenuItem{}).Where("category_id = ?", id).Count(&items).Error; err != nil {
			return err
		}
		if items > 0 {
			return utils.NewConflictError("category %q still has %d menu items", category.Name, items)
		}
		return tx.Delete(&category).Error
	})
	return utils.WrapDBError(err, "failed to delete category")
}

// ListMenuItems returns items with their category name, ordered by category
// then name. A non-nil categoryID restricts the result to that category.
func (s *CatalogService) ListMenuItems(ctx context.Context, categoryID *uint) ([]models.MenuItem, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	q := menuItemsWithCategory(s.db.WithContext(ctx))
	if categoryID != nil {
		q = q.Where("menu_items.category_id = ?", *categoryID)
	}

	items := make([]models.MenuItem, 0)
	if err := q.Order("categories.name ASC, menu_items.name ASC").Find(&items).Error; err != nil {
		return nil, utils.WrapDBError(err, "failed to list menu items")
	}
	return items, nil
}

func (s *CatalogService) GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	return findMenuItem(s.db.WithContext(ctx), id)
}

// PricesFor returns the current catalog price of every id that exists.
func (s *CatalogService) PricesFor(ctx context.Context, ids []uint) (map[uint]decimal.Decimal, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var items []models.MenuItem
	if err := s.db.WithContext(ctx).Select("id", "price").Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, utils.WrapDBError(err, "failed to load menu prices")
	}
	prices := make(map[uint]decimal.Decimal, len(items))
	for _, item := range items {
		prices[item.ID] = item.Price
	}
	return prices, nil
}

func (s *CatalogService) CreateMenuItem(ctx context.Context, in MenuItemInput) (*models.MenuItem, error) {
	if err := validateMenuItem(&in); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var created *models.MenuItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureMenuItemWritable(tx, in, 0); err != nil {
			return err
		}
		categoryID := in.CategoryID
		item := models.MenuItem{
			Name:        in.Name,
			Description: in.Description,
			Price:       in.Price,
			ImageURL:    in.ImageURL,
			CategoryID:  &categoryID,
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		var err error
		created, err = findMenuItem(tx, item.ID)
		return err
	})
	if err != nil {
		return nil, utils.WrapDBError(err, "failed to create menu item")
	}
	return created, nil
}

func (s *CatalogService) UpdateMenuItem(ctx context.Context, id uint, in MenuItemInput) (*models.MenuItem, error) {
	if err := validateMenuItem(&in); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var updated *models.MenuItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.MenuItem
		if err := tx.First(&item, id).Error; err != nil {
			return menuItemLookupError(err, id)
		}
		if err := ensureMenuItemWritable(tx, in, id); err != nil {
			return err
		}
		categoryID := in.CategoryID
		item.Name = in.Name
		item.Description = in.Description
		item.Price = in.Price
		item.ImageURL = in.ImageURL
		item.CategoryID = &categoryID
		if err := tx.Omit("Category").Save(&item).Error; err != nil {
			return err
		}
		var err error
		updated, err = findMenuItem(tx, id)
		return err
	})
	if err != nil {
		return nil, utils.WrapDBError(err, "failed to update menu item")
	}
	return updated, nil
}

// DeleteMenuItem refuses to remove an item that appears on any order so
// historic orders keep their references.
func (s *CatalogService) DeleteMenuItem(ctx context.Context, id uint) error {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.MenuItem
		if err := tx.First(&item, id).Error; err != nil {
			return menuItemLookupError(err, id)
		}
		var refs int64
		if err := tx.Model(&models.OrderItem{}).Where("menu_item_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return utils.NewConflictError("menu item %q is referenced by existing orders", item.Name)
		}
		return tx.Delete(&item).Error
	})
	return utils.WrapDBError(err, "failed to delete menu item")
}

func (s *CatalogService) SetMenuItemImage(ctx context.Context, id uint, url string) error {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&models.MenuItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{"image_url": url, "updated_at": time.Now()})
	if res.Error != nil {
		return utils.WrapDBError(res.Error, "failed to update menu item image")
	}
	if res.RowsAffected == 0 {
		return utils.NewNotFoundError("menu item %d not found", id)
	}
	return nil
}

func menuItemsWithCategory(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.MenuItem{}).
		Select("menu_items.*, categories.name AS category_name").
		Joins("LEFT JOIN categories ON categories.id = menu_items.category_id")
}

func findMenuItem(tx *gorm.DB, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := menuItemsWithCategory(tx).Where("menu_items.id = ?", id).Take(&item).Error; err != nil {
		return nil, menuItemLookupError(err, id)
	}
	return &item, nil
}

func validateMenuItem(in *MenuItemInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return utils.NewValidationError("menu item name is required")
	}
	if in.Price.IsNegative() {
		return utils.NewValidationError("price must not be negative")
	}
	if utils.ExceedsMoneyColumn(in.Price) {
		return utils.NewValidationError("price must not exceed %s", utils.MaxMoney.StringFixed(2))
	}
	if !utils.HasMoneyPrecision(in.Price) {
		return utils.NewValidationError("price must have at most two decimal places")
	}
	if in.CategoryID == 0 {
		return utils.NewValidationError("category_id is required")
	}
	return nil
}

func ensureCategoryNameFree(tx *gorm.DB, name string, exceptID uint) error {
	var count int64
	if err := tx.Model(&models.Category{}).Where("name = ? AND id <> ?", name, exceptID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewConflictError("category %q already exists", name)
	}
	return nil
}

func ensureMenuItemWritable(tx *gorm.DB, in MenuItemInput, exceptID uint) error {
	var category models.Category
	if err := tx.First(&category, in.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewValidationError("category %d does not exist", in.CategoryID)
		}
		return err
	}
	var count int64
	if err := tx.Model(&models.MenuItem{}).Where("name = ? AND id <> ?", in.Name, exceptID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.NewConflictError("menu item %q already exists", in.Name)
	}
	return nil
}

func categoryLookupError(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError("category %d not found", id)
	}
	return err
}

func menuItemLookupError(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError("menu item %d not found", id)
	}
	return err
}
