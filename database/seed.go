package database

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
)

type seedItem struct {
	Name        string
	Description string
	Price       string
	ImageURL    string
	Category    string
}

var seedCategories = []string{"Nigiri & Sashimi", "Rolls", "Special Rolls", "Appetizers", "Drinks"}

var seedItems = []seedItem{
	{"California Roll", "Crab, avocado, and cucumber", "8.99", "/images/california-roll.jpg", "Rolls"},
	{"Spicy Tuna Roll", "Spicy tuna with cucumber", "9.99", "/images/spicy-tuna.jpg", "Rolls"},
	{"Salmon Nigiri", "Fresh salmon over rice", "6.99", "/images/salmon-nigiri.jpg", "Nigiri & Sashimi"},
	{"Tuna Nigiri", "Fresh tuna over rice", "6.50", "/images/nigiri-menu.png", "Nigiri & Sashimi"},
	{"Rainbow Roll", "California roll topped with assorted fish", "11.99", "/images/combo-menu.png", "Special Rolls"},
	{"Miso Soup", "Traditional Japanese soup", "3.99", "/images/miso-soup.jpg", "Appetizers"},
	{"Green Tea", "Hot Japanese green tea", "2.99", "/images/green-tea.jpg", "Drinks"},
}

// Seed inserts the sample catalog. Rows that already exist by name are left
// untouched, so running it twice is harmless.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		categoryIDs := make(map[string]uint, len(seedCategories))
		for _, name := range seedCategories {
			category := models.Category{Name: name}
			if err := tx.Where(models.Category{Name: name}).FirstOrCreate(&category).Error; err != nil {
				return err
			}
			categoryIDs[name] = category.ID
		}

		for _, item := range seedItems {
			var existing models.MenuItem
			err := tx.Where("name = ?", item.Name).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			categoryID := categoryIDs[item.Category]
			description, imageURL := item.Description, item.ImageURL
			menuItem := models.MenuItem{
				Name:        item.Name,
				Description: &description,
				Price:       decimal.RequireFromString(item.Price),
				ImageURL:    &imageURL,
				CategoryID:  &categoryID,
			}
			if err := tx.Create(&menuItem).Error; err != nil {
				return err
			}
		}

		utils.InfoLogger.Printf("Seeded %d categories and %d menu items", len(seedCategories), len(seedItems))
		return nil
	})
}
