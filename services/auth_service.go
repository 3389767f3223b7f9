package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type AuthService struct {
	db           *gorm.DB
	secret       []byte
	sessionTTL   time.Duration
	queryTimeout time.Duration
}

func NewAuthService(db *gorm.DB, secret []byte, sessionTTL, queryTimeout time.Duration) *AuthService {
	return &AuthService{db: db, secret: secret, sessionTTL: sessionTTL, queryTimeout: queryTimeout}
}

// Login checks admin credentials and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.AdminUser, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	email = normalizeEmail(email)
	var user models.AdminUser
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, utils.NewAuthError("invalid email or password")
		}
		return "", nil, utils.WrapDBError(err, "failed to load admin user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, utils.NewAuthError("invalid email or password")
	}

	token, err := utils.GenerateToken(s.secret, user.ID, user.Email, utils.RoleAdmin, s.sessionTTL)
	if err != nil {
		return "", nil, utils.NewPersistenceError("failed to sign token", err)
	}
	utils.InfoLogger.Printf("Admin %s logged in", user.Email)
	return token, &user, nil
}

func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*models.AdminUser, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, utils.NewValidationError("a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, utils.NewValidationError("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, utils.NewPersistenceError("failed to hash password", err)
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	user := models.AdminUser{Email: email, PasswordHash: string(hash)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.AdminUser{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.NewConflictError("admin %s already exists", email)
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, utils.WrapDBError(err, "failed to create admin user")
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
