package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/models"
)

// UserRepository provides access to account records.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByVerificationToken(ctx context.Context, token string) (models.User, error)
	GetByResetToken(ctx context.Context, token string) (models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	normalized := strings.ToLower(strings.TrimSpace(email))
	if err := r.db.WithContext(ctx).Where("email = ?", normalized).First(&user).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) GetByVerificationToken(ctx context.Context, token string) (models.User, error) {
	return r.firstByToken(ctx, "verification_token", token)
}

func (r *userRepository) GetByResetToken(ctx context.Context, token string) (models.User, error) {
	return r.firstByToken(ctx, "reset_password_token", token)
}

func (r *userRepository) firstByToken(ctx context.Context, column, token string) (models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.User{}, gorm.ErrRecordNotFound
	}

	var user models.User
	if err := r.db.WithContext(ctx).Where(column+" = ?", token).First(&user).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}
