package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ordelia/chat-api/internal/models"
)

// ProfileRepository resolves customer/vendor profile ownership, which is the
// basis of every room access decision.
type ProfileRepository interface {
	CustomerByID(ctx context.Context, id uint) (models.CustomerProfile, error)
	VendorByID(ctx context.Context, id uint) (models.VendorProfile, error)
	CustomerByUserID(ctx context.Context, userID uint) (models.CustomerProfile, error)
	VendorByUserID(ctx context.Context, userID uint) (models.VendorProfile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository constructs a profile repository backed by GORM.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) CustomerByID(ctx context.Context, id uint) (models.CustomerProfile, error) {
	var profile models.CustomerProfile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return models.CustomerProfile{}, err
	}
	return profile, nil
}

func (r *profileRepository) VendorByID(ctx context.Context, id uint) (models.VendorProfile, error) {
	var profile models.VendorProfile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return models.VendorProfile{}, err
	}
	return profile, nil
}

func (r *profileRepository) CustomerByUserID(ctx context.Context, userID uint) (models.CustomerProfile, error) {
	var profile models.CustomerProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return models.CustomerProfile{}, err
	}
	return profile, nil
}

func (r *profileRepository) VendorByUserID(ctx context.Context, userID uint) (models.VendorProfile, error) {
	var profile models.VendorProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return models.VendorProfile{}, err
	}
	return profile, nil
}
