package repositories

import (
	"errors"
	"fmt"

	"userdesk/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMUserProfileRepository is a GORM implementation of UserProfileRepository.
type GORMUserProfileRepository struct {
	db *gorm.DB
}

// NewGORMUserProfileRepository creates a new instance of GORMUserProfileRepository.
func NewGORMUserProfileRepository(db *gorm.DB) *GORMUserProfileRepository {
	return &GORMUserProfileRepository{
		db: db,
	}
}

// GetAll retrieves all profiles, newest first.
func (r *GORMUserProfileRepository) GetAll() ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	if err := r.db.Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to get all user profiles: %w", err)
	}
	return profiles, nil
}

// GetByID retrieves a single profile by its ID.
func (r *GORMUserProfileRepository) GetByID(id string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user profile with ID %s: %w", id, ErrUserProfileNotFound)
		}
		return nil, fmt.Errorf("failed to get user profile by ID %s: %w", id, err)
	}
	return &profile, nil
}

// Create inserts the draft and returns the stored row.
func (r *GORMUserProfileRepository) Create(draft *models.NewUserProfile) (*models.UserProfile, error) {
	profile := draft.Profile()
	profile.ID = uuid.New().String()
	if err := r.db.Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create user profile: %w", err)
	}
	return &profile, nil
}

// Update applies the patch to an existing profile. UpdatedAt is refreshed by GORM.
func (r *GORMUserProfileRepository) Update(id string, patch *models.UserProfilePatch) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&profile, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user profile with ID %s: %w", id, ErrUserProfileNotFound)
			}
			return err
		}
		patch.Apply(&profile)
		return tx.Save(&profile).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user profile %s: %w", id, err)
	}
	return &profile, nil
}

// Delete removes a profile by its ID. Missing rows are ignored.
func (r *GORMUserProfileRepository) Delete(id string) error {
	if err := r.db.Delete(&models.UserProfile{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete user profile %s: %w", id, err)
	}
	return nil
}
