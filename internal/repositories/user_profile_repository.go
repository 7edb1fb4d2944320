package repositories

import (
	"errors"

	"userdesk/internal/models"
)

// ErrUserProfileNotFound is returned when no profile matches the requested ID.
var ErrUserProfileNotFound = errors.New("user profile not found")

// UserProfileRepository defines the interface for user profile data access.
// GetAll returns profiles newest-created first. Delete of a missing ID is not an error.
type UserProfileRepository interface {
	GetAll() ([]models.UserProfile, error)
	GetByID(id string) (*models.UserProfile, error)
	Create(draft *models.NewUserProfile) (*models.UserProfile, error)
	Update(id string, patch *models.UserProfilePatch) (*models.UserProfile, error)
	Delete(id string) error
}
