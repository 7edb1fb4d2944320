package repositories

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"userdesk/internal/models"

	"github.com/google/uuid"
)

// MockUserProfileRepository is an in-memory implementation of UserProfileRepository.
type MockUserProfileRepository struct {
	profiles map[string]models.UserProfile
	mu       sync.RWMutex
	now      func() time.Time
}

// NewMockUserProfileRepository creates a new instance of MockUserProfileRepository.
func NewMockUserProfileRepository() *MockUserProfileRepository {
	return &MockUserProfileRepository{
		profiles: make(map[string]models.UserProfile),
		now:      time.Now,
	}
}

// GetAll returns all profiles, newest first.
func (r *MockUserProfileRepository) GetAll() ([]models.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profileList := make([]models.UserProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profileList = append(profileList, p)
	}
	slices.SortFunc(profileList, func(a, b models.UserProfile) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return profileList, nil
}

// GetByID returns a profile by its ID.
func (r *MockUserProfileRepository) GetByID(id string) (*models.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("user profile with ID %s: %w", id, ErrUserProfileNotFound)
	}
	return &profile, nil
}

// Create stores the draft under a fresh ID.
func (r *MockUserProfileRepository) Create(draft *models.NewUserProfile) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile := draft.Profile()
	profile.ID = uuid.New().String()
	profile.CreatedAt = r.now()
	profile.UpdatedAt = profile.CreatedAt
	r.profiles[profile.ID] = profile
	return &profile, nil
}

// Update applies the patch to an existing profile.
func (r *MockUserProfileRepository) Update(id string, patch *models.UserProfilePatch) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("user profile with ID %s: %w", id, ErrUserProfileNotFound)
	}
	patch.Apply(&profile)
	profile.UpdatedAt = r.now()
	r.profiles[id] = profile
	return &profile, nil
}

// Delete removes a profile by its ID.
func (r *MockUserProfileRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.profiles, id)
	return nil
}
