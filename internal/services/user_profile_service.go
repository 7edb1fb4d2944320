package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"userdesk/internal/models"
	"userdesk/internal/repositories"
	"userdesk/pkg/rabbitmq"

	"go.uber.org/zap"
)

// EventPublisher receives a notification after every successful mutation.
type EventPublisher interface {
	PublishProfileEvent(event rabbitmq.ProfileEvent) error
}

// UserProfileService is the record store client used by the console and the API.
type UserProfileService struct {
	repo         repositories.UserProfileRepository
	publisher    EventPublisher
	demoFallback bool
	log          *zap.Logger
}

// Option configures a UserProfileService.
type Option func(*UserProfileService)

// WithPublisher sets the change event publisher. A nil publisher disables events.
func WithPublisher(p EventPublisher) Option {
	return func(s *UserProfileService) {
		s.publisher = p
	}
}

// WithDemoFallback makes ListAll answer with DemoUserProfiles when the store fails.
func WithDemoFallback(enabled bool) Option {
	return func(s *UserProfileService) {
		s.demoFallback = enabled
	}
}

// NewUserProfileService creates a new UserProfileService.
func NewUserProfileService(repo repositories.UserProfileRepository, log *zap.Logger, opts ...Option) *UserProfileService {
	s := &UserProfileService{
		repo: repo,
		log:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DemoUserProfiles is the fixed data set served when the store cannot be read.
func DemoUserProfiles() []models.UserProfile {
	now := time.Now().UTC()
	return []models.UserProfile{
		{ID: "1", Name: "John Doe", Email: "john@example.com", Role: models.RoleAdmin, CreatedAt: now},
		{ID: "2", Name: "Jane Smith", Email: "jane@example.com", Role: models.RoleUser, CreatedAt: now},
	}
}

// ListAll returns every profile, newest first.
func (s *UserProfileService) ListAll() ([]models.UserProfile, error) {
	profiles, err := s.repo.GetAll()
	if err != nil {
		if s.demoFallback {
			s.log.Warn("failed to fetch users, serving demo data", zap.Error(err))
			return DemoUserProfiles(), nil
		}
		s.log.Error("failed to fetch users", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return profiles, nil
}

// GetByID returns the profile with the given ID, or nil when it does not exist.
func (s *UserProfileService) GetByID(id string) (*models.UserProfile, error) {
	profile, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserProfileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return profile, nil
}

// Create stores a new profile. The store assigns ID and timestamps.
func (s *UserProfileService) Create(draft models.NewUserProfile) (*models.UserProfile, error) {
	normalizeDraft(&draft)
	if verr := checkStoreInvariants(draft.Name, draft.Email, draft.Role); verr != nil {
		return nil, verr
	}

	profile, err := s.repo.Create(&draft)
	if err != nil {
		s.log.Error("failed to create user", zap.String("email", draft.Email), zap.Error(err))
		return nil, &StoreWriteError{Op: "create", Err: err}
	}
	s.publish(rabbitmq.EventProfileCreated, profile.ID, profile.Name, profile.Email)
	return profile, nil
}

// Update applies a partial update to the profile with the given ID.
func (s *UserProfileService) Update(id string, patch *models.UserProfilePatch) (*models.UserProfile, error) {
	if patch == nil {
		patch = &models.UserProfilePatch{}
	}
	normalizePatch(patch)
	if verr := checkPatchInvariants(patch); verr != nil {
		return nil, verr
	}

	profile, err := s.repo.Update(id, patch)
	if err != nil {
		s.log.Error("failed to update user", zap.String("id", id), zap.Error(err))
		return nil, &StoreWriteError{Op: "update", Err: err}
	}
	s.publish(rabbitmq.EventProfileUpdated, profile.ID, profile.Name, profile.Email)
	return profile, nil
}

// Delete removes the profile with the given ID.
func (s *UserProfileService) Delete(id string) error {
	if err := s.repo.Delete(id); err != nil {
		s.log.Error("failed to delete user", zap.String("id", id), zap.Error(err))
		return &StoreWriteError{Op: "delete", Err: err}
	}
	s.publish(rabbitmq.EventProfileDeleted, id, "", "")
	return nil
}

func (s *UserProfileService) publish(eventType, id, name, email string) {
	if s.publisher == nil {
		return
	}
	event := rabbitmq.ProfileEvent{
		Type:       eventType,
		ID:         id,
		Name:       name,
		Email:      email,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishProfileEvent(event); err != nil {
		s.log.Warn("failed to publish profile event", zap.String("type", eventType), zap.String("id", id), zap.Error(err))
	}
}

func normalizeDraft(d *models.NewUserProfile) {
	if d.Role == "" {
		d.Role = models.RoleUser
	}
	d.Skills = uniqueTrimmed(d.Skills)
	d.Projects = uniqueTrimmed(d.Projects)
}

func normalizePatch(p *models.UserProfilePatch) {
	if p.Skills != nil {
		skills := uniqueTrimmed(*p.Skills)
		p.Skills = &skills
	}
	if p.Projects != nil {
		projects := uniqueTrimmed(*p.Projects)
		p.Projects = &projects
	}
}

// uniqueTrimmed drops blanks and repeats while keeping first-seen order.
func uniqueTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func checkStoreInvariants(name, email string, role models.Role) ValidationErrors {
	verr := ValidationErrors{}
	if strings.TrimSpace(name) == "" {
		verr["name"] = msgNameRequired
	}
	if strings.TrimSpace(email) == "" {
		verr["email"] = msgEmailRequired
	}
	if !role.Valid() {
		verr["role"] = msgRoleInvalid
	}
	if len(verr) == 0 {
		return nil
	}
	return verr
}

func checkPatchInvariants(p *models.UserProfilePatch) ValidationErrors {
	verr := ValidationErrors{}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		verr["name"] = msgNameRequired
	}
	if p.Email != nil && strings.TrimSpace(*p.Email) == "" {
		verr["email"] = msgEmailRequired
	}
	if p.Role != nil && !p.Role.Valid() {
		verr["role"] = msgRoleInvalid
	}
	if len(verr) == 0 {
		return nil
	}
	return verr
}
