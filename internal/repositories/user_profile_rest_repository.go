package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"userdesk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// RESTConfig holds the connection details of a PostgREST (Supabase) table.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	Table   string
	Timeout time.Duration
}

// RESTError is the error body PostgREST answers with on a rejected request.
type RESTError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *RESTError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store responded with status %d", e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("store responded with status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("store responded with status %d: %s", e.Status, e.Message)
}

// RESTUserProfileRepository talks to a hosted user_profiles table over the PostgREST API.
// Every call is a single request; nothing is retried.
type RESTUserProfileRepository struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
}

// NewRESTUserProfileRepository creates a new instance of RESTUserProfileRepository.
func NewRESTUserProfileRepository(cfg RESTConfig) (*RESTUserProfileRepository, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid store URL %q", cfg.BaseURL)
	}
	table := cfg.Table
	if table == "" {
		table = models.UserProfile{}.TableName()
	}
	return &RESTUserProfileRepository{
		endpoint: strings.TrimRight(base.String(), "/") + "/rest/v1/" + url.PathEscape(table),
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
	}, nil
}

// GetAll selects every row ordered by created_at descending.
func (r *RESTUserProfileRepository) GetAll() ([]models.UserProfile, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "created_at.desc")

	var profiles []models.UserProfile
	if err := r.do(fiber.MethodGet, query, nil, &profiles); err != nil {
		return nil, fmt.Errorf("failed to get all user profiles: %w", err)
	}
	if profiles == nil {
		profiles = []models.UserProfile{}
	}
	return profiles, nil
}

// GetByID selects the row with the given ID.
func (r *RESTUserProfileRepository) GetByID(id string) (*models.UserProfile, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("id", "eq."+id)

	var profiles []models.UserProfile
	if err := r.do(fiber.MethodGet, query, nil, &profiles); err != nil {
		return nil, fmt.Errorf("failed to get user profile by ID %s: %w", id, err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("user profile with ID %s: %w", id, ErrUserProfileNotFound)
	}
	return &profiles[0], nil
}

// Create inserts one row and returns its stored representation.
func (r *RESTUserProfileRepository) Create(draft *models.NewUserProfile) (*models.UserProfile, error) {
	var profiles []models.UserProfile
	if err := r.do(fiber.MethodPost, nil, []*models.NewUserProfile{draft}, &profiles); err != nil {
		return nil, fmt.Errorf("failed to create user profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, errors.New("failed to create user profile: store returned no row")
	}
	return &profiles[0], nil
}

// Update patches the row with the given ID and returns its new representation.
func (r *RESTUserProfileRepository) Update(id string, patch *models.UserProfilePatch) (*models.UserProfile, error) {
	query := url.Values{}
	query.Set("id", "eq."+id)

	var profiles []models.UserProfile
	if err := r.do(fiber.MethodPatch, query, patch, &profiles); err != nil {
		return nil, fmt.Errorf("failed to update user profile %s: %w", id, err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("user profile with ID %s: %w", id, ErrUserProfileNotFound)
	}
	return &profiles[0], nil
}

// Delete removes the row with the given ID. PostgREST answers the same way whether or not it existed.
func (r *RESTUserProfileRepository) Delete(id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)

	if err := r.do(fiber.MethodDelete, query, nil, nil); err != nil {
		return fmt.Errorf("failed to delete user profile %s: %w", id, err)
	}
	return nil
}

func (r *RESTUserProfileRepository) do(method string, query url.Values, in, out any) error {
	target := r.endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var agent *fiber.Agent
	switch method {
	case fiber.MethodPost:
		agent = fiber.Post(target)
	case fiber.MethodPatch:
		agent = fiber.Patch(target)
	case fiber.MethodDelete:
		agent = fiber.Delete(target)
	default:
		agent = fiber.Get(target)
	}

	agent.Set("apikey", r.apiKey).
		Set(fiber.HeaderAuthorization, "Bearer "+r.apiKey).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if method != fiber.MethodGet {
		agent.Set("Prefer", "return=representation")
	}
	if r.timeout > 0 {
		agent.Timeout(r.timeout)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		agent.ContentType(fiber.MIMEApplicationJSON).Body(body)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("store request failed: %w", errors.Join(errs...))
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		restErr := &RESTError{Status: status}
		if len(body) > 0 {
			_ = json.Unmarshal(body, restErr)
		}
		return restErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}
	return nil
}
