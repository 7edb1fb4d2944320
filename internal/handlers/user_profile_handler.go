package handlers

import (
	"errors"
	"fmt"

	"userdesk/internal/models"
	"userdesk/internal/repositories"
	"userdesk/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserProfileHandler handles HTTP requests for user profiles.
type UserProfileHandler struct {
	service  *services.UserProfileService
	validate *validator.Validate
	log      *zap.Logger
}

// NewUserProfileHandler creates a new UserProfileHandler.
func NewUserProfileHandler(service *services.UserProfileService, v *validator.Validate, log *zap.Logger) *UserProfileHandler {
	return &UserProfileHandler{
		service:  service,
		validate: v,
		log:      log,
	}
}

// RegisterRoutes registers the user profile routes with the Fiber app.
func (h *UserProfileHandler) RegisterRoutes(router fiber.Router) {
	userRoutes := router.Group("/users")
	userRoutes.Get("/", h.HandleGetUsers)
	userRoutes.Get("/:id", h.HandleGetUserByID)
	userRoutes.Post("/", h.HandleCreateUser)
	userRoutes.Put("/:id", h.HandleReplaceUser)
	userRoutes.Patch("/:id", h.HandlePatchUser)
	userRoutes.Delete("/:id", h.HandleDeleteUser)
}

// HandleGetUsers lists profiles newest first. q filters by name, email or role;
// sort (name, email, role) and order (asc, desc) reorder the result.
func (h *UserProfileHandler) HandleGetUsers(c *fiber.Ctx) error {
	var field services.SortField
	if raw := c.Query("sort"); raw != "" {
		f, ok := services.ParseSortField(raw)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": fmt.Sprintf("Cannot sort by %q", raw),
			})
		}
		field = f
	}
	order := services.SortOrder(c.Query("order", string(services.Ascending)))
	if order != services.Ascending && order != services.Descending {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "order must be asc or desc",
		})
	}

	profiles, err := h.service.ListAll()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message": services.BannerLoadFailed,
			"error":   err.Error(),
		})
	}

	search := c.Query("q")
	if field == "" {
		return c.JSON(services.Filter(profiles, search))
	}
	return c.JSON(services.FilterAndSort(profiles, services.ListQuery{Search: search, Field: field, Order: order}))
}

// HandleGetUserByID retrieves a single profile by its ID.
func (h *UserProfileHandler) HandleGetUserByID(c *fiber.Ctx) error {
	id := c.Params("id")
	profile, err := h.service.GetByID(id)
	if err != nil {
		h.log.Error("failed to get user", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve user",
			"error":   err.Error(),
		})
	}
	if profile == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": fmt.Sprintf("User with ID %s not found", id),
		})
	}
	return c.JSON(profile)
}

// HandleCreateUser creates a new profile.
func (h *UserProfileHandler) HandleCreateUser(c *fiber.Ctx) error {
	draft, err := h.parseDraft(c)
	if err != nil {
		return invalidBody(c, err)
	}
	if verr := services.ValidateDraft(h.validate, draft); verr != nil {
		return validationFailed(c, verr)
	}

	profile, err := h.service.Create(*draft)
	if err != nil {
		return h.writeError(c, err, "Could not create user")
	}
	return c.Status(fiber.StatusCreated).JSON(profile)
}

// HandleReplaceUser overwrites every editable field of a profile.
func (h *UserProfileHandler) HandleReplaceUser(c *fiber.Ctx) error {
	id := c.Params("id")
	draft, err := h.parseDraft(c)
	if err != nil {
		return invalidBody(c, err)
	}
	if verr := services.ValidateDraft(h.validate, draft); verr != nil {
		return validationFailed(c, verr)
	}

	profile, err := h.service.Update(id, models.PatchFromDraft(*draft))
	if err != nil {
		return h.writeError(c, err, "Could not update user")
	}
	return c.JSON(profile)
}

// HandlePatchUser changes only the fields present in the body.
// The merged profile has to pass the same rules as a full submission.
func (h *UserProfileHandler) HandlePatchUser(c *fiber.Ctx) error {
	id := c.Params("id")
	var patch models.UserProfilePatch
	if err := c.BodyParser(&patch); err != nil {
		h.log.Warn("failed to parse request body", zap.Error(err))
		return invalidBody(c, err)
	}
	if patch.IsEmpty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "No fields to update",
		})
	}

	existing, err := h.service.GetByID(id)
	if err != nil {
		return h.writeError(c, err, "Could not update user")
	}
	if existing == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": fmt.Sprintf("User with ID %s not found", id),
		})
	}
	merged := *existing
	patch.Apply(&merged)
	draft := merged.Draft()
	if verr := services.ValidateDraft(h.validate, &draft); verr != nil {
		return validationFailed(c, verr)
	}

	profile, err := h.service.Update(id, &patch)
	if err != nil {
		return h.writeError(c, err, "Could not update user")
	}
	return c.JSON(profile)
}

// HandleDeleteUser removes a profile. Deleting an unknown ID succeeds.
func (h *UserProfileHandler) HandleDeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Delete(id); err != nil {
		return h.writeError(c, err, "Could not delete user")
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("User %s deleted successfully", id),
	})
}

func (h *UserProfileHandler) parseDraft(c *fiber.Ctx) (*models.NewUserProfile, error) {
	var draft models.NewUserProfile
	if err := c.BodyParser(&draft); err != nil {
		h.log.Warn("failed to parse request body", zap.Error(err))
		return nil, err
	}
	if draft.Role == "" {
		draft.Role = models.RoleUser
	}
	return &draft, nil
}

func invalidBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

func validationFailed(c *fiber.Ctx, verr services.ValidationErrors) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  verr,
	})
}

func (h *UserProfileHandler) writeError(c *fiber.Ctx, err error, message string) error {
	var verr services.ValidationErrors
	if errors.As(err, &verr) {
		return validationFailed(c, verr)
	}
	if errors.Is(err, repositories.ErrUserProfileNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "User not found",
			"error":   err.Error(),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
