package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"userdesk/internal/handlers"
	"userdesk/internal/logger"
	"userdesk/internal/middleware"
	"userdesk/internal/models"
	"userdesk/internal/repositories"
	"userdesk/internal/services"
	"userdesk/internal/views"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testOrigin = "http://localhost:5173"

// setupApp sets up a Fiber app for testing with all handlers and services on top of repo.
func setupApp(repo repositories.UserProfileRepository) *fiber.App {
	log := logger.Nop()
	service := services.NewUserProfileService(repo, log)
	validate := services.NewValidator()
	dashboards := services.NewDashboards(func() *services.Dashboard {
		return services.NewDashboard(service, validate, log)
	})

	app := fiber.New(fiber.Config{
		Views:       views.Engine(),
		ViewsLayout: "layouts/main",
	})

	apiV1 := app.Group("/api/v1", middleware.CORS([]string{testOrigin}))
	handlers.NewUserProfileHandler(service, validate, log).RegisterRoutes(apiV1)
	handlers.NewConsoleHandler(dashboards, session.New(), log).RegisterRoutes(app)
	return app
}

// newSeededRepository returns a GORM repository on a private in-memory SQLite
// database holding John Doe and Jane Smith.
func newSeededRepository(t *testing.T) repositories.UserProfileRepository {
	t.Helper()
	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UserProfile{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repositories.NewGORMUserProfileRepository(db)
	for _, d := range []models.NewUserProfile{
		{Name: "John Doe", Email: "john@example.com", Role: models.RoleAdmin},
		{Name: "Jane Smith", Email: "jane@example.com", Role: models.RoleUser},
	} {
		_, err := repo.Create(&d)
		require.NoError(t, err)
	}
	return repo
}

// brokenRepository fails every call.
type brokenRepository struct{}

var errBroken = errors.New("store unreachable")

func (brokenRepository) GetAll() ([]models.UserProfile, error) { return nil, errBroken }
func (brokenRepository) GetByID(string) (*models.UserProfile, error) {
	return nil, errBroken
}
func (brokenRepository) Create(*models.NewUserProfile) (*models.UserProfile, error) {
	return nil, errBroken
}
func (brokenRepository) Update(string, *models.UserProfilePatch) (*models.UserProfile, error) {
	return nil, errBroken
}
func (brokenRepository) Delete(string) error { return errBroken }

func doJSON(t *testing.T, app *fiber.App, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func findByName(t *testing.T, repo repositories.UserProfileRepository, name string) *models.UserProfile {
	t.Helper()
	all, err := repo.GetAll()
	require.NoError(t, err)
	for i := range all {
		if all[i].Name == name {
			return &all[i]
		}
	}
	return nil
}

func TestUserAPI_CRUD(t *testing.T) {
	repo := newSeededRepository(t)
	app := setupApp(repo)

	// --- Create ---
	resp, raw := doJSON(t, app, http.MethodPost, "/api/v1/users", map[string]any{
		"name":   "Ada Lovelace",
		"email":  "ada@example.com",
		"phone":  "123-456-7890",
		"skills": []string{"Math", " Math "},
		"experience": map[string]string{
			"domain":    "Computing",
			"subDomain": "Algorithms",
			"years":     "5+",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var created models.UserProfile
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.RoleUser, created.Role)
	assert.Equal(t, []string{"Math"}, created.Skills)
	assert.Equal(t, "Algorithms", created.Experience.SubDomain)

	// --- Read ---
	resp, raw = doJSON(t, app, http.MethodGet, "/api/v1/users/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched models.UserProfile
	require.NoError(t, json.Unmarshal(raw, &fetched))
	assert.Equal(t, "ada@example.com", fetched.Email)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/users/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// --- Patch ---
	resp, raw = doJSON(t, app, http.MethodPatch, "/api/v1/users/"+created.ID, map[string]any{"role": "Moderator", "phone": ""})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var patched models.UserProfile
	require.NoError(t, json.Unmarshal(raw, &patched))
	assert.Equal(t, models.RoleModerator, patched.Role)
	assert.Equal(t, "", patched.Phone)
	assert.Equal(t, "Ada Lovelace", patched.Name)

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/users/"+created.ID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = doJSON(t, app, http.MethodPatch, "/api/v1/users/"+created.ID, map[string]any{"email": "foo@bar"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), "Invalid email format")

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/users/does-not-exist", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// --- Replace ---
	resp, raw = doJSON(t, app, http.MethodPut, "/api/v1/users/"+created.ID, map[string]any{
		"name":  "Ada King",
		"email": "ada.king@example.com",
		"role":  "Admin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var replaced models.UserProfile
	require.NoError(t, json.Unmarshal(raw, &replaced))
	assert.Equal(t, "Ada King", replaced.Name)
	assert.Empty(t, replaced.Skills)
	assert.True(t, replaced.Experience.IsZero())

	resp, _ = doJSON(t, app, http.MethodPut, "/api/v1/users/does-not-exist", map[string]any{
		"name":  "Nobody",
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// --- Delete ---
	resp, raw = doJSON(t, app, http.MethodDelete, "/api/v1/users/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "deleted successfully")

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/users/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/users/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "deleting twice succeeds")
}

func TestUserAPI_CreateValidation(t *testing.T) {
	app := setupApp(newSeededRepository(t))

	resp, raw := doJSON(t, app, http.MethodPost, "/api/v1/users", map[string]any{
		"name":  " ",
		"email": "foo@bar",
		"phone": "12345",
		"role":  "Guest",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Validation failed", body.Message)
	assert.Equal(t, "Name is required", body.Errors["name"])
	assert.Equal(t, "Invalid email format", body.Errors["email"])
	assert.Equal(t, "Phone number must be 10 digits", body.Errors["phone"])
	assert.Equal(t, "Role must be one of Admin, User, Moderator", body.Errors["role"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserAPI_ListSearchAndSort(t *testing.T) {
	app := setupApp(newSeededRepository(t))

	resp, raw := doJSON(t, app, http.MethodGet, "/api/v1/users?sort=name&order=desc", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profiles []models.UserProfile
	require.NoError(t, json.Unmarshal(raw, &profiles))
	require.Len(t, profiles, 2)
	assert.Equal(t, "John Doe", profiles[0].Name)
	assert.Equal(t, "Jane Smith", profiles[1].Name)

	resp, raw = doJSON(t, app, http.MethodGet, "/api/v1/users?q=ADMIN", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profiles = nil
	require.NoError(t, json.Unmarshal(raw, &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "John Doe", profiles[0].Name)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/users?sort=phone", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/users?sort=name&order=up", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserAPI_StoreFailures(t *testing.T) {
	app := setupApp(brokenRepository{})

	resp, raw := doJSON(t, app, http.MethodGet, "/api/v1/users", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(raw), "Failed to load users")

	resp, raw = doJSON(t, app, http.MethodPost, "/api/v1/users", map[string]any{"name": "Ada", "email": "ada@example.com"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(raw), "Could not create user")

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/users/x", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUserAPI_CORSPreflight(t *testing.T) {
	app := setupApp(newSeededRepository(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
}

// browser replays the session cookie between console requests.
type browser struct {
	t       *testing.T
	app     *fiber.App
	cookies []*http.Cookie
}

func (b *browser) do(method, target string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	resp, err := b.app.Test(req, -1)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	if cookies := resp.Cookies(); len(cookies) > 0 {
		b.cookies = cookies
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(raw)
}

func TestConsole_ListAndSort(t *testing.T) {
	b := &browser{t: t, app: setupApp(newSeededRepository(t))}

	resp, page := b.do(http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "User Management")
	assert.Contains(t, page, "John Doe")
	assert.Contains(t, page, "Jane Smith")
	assert.Less(t, strings.Index(page, "Jane Smith"), strings.Index(page, "John Doe"))
	require.NotEmpty(t, b.cookies)

	resp, _ = b.do(http.MethodGet, "/users/sort/name", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, page = b.do(http.MethodGet, "/users", nil)
	assert.Less(t, strings.Index(page, "John Doe"), strings.Index(page, "Jane Smith"))

	resp, _ = b.do(http.MethodGet, "/users/sort/phone", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, page = b.do(http.MethodGet, "/users?q=jane", nil)
	assert.Contains(t, page, "Jane Smith")
	assert.NotContains(t, page, "John Doe")

	_, page = b.do(http.MethodGet, "/users?q=nobody", nil)
	assert.Contains(t, page, "No users found")
}

func TestConsole_CreateUser(t *testing.T) {
	repo := newSeededRepository(t)
	b := &browser{t: t, app: setupApp(repo)}
	b.do(http.MethodGet, "/users", nil)

	resp, page := b.do(http.MethodGet, "/users/new", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "Add New User")

	fields := url.Values{
		"name":             {"Ada Lovelace"},
		"email":            {"ada@example.com"},
		"role":             {"Admin"},
		"phone":            {"1234567890"},
		"experience_years": {"5+"},
		"skill_input":      {"Math"},
		"action":           {"add_skill"},
	}
	resp, _ = b.do(http.MethodPost, "/users/new", fields)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users/new", resp.Header.Get("Location"))

	_, page = b.do(http.MethodGet, "/users/new", nil)
	assert.Contains(t, page, `value="remove_skill:Math"`)
	assert.Contains(t, page, `value="Ada Lovelace"`)
	assert.Nil(t, findByName(t, repo, "Ada Lovelace"), "list edits are not saved")

	fields.Set("email", "foo@bar")
	fields.Set("action", "save")
	resp, page = b.do(http.MethodPost, "/users/new", fields)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, page, "Invalid email format")
	assert.Nil(t, findByName(t, repo, "Ada Lovelace"))

	fields.Set("email", "ada@example.com")
	resp, _ = b.do(http.MethodPost, "/users/new", fields)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users", resp.Header.Get("Location"))

	ada := findByName(t, repo, "Ada Lovelace")
	require.NotNil(t, ada)
	assert.Equal(t, models.RoleAdmin, ada.Role)
	assert.Equal(t, []string{"Math"}, ada.Skills)
	assert.Equal(t, "5+", ada.Experience.Years)

	_, page = b.do(http.MethodGet, "/users", nil)
	assert.Contains(t, page, "User Management")
	assert.Contains(t, page, "Ada Lovelace")
}

func TestConsole_CancelAddDiscardsDraft(t *testing.T) {
	b := &browser{t: t, app: setupApp(newSeededRepository(t))}
	b.do(http.MethodGet, "/users/new", nil)
	b.do(http.MethodPost, "/users/new", url.Values{"name": {"Draft Person"}, "role": {"User"}, "action": {"add_skill"}, "skill_input": {"x"}})

	resp, _ := b.do(http.MethodPost, "/users/new/cancel", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, page := b.do(http.MethodGet, "/users/new", nil)
	assert.NotContains(t, page, "Draft Person")
}

func TestConsole_SearchKeepsSurroundingSpaces(t *testing.T) {
	b := &browser{t: t, app: setupApp(newSeededRepository(t))}

	_, page := b.do(http.MethodGet, "/users?q=e%20", nil)
	assert.Contains(t, page, `value="e "`)
	assert.Contains(t, page, "Jane Smith")
	assert.NotContains(t, page, "John Doe")

	_, page = b.do(http.MethodGet, "/users?q=%20", nil)
	assert.Contains(t, page, "Jane Smith")
	assert.Contains(t, page, "John Doe")
}

func TestConsole_TypedListInputsAreAdded(t *testing.T) {
	repo := newSeededRepository(t)
	b := &browser{t: t, app: setupApp(repo)}
	b.do(http.MethodGet, "/users/new", nil)

	fields := url.Values{
		"name":          {"Grace Hopper"},
		"email":         {"grace@example.com"},
		"role":          {"User"},
		"project_input": {"COBOL"},
		"action":        {"add_skill"},
	}
	resp, _ := b.do(http.MethodPost, "/users/new", fields)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users/new", resp.Header.Get("Location"))

	_, page := b.do(http.MethodGet, "/users/new", nil)
	assert.Contains(t, page, `value="remove_project:COBOL"`)
	assert.NotContains(t, page, `value="remove_skill:`)

	fields.Del("project_input")
	fields.Set("skill_input", "Compilers")
	fields.Set("action", "enter")
	resp, _ = b.do(http.MethodPost, "/users/new", fields)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users/new", resp.Header.Get("Location"))
	assert.Nil(t, findByName(t, repo, "Grace Hopper"), "list edits are not saved")

	_, page = b.do(http.MethodGet, "/users/new", nil)
	assert.Contains(t, page, `value="remove_skill:Compilers"`)

	fields.Del("skill_input")
	resp, _ = b.do(http.MethodPost, "/users/new", fields)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users", resp.Header.Get("Location"))

	grace := findByName(t, repo, "Grace Hopper")
	require.NotNil(t, grace)
	assert.Equal(t, []string{"Compilers"}, grace.Skills)
	assert.Equal(t, []string{"COBOL"}, grace.Projects)
}

func TestConsole_ViewEditAndDelete(t *testing.T) {
	repo := newSeededRepository(t)
	b := &browser{t: t, app: setupApp(repo)}
	b.do(http.MethodGet, "/users", nil)
	jane := findByName(t, repo, "Jane Smith")
	require.NotNil(t, jane)

	// --- View ---
	resp, page := b.do(http.MethodGet, "/users/"+jane.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "jane@example.com")
	assert.Contains(t, page, "No experience information available")
	resp, _ = b.do(http.MethodPost, "/users/"+jane.ID+"/close", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = b.do(http.MethodGet, "/users/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// --- Edit ---
	resp, page = b.do(http.MethodGet, "/users/"+jane.ID+"/edit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "Edit User")

	resp, _ = b.do(http.MethodPost, "/users/"+jane.ID+"/edit", url.Values{
		"name":   {"Jane Doe"},
		"email":  {"jane@example.com"},
		"role":   {"Moderator"},
		"action": {"save"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	updated := findByName(t, repo, "Jane Doe")
	require.NotNil(t, updated)
	assert.Equal(t, models.RoleModerator, updated.Role)

	// --- Delete ---
	resp, _ = b.do(http.MethodPost, "/users/"+jane.ID+"/delete", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users/"+jane.ID+"/delete", resp.Header.Get("Location"))
	assert.NotNil(t, findByName(t, repo, "Jane Doe"), "delete needs a confirmation first")

	resp, page = b.do(http.MethodGet, "/users/"+jane.ID+"/delete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "Are you sure you want to delete Jane Doe?")

	b.do(http.MethodPost, "/users/"+jane.ID+"/delete/cancel", url.Values{})
	assert.NotNil(t, findByName(t, repo, "Jane Doe"))

	b.do(http.MethodGet, "/users/"+jane.ID+"/delete", nil)
	resp, _ = b.do(http.MethodPost, "/users/"+jane.ID+"/delete", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users", resp.Header.Get("Location"))
	assert.Nil(t, findByName(t, repo, "Jane Doe"))

	_, page = b.do(http.MethodGet, "/users", nil)
	assert.NotContains(t, page, "Jane Doe")
}

func TestConsole_StoreFailureShowsBanner(t *testing.T) {
	b := &browser{t: t, app: setupApp(brokenRepository{})}

	resp, page := b.do(http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, "Failed to load users")

	resp, _ = b.do(http.MethodPost, "/users/reload", url.Values{})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, page = b.do(http.MethodPost, "/users/new", url.Values{
		"name":   {"Ada"},
		"email":  {"ada@example.com"},
		"role":   {"User"},
		"action": {"save"},
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, page, "Failed to create user")
	assert.Contains(t, page, `value="Ada"`)
}

func TestConsole_SessionsAreIsolated(t *testing.T) {
	app := setupApp(newSeededRepository(t))
	first := &browser{t: t, app: app}
	second := &browser{t: t, app: app}

	first.do(http.MethodGet, "/users/new", nil)
	first.do(http.MethodPost, "/users/new", url.Values{"name": {"Only Mine"}, "role": {"User"}, "action": {"add_project"}, "project_input": {"P"}})

	_, page := second.do(http.MethodGet, "/users/new", nil)
	assert.NotContains(t, page, "Only Mine")

	_, page = first.do(http.MethodGet, "/users/new", nil)
	assert.Contains(t, page, "Only Mine")
}
