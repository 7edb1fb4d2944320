package handlers

import (
	"errors"
	"strings"

	"userdesk/internal/models"
	"userdesk/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"
)

const dashboardKey = "dashboard"

// ConsoleHandler serves the server-rendered admin console.
// Every browser session gets its own services.Dashboard.
type ConsoleHandler struct {
	dashboards *services.Dashboards
	sessions   *session.Store
	log        *zap.Logger
}

// NewConsoleHandler creates a new ConsoleHandler.
func NewConsoleHandler(dashboards *services.Dashboards, sessions *session.Store, log *zap.Logger) *ConsoleHandler {
	return &ConsoleHandler{
		dashboards: dashboards,
		sessions:   sessions,
		log:        log,
	}
}

// RegisterRoutes registers the console routes with the Fiber app.
func (h *ConsoleHandler) RegisterRoutes(router fiber.Router) {
	users := router.Group("/users", h.withDashboard)
	users.Get("/", h.HandleList)
	users.Post("/reload", h.HandleReload)
	users.Get("/sort/:field", h.HandleSort)

	users.Get("/new", h.HandleAddForm)
	users.Post("/new", h.HandleAddSubmit)
	users.Post("/new/cancel", h.HandleAddCancel)

	users.Get("/:id", h.HandleView)
	users.Post("/:id/close", h.HandleViewClose)
	users.Get("/:id/edit", h.HandleEditForm)
	users.Post("/:id/edit", h.HandleEditSubmit)
	users.Post("/:id/edit/cancel", h.HandleEditCancel)
	users.Get("/:id/delete", h.HandleDeleteConfirm)
	users.Post("/:id/delete", h.HandleDelete)
	users.Post("/:id/delete/cancel", h.HandleDeleteCancel)
}

// withDashboard resolves the console of the caller's session and performs its first load.
func (h *ConsoleHandler) withDashboard(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		h.log.Error("failed to open session", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Could not open session")
	}
	id := sess.ID()
	sess.Set("console", true)
	if err := sess.Save(); err != nil {
		h.log.Error("failed to save session", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Could not save session")
	}

	d := h.dashboards.Get(id)
	d.EnsureLoaded()
	c.Locals(dashboardKey, d)
	return c.Next()
}

func dashboardOf(c *fiber.Ctx) *services.Dashboard {
	return c.Locals(dashboardKey).(*services.Dashboard)
}

// HandleList renders the list. A q parameter replaces the search term.
func (h *ConsoleHandler) HandleList(c *fiber.Ctx) error {
	d := dashboardOf(c)
	if c.Request().URI().QueryArgs().Has("q") {
		d.Search(c.Query("q"))
	}
	return h.render(c, d, fiber.StatusOK)
}

// HandleReload re-fetches the collection from the store.
func (h *ConsoleHandler) HandleReload(c *fiber.Ctx) error {
	d := dashboardOf(c)
	if err := d.Load(); err != nil {
		return h.render(c, d, fiber.StatusServiceUnavailable)
	}
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleSort toggles the sort on a column header.
func (h *ConsoleHandler) HandleSort(c *fiber.Ctx) error {
	field, ok := services.ParseSortField(c.Params("field"))
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "Unknown sort field")
	}
	dashboardOf(c).ToggleSort(field)
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleAddForm switches to the add view.
func (h *ConsoleHandler) HandleAddForm(c *fiber.Ctx) error {
	d := dashboardOf(c)
	d.ShowAdd()
	return h.render(c, d, fiber.StatusOK)
}

// HandleAddSubmit applies the posted fields to the add draft and runs the requested action.
func (h *ConsoleHandler) HandleAddSubmit(c *fiber.Ctx) error {
	d := dashboardOf(c)
	d.ShowAdd()
	action, err := h.applyForm(c, d.AddForm())
	if err != nil {
		return err
	}
	if action != actionSave {
		return c.Redirect("/users/new", fiber.StatusSeeOther)
	}
	if err := d.SubmitCreate(); err != nil {
		return h.render(c, d, submitStatus(err))
	}
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleAddCancel returns to the list and discards the add draft.
func (h *ConsoleHandler) HandleAddCancel(c *fiber.Ctx) error {
	dashboardOf(c).ShowList()
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleView opens the read-only profile overlay.
func (h *ConsoleHandler) HandleView(c *fiber.Ctx) error {
	d := dashboardOf(c)
	if err := d.StartView(c.Params("id")); err != nil {
		return h.render(c, d, fiber.StatusNotFound)
	}
	return h.render(c, d, fiber.StatusOK)
}

// HandleViewClose closes the profile overlay.
func (h *ConsoleHandler) HandleViewClose(c *fiber.Ctx) error {
	dashboardOf(c).CloseView()
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleEditForm opens the edit overlay.
func (h *ConsoleHandler) HandleEditForm(c *fiber.Ctx) error {
	d := dashboardOf(c)
	if err := d.StartEdit(c.Params("id")); err != nil {
		return h.render(c, d, fiber.StatusNotFound)
	}
	return h.render(c, d, fiber.StatusOK)
}

// HandleEditSubmit applies the posted fields to the edit draft and runs the requested action.
func (h *ConsoleHandler) HandleEditSubmit(c *fiber.Ctx) error {
	d := dashboardOf(c)
	id := c.Params("id")
	if err := d.StartEdit(id); err != nil {
		return h.render(c, d, fiber.StatusNotFound)
	}
	action, err := h.applyForm(c, d.EditForm())
	if err != nil {
		return err
	}
	if action != actionSave {
		return c.Redirect("/users/"+id+"/edit", fiber.StatusSeeOther)
	}
	if err := d.SubmitUpdate(); err != nil {
		return h.render(c, d, submitStatus(err))
	}
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleEditCancel closes the edit overlay and discards its draft.
func (h *ConsoleHandler) HandleEditCancel(c *fiber.Ctx) error {
	dashboardOf(c).CancelEdit()
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleDeleteConfirm asks for confirmation.
func (h *ConsoleHandler) HandleDeleteConfirm(c *fiber.Ctx) error {
	d := dashboardOf(c)
	if err := d.StartDelete(c.Params("id")); err != nil {
		return h.render(c, d, fiber.StatusNotFound)
	}
	return h.render(c, d, fiber.StatusOK)
}

// HandleDelete deletes the profile awaiting confirmation. Without a pending
// confirmation for the same profile it shows the confirmation instead.
func (h *ConsoleHandler) HandleDelete(c *fiber.Ctx) error {
	d := dashboardOf(c)
	id := c.Params("id")
	if pending := d.State().Deleting; pending == nil || pending.ID != id {
		return c.Redirect("/users/"+id+"/delete", fiber.StatusSeeOther)
	}
	if err := d.ConfirmDelete(); err != nil {
		return h.render(c, d, fiber.StatusInternalServerError)
	}
	return c.Redirect("/users", fiber.StatusSeeOther)
}

// HandleDeleteCancel closes the confirmation without deleting anything.
func (h *ConsoleHandler) HandleDeleteCancel(c *fiber.Ctx) error {
	dashboardOf(c).CancelDelete()
	return c.Redirect("/users", fiber.StatusSeeOther)
}

const (
	actionSave          = "save"
	actionAddSkill      = "add_skill"
	actionRemoveSkill   = "remove_skill"
	actionAddProject    = "add_project"
	actionRemoveProject = "remove_project"
	actionEnter         = "enter"
)

// profileFormInput is the flat form post of the profile editor.
type profileFormInput struct {
	Name                string `form:"name"`
	Email               string `form:"email"`
	Role                string `form:"role"`
	Avatar              string `form:"avatar"`
	Phone               string `form:"phone"`
	Gender              string `form:"gender"`
	Dob                 string `form:"dob"`
	Address             string `form:"address"`
	Domicile            string `form:"domicile"`
	EducationCollege    string `form:"education_college"`
	EducationDegree     string `form:"education_degree"`
	EducationCourse     string `form:"education_course"`
	EducationYear       string `form:"education_year"`
	EducationGrade      string `form:"education_grade"`
	ExperienceDomain    string `form:"experience_domain"`
	ExperienceSubDomain string `form:"experience_sub_domain"`
	ExperienceYears     string `form:"experience_years"`
	SkillInput          string `form:"skill_input"`
	ProjectInput        string `form:"project_input"`
	Action              string `form:"action"`
}

func (in profileFormInput) draft() models.NewUserProfile {
	return models.NewUserProfile{
		Name:     in.Name,
		Email:    in.Email,
		Role:     models.Role(in.Role),
		Avatar:   in.Avatar,
		Phone:    in.Phone,
		Gender:   in.Gender,
		Dob:      in.Dob,
		Address:  in.Address,
		Domicile: in.Domicile,
		Education: models.Education{
			College: in.EducationCollege,
			Degree:  in.EducationDegree,
			Course:  in.EducationCourse,
			Year:    in.EducationYear,
			Grade:   in.EducationGrade,
		},
		Experience: models.Experience{
			Domain:    in.ExperienceDomain,
			SubDomain: in.ExperienceSubDomain,
			Years:     in.ExperienceYears,
		},
	}
}

// applyForm copies the posted fields onto form and performs list edits.
// It returns the action name without its argument. Every action except save
// also adds whatever is typed in the skill and project inputs. The implicit
// submission of the Enter key turns into a save when nothing was typed there.
func (h *ConsoleHandler) applyForm(c *fiber.Ctx, form *services.ProfileForm) (string, error) {
	var in profileFormInput
	if err := c.BodyParser(&in); err != nil {
		h.log.Warn("failed to parse console form", zap.Error(err))
		return "", fiber.NewError(fiber.StatusBadRequest, "Invalid form submission")
	}

	action, arg, _ := strings.Cut(in.Action, ":")
	switch action {
	case "", actionEnter, actionSave, actionAddSkill, actionRemoveSkill, actionAddProject, actionRemoveProject:
	default:
		return "", fiber.NewError(fiber.StatusBadRequest, "Unknown form action")
	}

	form.SetFields(in.draft())
	if action == actionSave {
		return action, nil
	}
	added := form.AddSkill(in.SkillInput)
	added = form.AddProject(in.ProjectInput) || added

	switch action {
	case actionRemoveSkill:
		form.RemoveSkill(arg)
	case actionRemoveProject:
		form.RemoveProject(arg)
	case "", actionEnter:
		if !added {
			return actionSave, nil
		}
		return actionEnter, nil
	}
	return action, nil
}

func submitStatus(err error) int {
	var verr services.ValidationErrors
	switch {
	case errors.As(err, &verr):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrSubmitInFlight):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// formView is the template data of partials/form.
type formView struct {
	Title        string
	Action       string
	CancelAction string
	SubmitLabel  string
	Draft        models.NewUserProfile
	Errors       services.ValidationErrors
	Submitting   bool
	Roles        []models.Role
	Genders      []string
	Buckets      []string
}

func newFormView(form *services.ProfileForm, title, action, cancel, submit string) *formView {
	return &formView{
		Title:        title,
		Action:       action,
		CancelAction: cancel,
		SubmitLabel:  submit,
		Draft:        form.Draft(),
		Errors:       form.Errors(),
		Submitting:   form.Submitting(),
		Roles:        models.Roles,
		Genders:      models.Genders,
		Buckets:      models.ExperienceBuckets,
	}
}

func (h *ConsoleHandler) render(c *fiber.Ctx, d *services.Dashboard, status int) error {
	state := d.State()
	data := fiber.Map{
		"Title": "Users",
		"State": state,
	}
	if state.View == services.ViewAdd {
		data["Title"] = "Add User"
		data["AddForm"] = newFormView(d.AddForm(), "Add New User", "/users/new", "/users/new/cancel", "Create User")
	}
	if state.Editing != nil {
		if form := d.EditForm(); form != nil {
			id := state.Editing.ID
			data["EditForm"] = newFormView(form, "Edit User", "/users/"+id+"/edit", "/users/"+id+"/edit/cancel", "Update User")
		}
	}
	return c.Status(status).Render("users/index", data)
}
