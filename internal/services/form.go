package services

import (
	"errors"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"userdesk/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"
)

const (
	msgNameRequired  = "Name is required"
	msgEmailRequired = "Email is required"
	msgEmailInvalid  = "Invalid email format"
	msgPhoneInvalid  = "Phone number must be 10 digits"
	msgRoleInvalid   = "Role must be one of Admin, User, Moderator"
	msgYearsInvalid  = "Experience must be one of 0-1, 1-3, 3-5, 5+"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// fieldMessages maps "<field path>.<failed tag>" to the message shown next to the field.
var fieldMessages = map[string]string{
	"name.notblank":          msgNameRequired,
	"email.notblank":         msgEmailRequired,
	"email.emailfmt":         msgEmailInvalid,
	"phone.phone10":          msgPhoneInvalid,
	"role.oneof":             msgRoleInvalid,
	"experience.years.oneof": msgYearsInvalid,
}

// NewValidator returns a validator that understands the profile rules.
// Field names in errors follow the json tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("emailfmt", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return len(nonDigits.ReplaceAllString(fl.Field().String(), "")) == 10
	})
	return v
}

// ValidateDraft checks a draft against the profile rules. It returns nil when the draft is valid.
func ValidateDraft(v *validator.Validate, draft *models.NewUserProfile) ValidationErrors {
	err := v.Struct(draft)
	if err == nil {
		return nil
	}
	verr := ValidationErrors{}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		verr["form"] = err.Error()
		return verr
	}
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		if _, seen := verr[path]; seen {
			continue
		}
		msg, ok := fieldMessages[path+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		verr[path] = msg
	}
	return verr
}

// ProfileForm holds one editable draft and its validation state.
type ProfileForm struct {
	mu         sync.Mutex
	draft      models.NewUserProfile
	errors     ValidationErrors
	submitting bool
	validate   *validator.Validate
	log        *zap.Logger
}

// NewProfileForm creates a form prefilled from profile, or an empty draft with role User when profile is nil.
func NewProfileForm(v *validator.Validate, log *zap.Logger, profile *models.UserProfile) *ProfileForm {
	draft := models.NewUserProfile{Role: models.RoleUser}
	if profile != nil {
		draft = profile.Draft()
		if draft.Role == "" {
			draft.Role = models.RoleUser
		}
	}
	if draft.Skills == nil {
		draft.Skills = []string{}
	}
	if draft.Projects == nil {
		draft.Projects = []string{}
	}
	return &ProfileForm{
		draft:    draft,
		validate: v,
		log:      log,
	}
}

// Draft returns a copy of the current draft.
func (f *ProfileForm) Draft() models.NewUserProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draft
	d.Skills = slices.Clone(f.draft.Skills)
	d.Projects = slices.Clone(f.draft.Projects)
	return d
}

// SetFields replaces the scalar and nested fields of the draft. Skills and projects are kept.
func (f *ProfileForm) SetFields(d models.NewUserProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skills, projects := f.draft.Skills, f.draft.Projects
	f.draft = d
	f.draft.Skills = skills
	f.draft.Projects = projects
}

// Errors returns the messages from the last validation.
func (f *ProfileForm) Errors() ValidationErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.errors)
}

// Submitting reports whether a submit is in flight.
func (f *ProfileForm) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Validate checks the draft and remembers the result.
func (f *ProfileForm) Validate() ValidationErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = ValidateDraft(f.validate, &f.draft)
	return f.errors
}

// AddSkill appends the trimmed input unless it is blank or already present.
func (f *ProfileForm) AddSkill(input string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return appendUnique(&f.draft.Skills, input)
}

// RemoveSkill drops skill from the draft.
func (f *ProfileForm) RemoveSkill(skill string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Skills = without(f.draft.Skills, skill)
}

// AddProject appends the trimmed input unless it is blank or already present.
func (f *ProfileForm) AddProject(input string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return appendUnique(&f.draft.Projects, input)
}

// RemoveProject drops project from the draft.
func (f *ProfileForm) RemoveProject(project string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Projects = without(f.draft.Projects, project)
}

// Submit validates the draft and hands it to delegate. A failed delegate
// leaves the draft untouched so the same form can be submitted again.
// A second Submit while one is in flight fails with ErrSubmitInFlight.
func (f *ProfileForm) Submit(delegate func(models.NewUserProfile) error) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrSubmitInFlight
	}
	f.errors = ValidateDraft(f.validate, &f.draft)
	if f.errors != nil {
		verr := f.errors
		f.mu.Unlock()
		return verr
	}
	f.submitting = true
	draft := f.draft
	draft.Skills = slices.Clone(f.draft.Skills)
	draft.Projects = slices.Clone(f.draft.Projects)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	if err := delegate(draft); err != nil {
		f.log.Error("form submission error", zap.Error(err))
		var verr ValidationErrors
		if errors.As(err, &verr) {
			f.mu.Lock()
			f.errors = verr
			f.mu.Unlock()
		}
		return err
	}
	return nil
}

func appendUnique(list *[]string, input string) bool {
	v := strings.TrimSpace(input)
	if v == "" || slices.Contains(*list, v) {
		return false
	}
	*list = append(*list, v)
	return true
}

func without(list []string, value string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(s string) bool {
		return s == value
	})
}
