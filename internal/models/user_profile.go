package models

import (
	"slices"
	"time"
)

// Role is the access level shown for a user profile.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleUser      Role = "User"
	RoleModerator Role = "Moderator"
)

// Roles lists every role in the order the console offers them.
var Roles = []Role{RoleUser, RoleAdmin, RoleModerator}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

// Genders are the values offered by the console. The store accepts any string.
var Genders = []string{"Male", "Female", "Other"}

// ExperienceBuckets are the accepted values for Experience.Years.
var ExperienceBuckets = []string{"0-1", "1-3", "3-5", "5+"}

// Education describes the highest education entry of a user.
type Education struct {
	College string `json:"college"`
	Degree  string `json:"degree"`
	Course  string `json:"course"`
	Year    string `json:"year"`
	Grade   string `json:"grade"`
}

// IsZero reports whether no education field is filled in.
func (e Education) IsZero() bool {
	return e == Education{}
}

// Experience describes the professional background of a user.
type Experience struct {
	Domain    string `json:"domain"`
	SubDomain string `json:"subDomain"`
	Years     string `json:"years" validate:"omitempty,oneof=0-1 1-3 3-5 5+"`
}

// IsZero reports whether no experience field is filled in.
func (e Experience) IsZero() bool {
	return e == Experience{}
}

// UserProfile is a stored user record. ID, CreatedAt and UpdatedAt are owned by the store.
type UserProfile struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name       string     `json:"name" gorm:"type:varchar(255);not null"`
	Email      string     `json:"email" gorm:"type:varchar(255);not null"`
	Role       Role       `json:"role" gorm:"type:varchar(16);not null"`
	Avatar     string     `json:"avatar"`
	Phone      string     `json:"phone" gorm:"type:varchar(32)"`
	Gender     string     `json:"gender" gorm:"type:varchar(32)"`
	Dob        string     `json:"dob" gorm:"type:varchar(32)"`
	Address    string     `json:"address"`
	Domicile   string     `json:"domicile"`
	Education  Education  `json:"education" gorm:"serializer:json"`
	Skills     []string   `json:"skills" gorm:"serializer:json"`
	Projects   []string   `json:"projects" gorm:"serializer:json"`
	Experience Experience `json:"experience" gorm:"serializer:json"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName pins the table name shared with the hosted store.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// Draft returns the editable part of the profile.
func (u UserProfile) Draft() NewUserProfile {
	return NewUserProfile{
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Avatar:     u.Avatar,
		Phone:      u.Phone,
		Gender:     u.Gender,
		Dob:        u.Dob,
		Address:    u.Address,
		Domicile:   u.Domicile,
		Education:  u.Education,
		Skills:     slices.Clone(u.Skills),
		Projects:   slices.Clone(u.Projects),
		Experience: u.Experience,
	}
}

// NewUserProfile is a profile that has not been persisted yet.
type NewUserProfile struct {
	Name       string     `json:"name" validate:"notblank"`
	Email      string     `json:"email" validate:"notblank,emailfmt"`
	Role       Role       `json:"role" validate:"oneof=Admin User Moderator"`
	Avatar     string     `json:"avatar"`
	Phone      string     `json:"phone" validate:"omitempty,phone10"`
	Gender     string     `json:"gender"`
	Dob        string     `json:"dob"`
	Address    string     `json:"address"`
	Domicile   string     `json:"domicile"`
	Education  Education  `json:"education"`
	Skills     []string   `json:"skills"`
	Projects   []string   `json:"projects"`
	Experience Experience `json:"experience"`
}

// Profile builds an unsaved UserProfile from the draft.
func (d NewUserProfile) Profile() UserProfile {
	return UserProfile{
		Name:       d.Name,
		Email:      d.Email,
		Role:       d.Role,
		Avatar:     d.Avatar,
		Phone:      d.Phone,
		Gender:     d.Gender,
		Dob:        d.Dob,
		Address:    d.Address,
		Domicile:   d.Domicile,
		Education:  d.Education,
		Skills:     slices.Clone(d.Skills),
		Projects:   slices.Clone(d.Projects),
		Experience: d.Experience,
	}
}

// UserProfilePatch is a partial update. Nil fields are left untouched,
// non-nil fields overwrite the stored value, empty strings included.
type UserProfilePatch struct {
	Name       *string     `json:"name,omitempty"`
	Email      *string     `json:"email,omitempty"`
	Role       *Role       `json:"role,omitempty"`
	Avatar     *string     `json:"avatar,omitempty"`
	Phone      *string     `json:"phone,omitempty"`
	Gender     *string     `json:"gender,omitempty"`
	Dob        *string     `json:"dob,omitempty"`
	Address    *string     `json:"address,omitempty"`
	Domicile   *string     `json:"domicile,omitempty"`
	Education  *Education  `json:"education,omitempty"`
	Skills     *[]string   `json:"skills,omitempty"`
	Projects   *[]string   `json:"projects,omitempty"`
	Experience *Experience `json:"experience,omitempty"`
}

// PatchFromDraft returns a patch that overwrites every editable field.
func PatchFromDraft(d NewUserProfile) *UserProfilePatch {
	skills := slices.Clone(d.Skills)
	projects := slices.Clone(d.Projects)
	return &UserProfilePatch{
		Name:       &d.Name,
		Email:      &d.Email,
		Role:       &d.Role,
		Avatar:     &d.Avatar,
		Phone:      &d.Phone,
		Gender:     &d.Gender,
		Dob:        &d.Dob,
		Address:    &d.Address,
		Domicile:   &d.Domicile,
		Education:  &d.Education,
		Skills:     &skills,
		Projects:   &projects,
		Experience: &d.Experience,
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p *UserProfilePatch) IsEmpty() bool {
	return p == nil || *p == UserProfilePatch{}
}

// Apply copies every non-nil field of the patch onto u.
func (p *UserProfilePatch) Apply(u *UserProfile) {
	if p == nil {
		return
	}
	setString(&u.Name, p.Name)
	setString(&u.Email, p.Email)
	if p.Role != nil {
		u.Role = *p.Role
	}
	setString(&u.Avatar, p.Avatar)
	setString(&u.Phone, p.Phone)
	setString(&u.Gender, p.Gender)
	setString(&u.Dob, p.Dob)
	setString(&u.Address, p.Address)
	setString(&u.Domicile, p.Domicile)
	if p.Education != nil {
		u.Education = *p.Education
	}
	if p.Skills != nil {
		u.Skills = slices.Clone(*p.Skills)
	}
	if p.Projects != nil {
		u.Projects = slices.Clone(*p.Projects)
	}
	if p.Experience != nil {
		u.Experience = *p.Experience
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
