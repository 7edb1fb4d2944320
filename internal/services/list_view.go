package services

import (
	"slices"
	"strings"

	"userdesk/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortField is a column the profile list can be ordered by.
type SortField string

const (
	SortByName  SortField = "name"
	SortByRole  SortField = "role"
	SortByEmail SortField = "email"
)

// ParseSortField returns the field named s, or false when s names no sortable column.
func ParseSortField(s string) (SortField, bool) {
	switch f := SortField(strings.ToLower(s)); f {
	case SortByName, SortByRole, SortByEmail:
		return f, true
	}
	return "", false
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// ListQuery is the search and sort state of the profile list.
type ListQuery struct {
	Search string
	Field  SortField
	Order  SortOrder
}

// DefaultListQuery orders by name ascending without a search term.
func DefaultListQuery() ListQuery {
	return ListQuery{Field: SortByName, Order: Ascending}
}

// ToggleSort flips the direction when field is already active,
// otherwise switches to field in ascending order.
func (q ListQuery) ToggleSort(field SortField) ListQuery {
	if q.Field == field {
		if q.Order == Ascending {
			q.Order = Descending
		} else {
			q.Order = Ascending
		}
		return q
	}
	q.Field = field
	q.Order = Ascending
	return q
}

// Filter keeps the profiles whose name, email or role contains search,
// case-insensitively, in their original order.
func Filter(profiles []models.UserProfile, search string) []models.UserProfile {
	result := make([]models.UserProfile, 0, len(profiles))
	term := strings.ToLower(search)
	for _, p := range profiles {
		if term == "" || matches(p, term) {
			result = append(result, p)
		}
	}
	return result
}

// FilterAndSort derives the visible list. The input slice is not modified.
func FilterAndSort(profiles []models.UserProfile, q ListQuery) []models.UserProfile {
	result := Filter(profiles, q.Search)

	field := q.Field
	if field == "" {
		field = SortByName
	}
	// A Collator keeps internal buffers and is not safe for concurrent use.
	col := collate.New(language.Und)
	slices.SortStableFunc(result, func(a, b models.UserProfile) int {
		av := strings.ToLower(sortValue(a, field))
		bv := strings.ToLower(sortValue(b, field))
		if q.Order == Descending {
			return col.CompareString(bv, av)
		}
		return col.CompareString(av, bv)
	})
	return result
}

func matches(p models.UserProfile, term string) bool {
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Email), term) ||
		strings.Contains(strings.ToLower(string(p.Role)), term)
}

func sortValue(p models.UserProfile, field SortField) string {
	switch field {
	case SortByRole:
		return string(p.Role)
	case SortByEmail:
		return p.Email
	default:
		return p.Name
	}
}
