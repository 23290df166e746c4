package project

import "strings"

// Status is the lifecycle state of a project.
type Status string

const (
	StatusCompleted  Status = "COMPLETED"
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
)

// AllStatuses lists every recognized project status.
var AllStatuses = []Status{StatusCompleted, StatusDraft, StatusInProgress}

// Category is the display category a status is rendered with.
type Category string

const (
	CategoryCompleted  Category = "completed"
	CategoryInProgress Category = "in-progress"
	CategoryNeutral    Category = "neutral"
)

// StatusLabels maps each status to its display label.
var StatusLabels = map[Status]string{
	StatusCompleted:  "Completed",
	StatusDraft:      "Draft",
	StatusInProgress: "In Progress",
}

var statusCategories = map[Status]Category{
	StatusCompleted:  CategoryCompleted,
	StatusDraft:      CategoryNeutral,
	StatusInProgress: CategoryInProgress,
}

// aliases normalises label spellings and legacy values onto the enumeration.
var aliases = map[string]Status{
	"CLOSED":      StatusCompleted,
	"COMPLETED":   StatusCompleted,
	"DRAFT":       StatusDraft,
	"IN PROGRESS": StatusInProgress,
	"IN_PROGRESS": StatusInProgress,
	"IN-PROGRESS": StatusInProgress,
}

// Normalize resolves a raw status or display label to a recognized Status.
// The second result is false when the value is not recognized.
func Normalize(raw string) (Status, bool) {
	s, ok := aliases[strings.ToUpper(strings.TrimSpace(raw))]
	return s, ok
}

// Label returns the display label of a status. Unrecognized values pass
// through unchanged.
func Label(s Status) string {
	if known, ok := Normalize(string(s)); ok {
		return StatusLabels[known]
	}
	return string(s)
}

// Classify maps a status to its display category. Anything that is not a
// recognized status falls back to CategoryNeutral.
func Classify(s Status) Category {
	known, ok := Normalize(string(s))
	if !ok {
		return CategoryNeutral
	}
	if c, ok := statusCategories[known]; ok {
		return c
	}
	return CategoryNeutral
}
