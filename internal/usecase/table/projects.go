package table

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sync-admin/internal/domain/project"
	domain "sync-admin/internal/domain/table"
	"sync-admin/pkg/metrics"
)

// ProjectsTable is the name of the projects table.
const ProjectsTable = "projects"

// ProjectExportName is the base filename of the projects export.
const ProjectExportName = "Projects_List"

// ProjectColumns is the header of the projects export.
var ProjectColumns = []string{"Project", "Owner", "Email", "CreatedAt", "Status", "chat"}

// ProjectSortKeys are the columns the projects table can be sorted by.
var ProjectSortKeys = []string{"name", "title", "owner.firstName", "createdAt", "status"}

// ProjectRow is a project flattened for display.
type ProjectRow struct {
	ID             string           `json:"id"`
	Project        string           `json:"project"`
	Owner          string           `json:"owner"`
	Email          string           `json:"email"`
	CreatedAt      string           `json:"createdAt"`
	Status         string           `json:"status"`
	StatusCategory project.Category `json:"statusCategory"`
	Chat           string           `json:"chat"`
}

// NewProjectRow flattens p. Missing owner data becomes empty strings.
func NewProjectRow(p project.Project) ProjectRow {
	return ProjectRow{
		ID:             p.ID,
		Project:        p.DisplayName(),
		Owner:          p.OwnerName(),
		Email:          p.OwnerEmail(),
		CreatedAt:      FormatDate(p.CreatedAt),
		Status:         project.Label(p.Status),
		StatusCategory: project.Classify(p.Status),
		Chat:           p.OwnerEmail(),
	}
}

// Values returns the row in ProjectColumns order.
func (r ProjectRow) Values() []string {
	return []string{r.Project, r.Owner, r.Email, r.CreatedAt, r.Status, r.Chat}
}

// FormatDate renders an RFC 3339 (or date-only) timestamp as YYYY-MM-DD.
// Values that do not parse are returned unchanged.
func FormatDate(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return value
}

// ProjectSchema describes the projects table.
func ProjectSchema() Schema[project.Project] {
	return Schema[project.Project]{
		Name:         ProjectsTable,
		ExportName:   ProjectExportName,
		Columns:      ProjectColumns,
		Row:          func(p project.Project) []string { return NewProjectRow(p).Values() },
		Present:      func(p project.Project) any { return NewProjectRow(p) },
		SortableKeys: ProjectSortKeys,
		ErrorMessage: "Error loading projects",
	}
}

// DefaultProjectSort is the sort a projects table starts with.
var DefaultProjectSort = domain.Sort{Key: "createdAt", Direction: domain.Descending}

// NewProjectController creates a controller for the projects table.
func NewProjectController(ctx context.Context, f Fetcher[project.Project], opts Options, log *zap.Logger, m *metrics.Metrics) *Controller[project.Project] {
	if opts.DefaultSort.Key == "" {
		opts.DefaultSort = DefaultProjectSort
	}
	return NewController(ctx, f, ProjectSchema(), opts, log, m)
}

var _ Session = (*Controller[project.Project])(nil)
