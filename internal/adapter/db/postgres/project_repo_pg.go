package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sync-admin/internal/domain/project"
	domain "sync-admin/internal/domain/table"
	apperrors "sync-admin/pkg/errors"
	"sync-admin/pkg/logger"
	"sync-admin/pkg/security"
)

// ProjectRepoPG serves project pages straight from the Sync database.
// It is read-only.
type ProjectRepoPG struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewProjectRepoPG creates a new instance of ProjectRepoPG.
func NewProjectRepoPG(db *gorm.DB, log *zap.Logger) *ProjectRepoPG {
	return &ProjectRepoPG{db: db, log: log}
}

// UserSchema represents the database schema for the users table.
type UserSchema struct {
	ID        string `gorm:"primaryKey"`
	FirstName string `gorm:"not null"`
	LastName  string `gorm:"not null"`
	Email     string `gorm:"not null;unique"`
	Role      string `gorm:"not null"`
}

// TableName specifies the table name for the UserSchema model.
func (UserSchema) TableName() string {
	return "users"
}

// ProjectSchema represents the database schema for the projects table.
type ProjectSchema struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Title       string
	Description string
	Status      string      `gorm:"not null;index"`
	OwnerID     *string     `gorm:"index"`
	Owner       *UserSchema `gorm:"foreignKey:OwnerID"`
	CreatedAt   time.Time   `gorm:"index"`
	UpdatedAt   time.Time
}

// TableName specifies the table name for the ProjectSchema model.
func (ProjectSchema) TableName() string {
	return "projects"
}

// sortColumns maps the sortable keys of the projects table onto columns.
var sortColumns = map[string]string{
	"name":            "projects.name",
	"title":           "projects.title",
	"owner.firstName": "users.first_name",
	"createdAt":       "projects.created_at",
	"status":          "projects.status",
}

// Fetch returns one page of projects matching the search, ordered by sortBy.
func (r *ProjectRepoPG) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.Page[project.Project], error) {
	log := logger.WithContext(ctx, r.log)

	search, err := security.NormalizeSearchQuery(req.Search)
	if err != nil {
		return nil, apperrors.NewValidationError("search", err.Error())
	}
	order, err := orderBy(req.SortBy)
	if err != nil {
		return nil, err
	}
	if req.Limit < 1 {
		return nil, apperrors.NewValidationError("limit", "must be positive")
	}

	filter := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&ProjectSchema{}).Joins("LEFT JOIN users ON users.id = projects.owner_id")
		if search == "" {
			return tx
		}
		pattern := security.ContainsPattern(search)
		return tx.Where(
			`LOWER(projects.name) LIKE LOWER(?) ESCAPE '\' OR LOWER(projects.title) LIKE LOWER(?) ESCAPE '\'`+
				` OR LOWER(users.first_name || ' ' || users.last_name) LIKE LOWER(?) ESCAPE '\' OR LOWER(users.email) LIKE LOWER(?) ESCAPE '\'`,
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := r.db.WithContext(ctx).Scopes(filter).Count(&total).Error; err != nil {
		log.Error("failed to count projects", zap.Error(err), zap.String("search", search))
		return nil, apperrors.NewFetchError("projects", 0, fmt.Errorf("failed to count projects: %w", err))
	}

	var models []ProjectSchema
	err = r.db.WithContext(ctx).
		Scopes(filter).
		Select("projects.*").
		Preload("Owner").
		Order(order).
		Offset(req.Offset()).
		Limit(req.Limit).
		Find(&models).Error
	if err != nil {
		log.Error("failed to list projects", zap.Error(err),
			zap.String("search", search), zap.Int("page", req.Page), zap.Int("limit", req.Limit))
		return nil, apperrors.NewFetchError("projects", 0, fmt.Errorf("failed to list projects: %w", err))
	}

	items := make([]project.Project, len(models))
	for i, m := range models {
		items[i] = toDomain(m)
	}

	log.Debug("listed projects", zap.Int("items", len(items)), zap.Int64("total", total))
	return domain.NewPage(items, domain.TotalPagesFor(total, int64(req.Limit))), nil
}

// orderBy turns "key:DIR" into an ORDER BY clause with a stable tiebreak.
func orderBy(sortBy string) (clause.OrderBy, error) {
	s, err := domain.ParseSort(sortBy)
	if err != nil {
		return clause.OrderBy{}, apperrors.NewValidationError("sortBy", err.Error())
	}
	col, ok := sortColumns[s.Key]
	if !ok {
		return clause.OrderBy{}, apperrors.NewValidationError("sortBy", fmt.Sprintf("cannot sort by %q", s.Key))
	}
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: col, Raw: true}, Desc: s.Direction == domain.Descending},
		{Column: clause.Column{Name: "projects.id", Raw: true}},
	}}, nil
}

func toDomain(m ProjectSchema) project.Project {
	p := project.Project{
		ID:          m.ID,
		Name:        m.Name,
		Title:       m.Title,
		Description: m.Description,
		Status:      project.Status(m.Status),
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.Owner != nil {
		p.Owner = &project.User{
			ID:        m.Owner.ID,
			FirstName: m.Owner.FirstName,
			LastName:  m.Owner.LastName,
			Email:     m.Owner.Email,
			Role:      project.Role(m.Owner.Role),
		}
	}
	return p
}
