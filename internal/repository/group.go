package repository

import (
	"context"

	"yatube/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupRepository defines persistence operations for groups.
type GroupRepository interface {
	GetBySlug(ctx context.Context, slug string) (*models.Group, error)
	GetByID(ctx context.Context, id uint) (*models.Group, error)
	List(ctx context.Context) ([]models.Group, error)
	Upsert(ctx context.Context, group *models.Group) error
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository returns a new GroupRepository implementation.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) GetBySlug(ctx context.Context, slug string) (*models.Group, error) {
	return FindOrNotFound[models.Group](r.db.WithContext(ctx).Where("slug = ?", slug), "Group", slug)
}

func (r *groupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	return FindOrNotFound[models.Group](r.db.WithContext(ctx).Where("id = ?", id), "Group", id)
}

func (r *groupRepository) List(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.WithContext(ctx).Order("title ASC").Find(&groups).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return groups, nil
}

// Upsert inserts a group or refreshes title and description of an existing slug.
func (r *groupRepository) Upsert(ctx context.Context, group *models.Group) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "updated_at"}),
	}).Create(group).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
