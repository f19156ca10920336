package service

import (
	"context"
	"strings"

	"yatube/internal/models"
	"yatube/internal/repository"
	"yatube/internal/validation"
)

// GroupService manages groups. Groups are created by administrators only.
type GroupService struct {
	groupRepo repository.GroupRepository
}

type UpsertGroupInput struct {
	Title       string
	Slug        string
	Description string
}

func NewGroupService(groupRepo repository.GroupRepository) *GroupService {
	return &GroupService{groupRepo: groupRepo}
}

// Upsert creates the group or updates title and description of an existing slug.
func (s *GroupService) Upsert(ctx context.Context, in UpsertGroupInput) (*models.Group, error) {
	in.Slug = strings.TrimSpace(in.Slug)
	fields := map[string][]string{}
	if err := validation.ValidateGroupTitle(in.Title); err != nil {
		fields["title"] = []string{err.Error()}
	}
	if err := validation.ValidateSlug(in.Slug); err != nil {
		fields["slug"] = []string{err.Error()}
	}
	if len(fields) > 0 {
		return nil, models.NewFormError(fields)
	}

	group := &models.Group{
		Title:       strings.TrimSpace(in.Title),
		Slug:        in.Slug,
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.groupRepo.Upsert(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *GroupService) List(ctx context.Context) ([]models.Group, error) {
	return s.groupRepo.List(ctx)
}
