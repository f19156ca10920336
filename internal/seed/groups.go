package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"yatube/internal/models"
	"yatube/internal/repository"
	"yatube/internal/service"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed groups.yaml
var defaultGroupsYAML []byte

// GroupFixture is one entry of a groups YAML file.
type GroupFixture struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

// ParseGroups decodes a YAML list of group fixtures.
func ParseGroups(data []byte) ([]GroupFixture, error) {
	var fixtures []GroupFixture
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("parse groups: %w", err)
	}
	return fixtures, nil
}

// LoadGroupsFile reads fixtures from path, or the built-in list when path is empty.
func LoadGroupsFile(path string) ([]GroupFixture, error) {
	if path == "" {
		return DefaultGroups()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read groups file: %w", err)
	}
	return ParseGroups(data)
}

// DefaultGroups returns the built-in group fixtures.
func DefaultGroups() ([]GroupFixture, error) {
	return ParseGroups(defaultGroupsYAML)
}

// Groups upserts fixtures by slug. Existing groups keep their id and get
// the fixture's title and description.
func Groups(ctx context.Context, db *gorm.DB, fixtures []GroupFixture) ([]*models.Group, error) {
	svc := service.NewGroupService(repository.NewGroupRepository(db))
	out := make([]*models.Group, 0, len(fixtures))
	for _, f := range fixtures {
		g, err := svc.Upsert(ctx, service.UpsertGroupInput{
			Title:       f.Title,
			Slug:        f.Slug,
			Description: f.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", f.Slug, err)
		}
		out = append(out, g)
	}
	return out, nil
}
