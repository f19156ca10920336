package repository

import (
	"context"

	"yatube/internal/models"
	"yatube/internal/pagination"

	"gorm.io/gorm"
)

// PostRepository defines persistence operations for posts.
// Listing methods return ordered sources for pagination.Paginate.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByAuthor(ctx context.Context, username string, id uint) (*models.Post, error)
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	CountByAuthor(ctx context.Context, authorID uint) (int64, error)

	All() pagination.Source[*models.Post]
	ByGroup(groupID uint) pagination.Source[*models.Post]
	ByAuthor(authorID uint) pagination.Source[*models.Post]
	Feed(followerID uint) pagination.Source[*models.Post]
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit("Author", "Group").Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// GetByAuthor loads a post only when it belongs to the named author.
func (r *postRepository) GetByAuthor(ctx context.Context, username string, id uint) (*models.Post, error) {
	tx := r.withRelations(r.db.WithContext(ctx)).
		Joins("JOIN users ON users.id = posts.author_id").
		Where("posts.id = ? AND users.username = ?", id, username)
	return FindOrNotFound[models.Post](tx, "Post", id)
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return FindOrNotFound[models.Post](r.withRelations(r.db.WithContext(ctx)).Where("posts.id = ?", id), "Post", id)
}

// Update writes the editable columns only; author and pub_date never change.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Model(&models.Post{ID: post.ID}).
		Select("text", "group_id", "image").
		Updates(map[string]interface{}{
			"text":     post.Text,
			"group_id": post.GroupID,
			"image":    post.Image,
		}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Post{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) CountByAuthor(ctx context.Context, authorID uint) (int64, error) {
	return r.ByAuthor(authorID).Count(ctx)
}

func (r *postRepository) withRelations(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Author").Preload("Group")
}

func (r *postRepository) All() pagination.Source[*models.Post] {
	return &postSource{db: r.db, scope: func(tx *gorm.DB) *gorm.DB { return tx }}
}

func (r *postRepository) ByGroup(groupID uint) pagination.Source[*models.Post] {
	return &postSource{db: r.db, scope: func(tx *gorm.DB) *gorm.DB {
		return tx.Where("posts.group_id = ?", groupID)
	}}
}

func (r *postRepository) ByAuthor(authorID uint) pagination.Source[*models.Post] {
	return &postSource{db: r.db, scope: func(tx *gorm.DB) *gorm.DB {
		return tx.Where("posts.author_id = ?", authorID)
	}}
}

// Feed selects posts whose author is followed by followerID.
func (r *postRepository) Feed(followerID uint) pagination.Source[*models.Post] {
	return &postSource{db: r.db, scope: func(tx *gorm.DB) *gorm.DB {
		followed := r.db.Model(&models.Follow{}).Select("author_id").Where("user_id = ?", followerID)
		return tx.Where("posts.author_id IN (?)", followed)
	}}
}

// postSource is a filtered, date-ordered view of the posts table.
type postSource struct {
	db    *gorm.DB
	scope func(*gorm.DB) *gorm.DB
}

func (s *postSource) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.scope(s.db.WithContext(ctx).Model(&models.Post{})).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// Fetch orders by pub_date with id as tie-breaker so pages never overlap.
func (s *postSource) Fetch(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	err := s.scope(s.db.WithContext(ctx).Model(&models.Post{})).
		Preload("Author").
		Preload("Group").
		Order("posts.pub_date ASC").
		Order("posts.id ASC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}
