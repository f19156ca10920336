package service

import (
	"context"
	"strings"

	"yatube/internal/events"
	"yatube/internal/models"
	"yatube/internal/observability"
	"yatube/internal/repository"
)

const maxCommentLen = 10000

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	publisher   events.Publisher
}

type CreateCommentInput struct {
	UserID   uint
	Username string
	PostID   uint
	Text     string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	publisher events.Publisher,
) *CommentService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		publisher:   publisher,
	}
}

// CreateComment adds a comment under the post addressed by author username and id.
// Blank text is ignored and yields a nil comment without error.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	post, err := s.postRepo.GetByAuthor(ctx, in.Username, in.PostID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, nil
	}
	if len(text) > maxCommentLen {
		return nil, models.NewFieldError("text", "Comment too long (max 10000 characters)")
	}

	comment := &models.Comment{
		PostID:   post.ID,
		AuthorID: in.UserID,
		Text:     text,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}

	observability.CommentsCreated.Inc()
	publish(ctx, s.publisher, events.CommentEvent{
		CommentID:    comment.ID,
		PostID:       post.ID,
		PostAuthorID: post.AuthorID,
		AuthorID:     in.UserID,
		At:           comment.Created,
	})
	return comment, nil
}
