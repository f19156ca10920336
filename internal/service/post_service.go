package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"yatube/internal/events"
	"yatube/internal/middleware"
	"yatube/internal/models"
	"yatube/internal/observability"
	"yatube/internal/pagination"
	"yatube/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	requiredFieldMessage = "This field is required."
	invalidChoiceMessage = "Select a valid choice. That choice is not one of the available choices."
	excerptLength        = 140
)

type PostService struct {
	postRepo    repository.PostRepository
	groupRepo   repository.GroupRepository
	userRepo    repository.UserRepository
	commentRepo repository.CommentRepository
	followRepo  repository.FollowRepository
	images      *ImageService
	publisher   events.Publisher
	perPage     int
}

// PostForm is the submitted new/edit post form.
type PostForm struct {
	Text string
	// Group is the raw group id; empty means no group.
	Group string
	Image *ImageUpload
}

type CreatePostInput struct {
	AuthorID uint
	Form     PostForm
}

type EditPostInput struct {
	UserID   uint
	Username string
	PostID   uint
	Form     PostForm
}

// PostDetail is everything shown on a single post page.
type PostDetail struct {
	Post       *models.Post      `json:"post"`
	Author     *models.User      `json:"author"`
	PostsCount int64             `json:"posts_count"`
	Comments   []*models.Comment `json:"comments"`
}

// ProfilePage is an author's post list with follow stats.
type ProfilePage struct {
	Author         *models.User                   `json:"author"`
	Page           *pagination.Page[*models.Post] `json:"page"`
	Following      bool                           `json:"following"`
	PostsCount     int64                          `json:"posts_count"`
	FollowersCount int64                          `json:"followers_count"`
	FollowingCount int64                          `json:"following_count"`
}

// GroupPage is one page of a group's posts.
type GroupPage struct {
	Group *models.Group                  `json:"group"`
	Page  *pagination.Page[*models.Post] `json:"page"`
}

func NewPostService(
	postRepo repository.PostRepository,
	groupRepo repository.GroupRepository,
	userRepo repository.UserRepository,
	commentRepo repository.CommentRepository,
	followRepo repository.FollowRepository,
	images *ImageService,
	publisher events.Publisher,
	perPage int,
) *PostService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if perPage <= 0 {
		perPage = pagination.DefaultPerPage
	}
	return &PostService{
		postRepo:    postRepo,
		groupRepo:   groupRepo,
		userRepo:    userRepo,
		commentRepo: commentRepo,
		followRepo:  followRepo,
		images:      images,
		publisher:   publisher,
		perPage:     perPage,
	}
}

// Groups lists the choices for the group field.
func (s *PostService) Groups(ctx context.Context) ([]models.Group, error) {
	return s.groupRepo.List(ctx)
}

// CreatePost validates the form, stores the optional image and persists the post.
// Nothing is stored when the form is invalid.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	ctx, span := observability.StartSpan(ctx, "service", "PostService.CreatePost",
		attribute.Int64("user.id", int64(in.AuthorID)))
	post, err := s.createPost(ctx, in)
	observability.EndSpan(span, internalOnly(err))
	return post, err
}

func (s *PostService) createPost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.AuthorID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	cleaned, err := s.cleanForm(ctx, in.Form)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		Text:     cleaned.text,
		AuthorID: in.AuthorID,
		GroupID:  cleaned.groupID,
	}
	if cleaned.image != nil {
		key, err := s.images.Save(ctx, cleaned.image)
		if err != nil {
			return nil, err
		}
		post.Image = key
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		s.images.Discard(ctx, post.Image)
		return nil, err
	}
	post.ImageURL = s.images.URL(post.Image)

	observability.PostsCreated.Inc()
	s.publish(ctx, events.PostEvent{
		PostID:   post.ID,
		AuthorID: post.AuthorID,
		GroupID:  post.GroupID,
		Excerpt:  post.Excerpt(excerptLength),
		HasImage: post.Image != "",
		At:       post.PubDate,
	})
	return post, nil
}

// GetPostForEdit loads a post for its author's edit form.
func (s *PostService) GetPostForEdit(ctx context.Context, userID uint, username string, postID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByAuthor(ctx, username, postID)
	if err != nil {
		return nil, err
	}
	if !post.IsAuthoredBy(userID) {
		return nil, models.NewForbiddenError("Only the author can edit this post")
	}
	post.ImageURL = s.images.URL(post.Image)
	return post, nil
}

// EditPost updates text, group and, when a new file is uploaded, the image.
// The publication date never changes.
func (s *PostService) EditPost(ctx context.Context, in EditPostInput) (*models.Post, error) {
	ctx, span := observability.StartSpan(ctx, "service", "PostService.EditPost",
		attribute.Int64("post.id", int64(in.PostID)))
	post, err := s.editPost(ctx, in)
	observability.EndSpan(span, internalOnly(err))
	return post, err
}

func (s *PostService) editPost(ctx context.Context, in EditPostInput) (*models.Post, error) {
	post, err := s.GetPostForEdit(ctx, in.UserID, in.Username, in.PostID)
	if err != nil {
		return nil, err
	}

	cleaned, err := s.cleanForm(ctx, in.Form)
	if err != nil {
		return nil, err
	}

	previousImage := post.Image
	post.Text = cleaned.text
	post.GroupID = cleaned.groupID
	post.Group = nil
	if cleaned.image != nil {
		key, err := s.images.Save(ctx, cleaned.image)
		if err != nil {
			return nil, err
		}
		post.Image = key
	}

	if err := s.postRepo.Update(ctx, post); err != nil {
		if post.Image != previousImage {
			s.images.Discard(ctx, post.Image)
		}
		return nil, err
	}
	if post.Image != previousImage {
		s.images.Discard(ctx, previousImage)
	}
	post.ImageURL = s.images.URL(post.Image)

	observability.PostsEdited.Inc()
	s.publish(ctx, events.PostEvent{
		Kind:     events.SubjectPostEdited,
		PostID:   post.ID,
		AuthorID: post.AuthorID,
		Author:   post.Author.Username,
		GroupID:  post.GroupID,
		Excerpt:  post.Excerpt(excerptLength),
		HasImage: post.Image != "",
		At:       time.Now().UTC(),
	})
	return post, nil
}

// GetPostDetail returns the post addressed by author username and id with its comments.
func (s *PostService) GetPostDetail(ctx context.Context, username string, postID uint) (*PostDetail, error) {
	post, err := s.postRepo.GetByAuthor(ctx, username, postID)
	if err != nil {
		return nil, err
	}
	count, err := s.postRepo.CountByAuthor(ctx, post.AuthorID)
	if err != nil {
		return nil, err
	}
	comments, err := s.commentRepo.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	post.ImageURL = s.images.URL(post.Image)
	author := post.Author
	return &PostDetail{
		Post:       post,
		Author:     &author,
		PostsCount: count,
		Comments:   comments,
	}, nil
}

// Index pages through every post, oldest first.
func (s *PostService) Index(ctx context.Context, rawPage string) (*pagination.Page[*models.Post], error) {
	return s.paginate(ctx, s.postRepo.All(), rawPage)
}

// GroupPosts pages through the posts of the group with the given slug.
func (s *PostService) GroupPosts(ctx context.Context, slug, rawPage string) (*GroupPage, error) {
	group, err := s.groupRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	page, err := s.paginate(ctx, s.postRepo.ByGroup(group.ID), rawPage)
	if err != nil {
		return nil, err
	}
	return &GroupPage{Group: group, Page: page}, nil
}

// Profile pages through an author's posts with follower counts. Following
// is left for the caller, which knows the viewer.
func (s *PostService) Profile(ctx context.Context, username, rawPage string) (*ProfilePage, error) {
	author, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	page, err := s.paginate(ctx, s.postRepo.ByAuthor(author.ID), rawPage)
	if err != nil {
		return nil, err
	}

	out := &ProfilePage{Author: author, Page: page, PostsCount: page.Count}
	if out.FollowersCount, err = s.followRepo.CountFollowers(ctx, author.ID); err != nil {
		return nil, err
	}
	if out.FollowingCount, err = s.followRepo.CountFollowing(ctx, author.ID); err != nil {
		return nil, err
	}
	return out, nil
}

// Feed pages through posts by the authors userID follows.
func (s *PostService) Feed(ctx context.Context, userID uint, rawPage string) (*pagination.Page[*models.Post], error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	return s.paginate(ctx, s.postRepo.Feed(userID), rawPage)
}

func (s *PostService) paginate(ctx context.Context, src pagination.Source[*models.Post], rawPage string) (*pagination.Page[*models.Post], error) {
	page, err := pagination.Paginate(ctx, src, rawPage, s.perPage)
	if err != nil {
		return nil, err
	}
	for _, p := range page.Items {
		p.ImageURL = s.images.URL(p.Image)
	}
	return page, nil
}

type cleanedPost struct {
	text    string
	groupID *uint
	image   *CheckedImage
}

// cleanForm validates text, group and image, collecting every field error.
func (s *PostService) cleanForm(ctx context.Context, form PostForm) (*cleanedPost, error) {
	fields := map[string][]string{}

	out := &cleanedPost{text: strings.TrimSpace(form.Text)}
	if out.text == "" {
		fields["text"] = []string{requiredFieldMessage}
	}

	if raw := strings.TrimSpace(form.Group); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			fields["group"] = []string{invalidChoiceMessage}
		} else {
			group, err := s.groupRepo.GetByID(ctx, uint(id))
			switch {
			case models.IsCode(err, models.CodeNotFound):
				fields["group"] = []string{invalidChoiceMessage}
			case err != nil:
				return nil, err
			default:
				out.groupID = &group.ID
			}
		}
	}

	if form.Image != nil {
		img, err := s.images.Validate(form.Image)
		if err != nil {
			var appErr *models.AppError
			if !errors.As(err, &appErr) {
				return nil, err
			}
			for field, msgs := range appErr.Fields {
				fields[field] = append(fields[field], msgs...)
			}
		}
		out.image = img
	}

	if len(fields) > 0 {
		return nil, models.NewFormError(fields)
	}
	return out, nil
}

func (s *PostService) publish(ctx context.Context, ev events.Event) {
	publish(ctx, s.publisher, ev)
}

func publish(ctx context.Context, p events.Publisher, ev events.Event) {
	if err := p.Publish(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish event",
			slog.String("subject", ev.Subject()),
			slog.String("error", err.Error()),
		)
	}
}

// internalOnly drops expected business errors so spans only record faults.
func internalOnly(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternal {
		return nil
	}
	return err
}
