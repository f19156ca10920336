package server

import (
	"yatube/internal/middleware"
	"yatube/internal/models"
	"yatube/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Index handles GET /
func (s *Server) Index(c *fiber.Ctx) error {
	page, err := s.postService.Index(c.UserContext(), c.Query("page"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"page": page})
}

// GroupPosts handles GET /group/:slug/
func (s *Server) GroupPosts(c *fiber.Ctx) error {
	gp, err := s.postService.GroupPosts(c.UserContext(), c.Params("slug"), c.Query("page"))
	if err != nil {
		return err
	}
	return c.JSON(gp)
}

// FollowIndex handles GET /follow/
func (s *Server) FollowIndex(c *fiber.Ctx) error {
	page, err := s.postService.Feed(c.UserContext(), middleware.CurrentUserID(c), c.Query("page"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"page": page})
}

// Profile handles GET /:username/
func (s *Server) Profile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	profile, err := s.postService.Profile(ctx, c.Params("username"), c.Query("page"))
	if err != nil {
		return err
	}
	profile.Following, err = s.followService.IsFollowing(ctx, middleware.CurrentUserID(c), profile.Author.ID)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

// PostView handles GET /:username/:postID/
func (s *Server) PostView(c *fiber.Ctx) error {
	postID, err := parsePostID(c)
	if err != nil {
		return err
	}
	detail, err := s.postService.GetPostDetail(c.UserContext(), c.Params("username"), postID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"post":        detail.Post,
		"author":      detail.Author,
		"posts_count": detail.PostsCount,
		"comments":    detail.Comments,
		"form":        commentForm(),
	})
}

// NewPostForm handles GET /new/
func (s *Server) NewPostForm(c *fiber.Ctx) error {
	return s.renderPostForm(c, fiber.StatusOK, nil, service.PostForm{}, nil)
}

// CreatePost handles POST /new/
func (s *Server) CreatePost(c *fiber.Ctx) error {
	values, err := parsePostForm(c)
	if err != nil {
		return err
	}

	_, err = s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID: middleware.CurrentUserID(c),
		Form:     values,
	})
	if appErr, ok := validationError(err); ok {
		return s.renderPostForm(c, fiber.StatusBadRequest, nil, values, appErr)
	}
	if err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusFound)
}

// EditPostForm handles GET /:username/:postID/edit/
func (s *Server) EditPostForm(c *fiber.Ctx) error {
	postID, err := parsePostID(c)
	if err != nil {
		return err
	}
	username := c.Params("username")

	post, err := s.postService.GetPostForEdit(c.UserContext(), middleware.CurrentUserID(c), username, postID)
	if models.IsCode(err, models.CodeForbidden) {
		return c.Redirect(postURL(username, postID), fiber.StatusFound)
	}
	if err != nil {
		return err
	}

	values := service.PostForm{Text: post.Text}
	if post.GroupID != nil {
		values.Group = uintString(*post.GroupID)
	}
	return s.renderPostForm(c, fiber.StatusOK, post, values, nil)
}

// EditPost handles POST /:username/:postID/edit/
// Non-authors are sent back to the post without any change.
func (s *Server) EditPost(c *fiber.Ctx) error {
	postID, err := parsePostID(c)
	if err != nil {
		return err
	}
	username := c.Params("username")

	values, err := parsePostForm(c)
	if err != nil {
		return err
	}

	post, err := s.postService.EditPost(c.UserContext(), service.EditPostInput{
		UserID:   middleware.CurrentUserID(c),
		Username: username,
		PostID:   postID,
		Form:     values,
	})
	if models.IsCode(err, models.CodeForbidden) {
		return c.Redirect(postURL(username, postID), fiber.StatusFound)
	}
	if appErr, ok := validationError(err); ok {
		current, gerr := s.postService.GetPostForEdit(c.UserContext(), middleware.CurrentUserID(c), username, postID)
		if gerr != nil {
			return gerr
		}
		return s.renderPostForm(c, fiber.StatusBadRequest, current, values, appErr)
	}
	if err != nil {
		return err
	}
	return c.Redirect(postURL(post.Author.Username, post.ID), fiber.StatusFound)
}

// AddComment handles POST /:username/:postID/comment/
// Every outcome except a missing post redirects back to the post.
func (s *Server) AddComment(c *fiber.Ctx) error {
	postID, err := parsePostID(c)
	if err != nil {
		return err
	}
	username := c.Params("username")

	_, err = s.commentService.CreateComment(c.UserContext(), service.CreateCommentInput{
		UserID:   middleware.CurrentUserID(c),
		Username: username,
		PostID:   postID,
		Text:     c.FormValue("text"),
	})
	if err != nil && !models.IsCode(err, models.CodeValidation) {
		return err
	}
	return c.Redirect(postURL(username, postID), fiber.StatusFound)
}

// ProfileFollow handles /:username/follow/
func (s *Server) ProfileFollow(c *fiber.Ctx) error {
	author, err := s.followService.Follow(c.UserContext(), middleware.CurrentUserID(c), c.Params("username"))
	if err != nil {
		return err
	}
	return c.Redirect(profileURL(author.Username), fiber.StatusFound)
}

// ProfileUnfollow handles /:username/unfollow/
// Unfollowing an author that is not followed is a no-op.
func (s *Server) ProfileUnfollow(c *fiber.Ctx) error {
	author, err := s.followService.Unfollow(c.UserContext(), middleware.CurrentUserID(c), c.Params("username"))
	if err != nil {
		return err
	}
	return c.Redirect(profileURL(author.Username), fiber.StatusFound)
}

// renderPostForm writes the new/edit post page. post is nil on /new/.
func (s *Server) renderPostForm(c *fiber.Ctx, status int, post *models.Post, values service.PostForm, formErr *models.AppError) error {
	groups, err := s.postService.Groups(c.UserContext())
	if err != nil {
		return err
	}

	body := fiber.Map{
		"edit": post != nil,
	}
	var errs map[string][]string
	if formErr != nil {
		errs = formErr.Fields
		body["error"] = formErr.Message
	}
	body["form"] = postForm(groups, values, errs)
	if post != nil {
		body["post"] = post
	}
	return c.Status(status).JSON(body)
}
