package server

import (
	"log/slog"

	"yatube/internal/middleware"
	"yatube/internal/models"
	"yatube/internal/service"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	FirstName string `json:"first_name" form:"first_name"`
	LastName  string `json:"last_name" form:"last_name"`
	Username  string `json:"username" form:"username"`
	Email     string `json:"email" form:"email"`
	Password1 string `json:"password1" form:"password1"`
	Password2 string `json:"password2" form:"password2"`
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Next     string `json:"next" form:"next"`
}

// SignupForm handles GET /auth/signup/
func (s *Server) SignupForm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"form": signupForm(service.SignupInput{}, nil)})
}

// Signup handles POST /auth/signup/
// A new account is sent to the login page.
func (s *Server) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in := service.SignupInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password1: req.Password1,
		Password2: req.Password2,
	}
	user, err := s.userService.Register(c.UserContext(), in)
	if appErr, ok := validationError(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": appErr.Message,
			"form":  signupForm(in, appErr.Fields),
		})
	}
	if err != nil {
		return err
	}

	middleware.Logger.InfoContext(c.UserContext(), "user signed up",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("username", user.Username),
	)
	return c.Redirect(s.config.LoginURL, fiber.StatusFound)
}

// LoginForm handles GET /auth/login/
func (s *Server) LoginForm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"form": loginForm("", nil),
		"next": middleware.SafeNext(c.Query("next"), ""),
	})
}

// Login handles POST /auth/login/
// On success the session cookie is set and the client is sent to "next"
// when it is a local path, otherwise to the index.
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Next == "" {
		req.Next = c.Query("next")
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Username, req.Password)
	if appErr, ok := validationError(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": appErr.Message,
			"form":  loginForm(req.Username, appErr.Fields),
			"next":  middleware.SafeNext(req.Next, ""),
		})
	}
	if err != nil {
		return err
	}

	token, claims, err := s.sessions.Issue(user.ID, user.Username)
	if err != nil {
		return models.NewInternalError(err)
	}
	s.sessions.SetCookie(c, token, claims)

	return c.Redirect(middleware.SafeNext(req.Next, "/"), fiber.StatusFound)
}

// Logout handles GET|POST /auth/logout/
// The session is revoked until its natural expiry and the cookie cleared.
func (s *Server) Logout(c *fiber.Ctx) error {
	if claims := middleware.CurrentSession(c); claims != nil {
		if err := s.sessions.Revoke(c.UserContext(), claims); err != nil {
			middleware.Logger.WarnContext(c.UserContext(), "failed to revoke session",
				slog.String("error", err.Error()),
			)
		}
	}
	s.sessions.ClearCookie(c)

	return c.JSON(fiber.Map{
		"logged_out": true,
		"login_url":  s.config.LoginURL,
	})
}
