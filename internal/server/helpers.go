package server

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"yatube/internal/models"
	"yatube/internal/service"

	"github.com/gofiber/fiber/v2"
)

// formField describes one input of a form payload.
type formField struct {
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Type     string       `json:"type"`
	Required bool         `json:"required"`
	Value    string       `json:"value,omitempty"`
	Choices  []formChoice `json:"choices,omitempty"`
}

type formChoice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// form is the JSON stand-in for a rendered HTML form.
type form struct {
	Fields []formField         `json:"fields"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func postForm(groups []models.Group, values service.PostForm, errs map[string][]string) form {
	choices := make([]formChoice, 0, len(groups)+1)
	choices = append(choices, formChoice{Value: "", Label: "---------"})
	for _, g := range groups {
		choices = append(choices, formChoice{Value: uintString(g.ID), Label: g.Title})
	}
	return form{
		Fields: []formField{
			{Name: "text", Label: "Text", Type: "textarea", Required: true, Value: values.Text},
			{Name: "group", Label: "Group", Type: "select", Value: values.Group, Choices: choices},
			{Name: "image", Label: "Image", Type: "file"},
		},
		Errors: errs,
	}
}

func commentForm() form {
	return form{Fields: []formField{
		{Name: "text", Label: "Text", Type: "textarea", Required: true},
	}}
}

func signupForm(values service.SignupInput, errs map[string][]string) form {
	return form{
		Fields: []formField{
			{Name: "first_name", Label: "First name", Type: "text", Value: values.FirstName},
			{Name: "last_name", Label: "Last name", Type: "text", Value: values.LastName},
			{Name: "username", Label: "Username", Type: "text", Required: true, Value: values.Username},
			{Name: "email", Label: "Email", Type: "email", Value: values.Email},
			{Name: "password1", Label: "Password", Type: "password", Required: true},
			{Name: "password2", Label: "Password confirmation", Type: "password", Required: true},
		},
		Errors: errs,
	}
}

func loginForm(username string, errs map[string][]string) form {
	return form{
		Fields: []formField{
			{Name: "username", Label: "Username", Type: "text", Required: true, Value: username},
			{Name: "password", Label: "Password", Type: "password", Required: true},
		},
		Errors: errs,
	}
}

// parsePostForm reads text, group and the optional image from a multipart or
// urlencoded body. A file input left empty is treated as no upload.
func parsePostForm(c *fiber.Ctx) (service.PostForm, error) {
	values := service.PostForm{
		Text:  c.FormValue("text"),
		Group: c.FormValue("group"),
	}

	fh, err := c.FormFile("image")
	if err != nil || fh == nil || fh.Filename == "" {
		return values, nil
	}
	f, err := fh.Open()
	if err != nil {
		return values, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return values, fmt.Errorf("read upload: %w", err)
	}
	values.Image = &service.ImageUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}
	return values, nil
}

// validationError returns the AppError when err is a form validation failure.
func validationError(err error) (*models.AppError, bool) {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code == models.CodeValidation {
		return appErr, true
	}
	return nil, false
}

// parsePostID reads the numeric post id route parameter. Routes constrain it
// to integers, so a failure here is reported as not found.
func parsePostID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("postID")
	if err != nil || id <= 0 {
		return 0, models.NewNotFoundError("Post", c.Params("postID"))
	}
	return uint(id), nil
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func profileURL(username string) string {
	return "/" + url.PathEscape(username) + "/"
}

func postURL(username string, postID uint) string {
	return profileURL(username) + uintString(postID) + "/"
}
