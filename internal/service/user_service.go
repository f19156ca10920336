package service

import (
	"context"
	"errors"
	"strings"

	"yatube/internal/models"
	"yatube/internal/repository"
	"yatube/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const invalidLoginMessage = "Please enter a correct username and password. Note that both fields may be case-sensitive."

// dummyHash keeps the cost of a failed lookup close to a real password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("yatube-timing-guard"), bcrypt.DefaultCost)

type UserService struct {
	userRepo   repository.UserRepository
	bcryptCost int
}

type SignupInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password1 string
	Password2 string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost lowers hashing cost for tests and seeding.
func (s *UserService) WithBcryptCost(cost int) *UserService {
	s.bcryptCost = cost
	return s
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Register validates the signup form and creates the account.
func (s *UserService) Register(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	fields := map[string][]string{}

	if in.Username == "" {
		fields["username"] = []string{requiredFieldMessage}
	} else if err := validation.ValidateUsername(in.Username); err != nil {
		fields["username"] = []string{err.Error()}
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			fields["email"] = []string{err.Error()}
		}
	}
	if in.Password1 == "" {
		fields["password1"] = []string{requiredFieldMessage}
	} else if err := validation.ValidatePassword(in.Password1, in.Username); err != nil {
		fields["password1"] = []string{err.Error()}
	}
	if in.Password1 != in.Password2 {
		fields["password2"] = []string{"The two password fields didn't match."}
	}

	if _, bad := fields["username"]; !bad {
		exists, err := s.userRepo.ExistsByUsername(ctx, in.Username)
		if err != nil {
			return nil, err
		}
		if exists {
			fields["username"] = []string{"A user with that username already exists."}
		}
	}

	if len(fields) > 0 {
		return nil, models.NewFormError(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password1), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:  in.Username,
		Email:     in.Email,
		Password:  string(hash),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords give the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, models.NewFormError(map[string][]string{models.NonFieldErrors: {invalidLoginMessage}})
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if !models.IsCode(err, models.CodeNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, models.NewFormError(map[string][]string{models.NonFieldErrors: {invalidLoginMessage}})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, models.NewFormError(map[string][]string{models.NonFieldErrors: {invalidLoginMessage}})
		}
		return nil, models.NewInternalError(err)
	}
	return user, nil
}

func (s *UserService) SetAdmin(ctx context.Context, username string, isAdmin bool) error {
	return s.userRepo.SetAdmin(ctx, username, isAdmin)
}

func (s *UserService) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.userRepo.ListAdmins(ctx)
}
