package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// minPasswordLength is the shortest password accepted at registration
const minPasswordLength = 6

// photoExtensions lists the accepted profile photo formats
var photoExtensions = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

// RegisterInput is the data submitted on the sign-up form
type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	return nil
}

// Register creates a new account
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	firstName := strings.TrimSpace(input.FirstName)
	email := normalizeEmail(input.Email)
	if firstName == "" || email == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: first name, email and password are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	user := &User{
		FirstName:    firstName,
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	slog.InfoContext(ctx, "Registered user", "user_id", user.ID)
	return user, nil
}

// Authenticate checks an email and password pair
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.db.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// EmailExists reports whether an account uses the email
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	_, err := s.db.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up user: %w", err)
	}
	return true, nil
}

// GetUser retrieves an account by ID
func (s *Service) GetUser(ctx context.Context, userID int64) (*User, error) {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// UpdateDetails changes the user's name
func (s *Service) UpdateDetails(ctx context.Context, userID int64, firstName, lastName string) (*User, error) {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		return nil, fmt.Errorf("%w: first name is required", ErrInvalidInput)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FirstName = firstName
	user.LastName = strings.TrimSpace(lastName)
	user.UpdatedAt = s.timeSource.Now()

	if err := s.db.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, newPassword, confirm string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.timeSource.Now()

	if err := s.db.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// ChangePhoto stores a new profile photo as profile_pics/user_<id>.<ext>
func (s *Service) ChangePhoto(ctx context.Context, userID int64, filename string, data []byte) (*User, error) {
	ext := fileExtension(filename)
	if _, ok := photoExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: profile photo must be PNG, JPG or JPEG", ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	savedPath, err := s.storage.Save(ctx, fmt.Sprintf("profile_pics/user_%d.%s", userID, ext), data)
	if err != nil {
		return nil, fmt.Errorf("saving profile photo: %w", err)
	}

	if user.ProfilePic != "" && user.ProfilePic != savedPath {
		if err := s.storage.Delete(ctx, user.ProfilePic); err != nil {
			slog.WarnContext(ctx, "Failed to delete old profile photo", "file", user.ProfilePic, "error", err)
		}
	}

	user.ProfilePic = savedPath
	user.UpdatedAt = s.timeSource.Now()
	if err := s.db.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return user, nil
}

// GetProfilePhoto returns the user's profile photo and its content type
func (s *Service) GetProfilePhoto(ctx context.Context, userID int64) ([]byte, string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if user.ProfilePic == "" {
		return nil, "", fmt.Errorf("no profile photo: %w", ErrNotFound)
	}

	data, err := s.storage.Get(ctx, user.ProfilePic)
	if err != nil {
		return nil, "", fmt.Errorf("getting profile photo: %w", err)
	}
	return data, photoExtensions[fileExtension(user.ProfilePic)], nil
}
