package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const minPasswordLen = 6

type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type UserInput struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	FullName string  `json:"fullName"`
	Role     string  `json:"role"`
	ReaderID *string `json:"readerId"`
}

type UserPatch struct {
	Password *string `json:"password"`
	FullName *string `json:"fullName"`
	Role     *string `json:"role"`
	ReaderID *string `json:"readerId"`
}

func userNotFound() error {
	return apperror.NotFound(apperror.CodeUserNotFound, "User not found")
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", apperror.Validationf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func duplicateUsername(username string) error {
	return apperror.Conflict(apperror.CodeDuplicateUsername, fmt.Sprintf("Username %s already exists", username))
}

// Register creates a reader account and the reader record it is linked to.
// Self-registration never grants a staff role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := normalizeUsername(in.Username)
	if username == "" {
		return nil, apperror.Validation("username is required")
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName = username
	}
	mail := strings.TrimSpace(in.Email)
	if mail == "" && strings.Contains(username, "@") {
		mail = username
	}

	var user *models.User
	err = s.update(ctx, "register", func(ctx context.Context, t *tx) error {
		reader := &models.Reader{
			ID:        newID(),
			Name:      fullName,
			Email:     mail,
			Status:    models.ReaderActive,
			CreatedAt: t.now,
			UpdatedAt: t.now,
		}
		if err := createReader(ctx, t, reader); err != nil {
			return err
		}
		user = &models.User{
			ID:           newID(),
			Username:     username,
			PasswordHash: hash,
			FullName:     fullName,
			Role:         models.RoleReader,
			ReaderID:     &reader.ID,
			CreatedAt:    t.now,
		}
		if err := t.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return duplicateUsername(username)
			}
			return err
		}
		return t.notify(ctx, reader, models.NotifyInfo, "Welcome",
			fmt.Sprintf("Your library card number is %s.", reader.CardID))
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", user.ID).Info("reader registered")
	return user, nil
}

// Authenticate checks a username and password against the stored bcrypt hash.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	invalid := apperror.Unauthorized(apperror.CodeInvalidCredentials, "Invalid credentials")
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil, invalid
	}
	u, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, s.read("authenticate", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}
	return u, nil
}

// EnsureAdmin creates the admin account when no user has that username.
// It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return false, nil
	}
	_, err := s.store.UserByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, s.read("ensure_admin", err)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return false, err
	}
	err = s.update(ctx, "ensure_admin", func(ctx context.Context, t *tx) error {
		err := t.CreateUser(ctx, &models.User{
			ID:           newID(),
			Username:     username,
			PasswordHash: hash,
			FullName:     "Administrator",
			Role:         models.RoleAdmin,
			CreatedAt:    t.now,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return duplicateUsername(username)
		}
		return err
	})
	if apperror.HasCode(err, apperror.CodeDuplicateUsername) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log.WithField("username", username).Info("admin user created")
	return true, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.UserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, userNotFound()
	}
	return u, s.read("get_user", err)
}

func (s *Service) ListUsers(ctx context.Context, a Actor) ([]models.User, error) {
	if err := requireAdmin(a); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	return users, s.read("list_users", err)
}

// linkReader checks that readerID names an existing reader.
func linkReader(ctx context.Context, t *tx, readerID *string) (*string, error) {
	if readerID == nil || *readerID == "" {
		return nil, nil
	}
	r, err := found(t.ReaderByID(ctx, *readerID))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, readerNotFound()
	}
	return &r.ID, nil
}

// CreateUser adds an account with any role. A reader account without a
// readerId gets a new reader record.
func (s *Service) CreateUser(ctx context.Context, a Actor, in UserInput) (*models.User, error) {
	if err := requireAdmin(a); err != nil {
		return nil, err
	}
	username := normalizeUsername(in.Username)
	if username == "" {
		return nil, apperror.Validation("username is required")
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = models.RoleReader
	}
	if !models.RoleValid(role) {
		return nil, apperror.Validation("invalid role; use admin, librarian or reader")
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)

	var user *models.User
	err = s.update(ctx, "create_user", func(ctx context.Context, t *tx) error {
		readerID, err := linkReader(ctx, t, in.ReaderID)
		if err != nil {
			return err
		}
		if readerID == nil && role == models.RoleReader {
			name := fullName
			if name == "" {
				name = username
			}
			reader := &models.Reader{ID: newID(), Name: name, Status: models.ReaderActive, CreatedAt: t.now, UpdatedAt: t.now}
			if err := createReader(ctx, t, reader); err != nil {
				return err
			}
			readerID = &reader.ID
		}
		user = &models.User{
			ID:           newID(),
			Username:     username,
			PasswordHash: hash,
			FullName:     fullName,
			Role:         role,
			ReaderID:     readerID,
			CreatedAt:    t.now,
		}
		err = t.CreateUser(ctx, user)
		if errors.Is(err, store.ErrDuplicate) {
			return duplicateUsername(username)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", user.ID).WithField("role", role).Info("user created")
	return user, nil
}

// UpdateUser changes name, password, role or reader link. The last admin
// cannot be demoted.
func (s *Service) UpdateUser(ctx context.Context, a Actor, id string, patch UserPatch) (*models.User, error) {
	if err := requireAdmin(a); err != nil {
		return nil, err
	}
	var hash string
	if patch.Password != nil && *patch.Password != "" {
		h, err := hashPassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}
	var user *models.User
	err := s.update(ctx, "update_user", func(ctx context.Context, t *tx) error {
		u, err := found(t.UserByID(ctx, id))
		if err != nil {
			return err
		}
		if u == nil {
			return userNotFound()
		}
		if patch.FullName != nil {
			u.FullName = strings.TrimSpace(*patch.FullName)
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		if patch.ReaderID != nil {
			if u.ReaderID, err = linkReader(ctx, t, patch.ReaderID); err != nil {
				return err
			}
		}
		if patch.Role != nil {
			role := strings.ToLower(strings.TrimSpace(*patch.Role))
			if !models.RoleValid(role) {
				return apperror.Validation("invalid role; use admin, librarian or reader")
			}
			if u.Role == models.RoleAdmin && role != models.RoleAdmin {
				if err := ensureAnotherAdmin(ctx, t); err != nil {
					return err
				}
			}
			u.Role = role
		}
		if err := t.UpdateUser(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

// DeleteUser removes an account. Admins cannot delete themselves or the last admin.
func (s *Service) DeleteUser(ctx context.Context, a Actor, id string) error {
	if err := requireAdmin(a); err != nil {
		return err
	}
	if id == a.UserID {
		return apperror.Forbidden("You cannot delete your own account")
	}
	return s.update(ctx, "delete_user", func(ctx context.Context, t *tx) error {
		u, err := found(t.UserByID(ctx, id))
		if err != nil {
			return err
		}
		if u == nil {
			return userNotFound()
		}
		if u.Role == models.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, t); err != nil {
				return err
			}
		}
		return t.DeleteUser(ctx, id)
	})
}

func ensureAnotherAdmin(ctx context.Context, t *tx) error {
	n, err := t.AdminsCount(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperror.Policy(apperror.CodeLastAdmin, "At least one admin account must remain")
	}
	return nil
}
