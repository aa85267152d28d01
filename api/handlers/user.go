package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/case-portal-api/api"
	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/config"
	"github.com/linesmerrill/case-portal-api/databases"
	"github.com/linesmerrill/case-portal-api/models"
)

const minPasswordLength = 8

// UserStore reads and creates accounts
type UserStore interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error
}

// User exported for testing purposes
type User struct {
	DB    UserStore
	Clock func() time.Time
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// UserCreateHandler registers a citizen account. Police roles are granted out of band.
func (u User) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if !decode(w, r, &in) {
		return
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		config.ErrorStatus("invalid email", http.StatusBadRequest, w, err)
		return
	}
	if len(in.Password) < minPasswordLength {
		config.ErrorStatus("password too short", http.StatusBadRequest, w, fmt.Errorf("password must be at least %d characters", minPasswordLength))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(u.now())
	user := &models.User{
		ID: primitive.NewObjectID(),
		Details: models.UserDetails{
			Email:     strings.TrimSpace(in.Email),
			Name:      in.Name,
			Username:  in.Username,
			Password:  string(hashedPassword),
			Roles:     []string{string(authority.RoleCitizen)},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	if err := u.DB.InsertUser(ctx, user); err != nil {
		if errors.Is(err, databases.ErrEmailTaken) {
			config.ErrorStatus("email already exists", http.StatusConflict, w, err)
			return
		}
		config.ErrorStatus("failed to insert user", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("citizen registered", "userId", user.ID.Hex())
	writeJSON(w, http.StatusCreated, user)
}

// CurrentUserHandler returns the caller's own account
func (u User) CurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(principal(r).UserID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := u.DB.GetUser(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		config.ErrorStatus("user not found", http.StatusNotFound, w, err)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to get user", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (u User) now() time.Time {
	if u.Clock != nil {
		return u.Clock()
	}
	return time.Now()
}
