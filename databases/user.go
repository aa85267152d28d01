package databases

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/case-portal-api/models"
)

const userName = "users"

// ErrEmailTaken is returned when registering an email that already has an account
var ErrEmailTaken = errors.New("email already registered")

// UserDatabase stores accounts in the users collection
type UserDatabase struct {
	db DatabaseHelper
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db DatabaseHelper) *UserDatabase {
	return &UserDatabase{
		db: db,
	}
}

// GetUser returns the user with id
func (u *UserDatabase) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user := &models.User{}
	if err := findByID(ctx, u.db.Collection(userName), id, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByEmail looks an account up by its lowercased email
func (u *UserDatabase) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := u.db.Collection(userName).FindOne(ctx, bson.M{"user.email": strings.ToLower(email)}).Decode(user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// InsertUser stores a new account. Emails are unique.
func (u *UserDatabase) InsertUser(ctx context.Context, user *models.User) error {
	user.Details.Email = strings.ToLower(user.Details.Email)
	coll := u.db.Collection(userName)
	n, err := coll.CountDocuments(ctx, bson.M{"user.email": user.Details.Email})
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrEmailTaken
	}
	user.Version = 0
	_, err = coll.InsertOne(ctx, user)
	return err
}
