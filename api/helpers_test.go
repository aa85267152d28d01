package api

import (
	"github.com/shaj13/go-guardian/auth"

	"github.com/linesmerrill/case-portal-api/models"
)

func infoFor(u *models.User) auth.Info {
	return auth.NewDefaultUser(u.Details.Email, u.ID.Hex(), u.Details.Roles, nil)
}
