package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"epic_events/crm_api/schema"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

var (
	ErrUserNotFoundWithEmail = errors.New("no user found for given email")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrUserInactive          = errors.New("user account is disabled")
	ErrGeneratingJwt         = errors.New("error generating jwt")
	ErrEmailAlreadyInUse     = errors.New("email is already in use")
	ErrNoTeamRole            = errors.New("account needs exactly one crm team role")
)

type LoginResult struct {
	UserId      uint
	AccessToken string
}

type NewUser struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
	Team      schema.UserTeam
}

type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	LoginWithEmail(email, password string) (LoginResult, error)

	CreateUser(user NewUser) (uint, error)

	GetTokenExpiration(r *http.Request) (time.Time, error)
}

func addInitialAdminToDb(db *gorm.DB, email string, password []byte) error {
	user := schema.User{
		Email:     email,
		FirstName: "Admin",
		LastName:  "Admin",
		Password:  password,
		Team:      schema.Management,
		IsActive:  true,
		IsStaff:   true,
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "lower(email) = ?", strings.ToLower(email))
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&user)
			if result.Error != nil {
				slog.Error("sql error creating initial admin user", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

// createLocalUser inserts the crm row for a user, refusing emails already taken in any
// case.
func createLocalUser(db *gorm.DB, user *schema.User) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "lower(email) = ?", strings.ToLower(user.Email))
		if result.Error != nil {
			slog.Error("sql error checking for existing email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrEmailAlreadyInUse
		}

		result = txn.Create(user)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return ErrEmailAlreadyInUse
			}
			slog.Error("sql error creating new user entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})
}

type requestContextKey string

const (
	UserRequestContextKey requestContextKey = "user"
)
