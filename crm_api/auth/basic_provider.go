package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"epic_events/crm_api/schema"
	"epic_events/utils"
	"epic_events/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
}

type BasicProviderArgs struct {
	Secret          []byte
	AdminEmail      string
	AdminPassword   string
	TokenExpiration time.Duration
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog AuditLogger, args BasicProviderArgs) (IdentityProvider, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdminToDb(db, args.AdminEmail, hashedPwd)
	if err != nil {
		return nil, fmt.Errorf("error adding inital admin to db: %w", err)
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret, args.TokenExpiration),
		db:         db,
		auditLog:   auditLog,
	}, nil
}

func (auth *BasicIdentityProvider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			userId, err := ValueFromContext(r, userIdKey)
			if err != nil {
				utils.WriteError(w, r, http.StatusUnauthorized, err, "")
				return
			}

			id, err := strconv.ParseUint(userId, 10, 64)
			if err != nil {
				utils.WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid user id '%v' in token", userId), "")
				return
			}

			user, err := schema.GetUser(uint(id), auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					utils.WriteError(w, r, http.StatusUnauthorized, err, "")
					return
				}
				utils.WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("unable to find user %v: %w", userId, err), "")
				return
			}

			if !user.IsActive {
				utils.WriteError(w, r, http.StatusUnauthorized, ErrUserInactive, "")
				return
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addUserToContext(), auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	user, err := schema.GetUserByEmail(email, auth.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return LoginResult{}, ErrUserNotFoundWithEmail
		}
		return LoginResult{}, err
	}

	err = bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return LoginResult{}, ErrUserInactive
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	slog.Info("user logged in", "code", logging.AUTH, "user_id", user.Id, "team", user.Team.String())

	return LoginResult{UserId: user.Id, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) CreateUser(newUser NewUser) (uint, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(newUser.Password), bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("error encrypting password: %w", err)
	}

	user := schema.User{
		Email:     newUser.Email,
		FirstName: newUser.FirstName,
		LastName:  newUser.LastName,
		Password:  hashedPwd,
		Team:      newUser.Team,
		IsActive:  true,
		IsStaff:   newUser.Team == schema.Management,
	}

	if err := createLocalUser(auth.db, &user); err != nil {
		return 0, fmt.Errorf("error creating new user: %w", err)
	}

	slog.Info("user created", "code", logging.AUTH, "user_id", user.Id, "team", user.Team.String())

	return user.Id, nil
}

func (auth *BasicIdentityProvider) GetTokenExpiration(r *http.Request) (time.Time, error) {
	token, _, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return time.Time{}, fmt.Errorf("error retrieving access token: %w", err)
	}

	return token.Expiration(), nil
}
