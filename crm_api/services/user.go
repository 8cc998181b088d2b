package services

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"epic_events/crm_api/auth"
	"epic_events/crm_api/lifecycle"
	"epic_events/crm_api/policy"
	"epic_events/crm_api/schema"
	"epic_events/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"gorm.io/gorm"
)

const (
	defaultLoginRateLimit  = 10
	defaultLoginRateWindow = time.Minute
)

type UserService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	variables Variables
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	limit, window := s.variables.LoginRateLimit, s.variables.LoginRateWindow
	if limit <= 0 {
		limit = defaultLoginRateLimit
	}
	if window <= 0 {
		window = defaultLoginRateWindow
	}

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(limit, window))

		r.Get("/login", s.LoginWithEmail)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.With(auth.Policy(policy.UserResource, policy.List)).Get("/", s.List)
		r.Get("/info", s.Info)
		r.With(auth.Policy(policy.UserResource, policy.Retrieve)).Get("/{user_id}", s.Retrieve)
		r.With(auth.Policy(policy.UserResource, policy.Create)).Post("/register", s.Register)
	})

	return r
}

type loginResponse struct {
	UserId      uint   `json:"user_id"`
	AccessToken string `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		utils.WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("missing or invalid Authorization header"), "")
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail), errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserInactive):
			responseCode = http.StatusUnauthorized
		case errors.Is(err, auth.ErrNoTeamRole):
			responseCode = http.StatusForbidden
		}
		utils.WriteError(w, r, responseCode, fmt.Errorf("login failed: %w", err), "")
		return
	}

	utils.WriteJsonResponse(w, r, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

type registerRequest struct {
	Email           string          `json:"email"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirm_password"`
	Team            schema.UserTeam `json:"team"`
}

func (req *registerRequest) validate() error {
	if err := lifecycle.ValidateEmail("email", req.Email); err != nil {
		return err
	}
	if err := lifecycle.ValidateName("first_name", req.FirstName); err != nil {
		return err
	}
	if err := lifecycle.ValidateName("last_name", req.LastName); err != nil {
		return err
	}
	if err := lifecycle.RequireField("password", req.Password); err != nil {
		return err
	}
	if req.Password != req.ConfirmPassword {
		return &lifecycle.ValidationError{Field: "confirm_password", Message: "passwords do not match"}
	}
	if !req.Team.Valid() {
		return &lifecycle.ValidationError{Field: "team", Message: "this field is required"}
	}
	return nil
}

type registerResponse struct {
	UserId uint `json:"user_id"`
}

func (s *UserService) Register(w http.ResponseWriter, r *http.Request) {
	var params registerRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := params.validate(); err != nil {
		writeError(w, r, policy.UserResource, policy.Create, err)
		return
	}

	userId, err := s.userAuth.CreateUser(auth.NewUser{
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Password:  params.Password,
		Team:      params.Team,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			err = CodedError(err, http.StatusConflict)
		}
		writeError(w, r, policy.UserResource, policy.Create, err)
		return
	}

	utils.WriteCreated(w, r, registerResponse{UserId: userId})
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db.Model(&schema.User{})

	if team := r.URL.Query().Get("team"); team != "" {
		parsed, err := schema.ParseTeam(team)
		if err != nil {
			writeError(w, r, policy.UserResource, policy.List, badRequest(err))
			return
		}
		query = query.Where("team = ?", parsed)
	}

	page := utils.ParsePagination(r)
	var users []schema.User
	total, err := paginate(query, page, &users)
	if err != nil {
		writeError(w, r, policy.UserResource, policy.List, err)
		return
	}

	utils.WritePage(w, r, convertAll(users, convertToUserInfo), total, page)
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		writeError(w, r, policy.UserResource, policy.Retrieve, err)
		return
	}

	expiration, err := s.userAuth.GetTokenExpiration(r)
	if err != nil {
		utils.WriteError(w, r, http.StatusUnauthorized, err, "")
		return
	}

	utils.WriteJsonResponse(w, r, CurrentUserInfo{UserInfo: convertToUserInfo(user), TokenExpiresAt: expiration})
}

func (s *UserService) Retrieve(w http.ResponseWriter, r *http.Request) {
	userId, err := pathId(r, "user_id")
	if err != nil {
		writeError(w, r, policy.UserResource, policy.Retrieve, err)
		return
	}

	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		writeError(w, r, policy.UserResource, policy.Retrieve, err)
		return
	}

	utils.WriteJsonResponse(w, r, convertToUserInfo(user))
}
