package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"epic_events/crm_api/schema"
	"epic_events/utils"
	"epic_events/utils/logging"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const keycloakTimeout = 5 * time.Second

// Realm roles granting membership of a crm team. A keycloak account needs exactly one.
const teamRolePrefix = "crm-"

func TeamRole(team schema.UserTeam) string {
	return teamRolePrefix + team.String()
}

var crmTeams = []schema.UserTeam{schema.Management, schema.Support, schema.Sales}

// KeycloakIdentityProvider delegates passwords and tokens to a keycloak realm. The crm
// keeps a local user row per account, keyed by email, with the team taken from the
// account's realm role.
type KeycloakIdentityProvider struct {
	keycloak *gocloak.GoCloak
	db       *gorm.DB
	auditLog AuditLogger

	realm                        string
	clientId, clientSecret       string
	adminUsername, adminPassword string
}

type KeycloakArgs struct {
	ServerUrl string
	Realm     string

	// Client used for the password grant behind /users/login.
	ClientId     string
	ClientSecret string

	// Keycloak administrator, in the master realm.
	KeycloakAdminUsername string
	KeycloakAdminPassword string

	// Initial crm management account.
	AdminEmail    string
	AdminPassword string

	Verbose bool
}

func isConflict(err error) bool {
	var apiErr *gocloak.APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func isUnauthorized(err error) bool {
	var apiErr *gocloak.APIError
	return errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusBadRequest)
}

func pArg[T any](value T) *T {
	return &value
}

func keycloakCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), keycloakTimeout)
}

func NewKeycloakIdentityProvider(db *gorm.DB, auditLog AuditLogger, args KeycloakArgs) (IdentityProvider, error) {
	client := gocloak.NewClient(strings.TrimSuffix(args.ServerUrl, "/"))
	client.RestyClient().SetDebug(args.Verbose)

	auth := &KeycloakIdentityProvider{
		keycloak:      client,
		db:            db,
		auditLog:      auditLog,
		realm:         args.Realm,
		clientId:      args.ClientId,
		clientSecret:  args.ClientSecret,
		adminUsername: args.KeycloakAdminUsername,
		adminPassword: args.KeycloakAdminPassword,
	}

	adminToken, err := auth.adminLogin()
	if err != nil {
		slog.Error("KEYCLOAK: admin login failed", "error", err)
		return nil, err
	}

	if err := auth.ensureTeamRoles(adminToken); err != nil {
		slog.Error("KEYCLOAK: team role creation failed", "error", err)
		return nil, err
	}

	admin := NewUser{
		Email:     args.AdminEmail,
		FirstName: "Admin",
		LastName:  "Admin",
		Password:  args.AdminPassword,
		Team:      schema.Management,
	}
	if err := auth.createAccount(adminToken, admin); err != nil && !errors.Is(err, ErrEmailAlreadyInUse) {
		slog.Error("KEYCLOAK: initial admin creation failed", "error", err)
		return nil, err
	}

	if err := addInitialAdminToDb(db, args.AdminEmail, nil); err != nil {
		return nil, err
	}
	slog.Info("KEYCLOAK: provider initialized", "code", logging.AUTH, "realm", args.Realm)

	return auth, nil
}

func (auth *KeycloakIdentityProvider) adminLogin() (string, error) {
	ctx, cancel := keycloakCtx()
	defer cancel()

	// The "master" realm is the default admin realm in Keycloak.
	token, err := auth.keycloak.LoginAdmin(ctx, auth.adminUsername, auth.adminPassword, "master")
	if err != nil {
		return "", fmt.Errorf("error during keycloak admin login: %w", err)
	}
	return token.AccessToken, nil
}

func (auth *KeycloakIdentityProvider) ensureTeamRoles(adminToken string) error {
	ctx, cancel := keycloakCtx()
	defer cancel()

	for _, team := range crmTeams {
		_, err := auth.keycloak.CreateRealmRole(ctx, adminToken, auth.realm, gocloak.Role{
			Name:        pArg(TeamRole(team)),
			Description: pArg(fmt.Sprintf("member of the %v team", team)),
		})
		if err != nil && !isConflict(err) {
			return fmt.Errorf("error creating realm role %v: %w", TeamRole(team), err)
		}
	}
	return nil
}

// createAccount creates the keycloak account for user and grants its team role.
func (auth *KeycloakIdentityProvider) createAccount(adminToken string, user NewUser) error {
	ctx, cancel := keycloakCtx()
	defer cancel()

	existing, err := auth.keycloak.GetUsers(ctx, adminToken, auth.realm, gocloak.GetUsersParams{
		Email: &user.Email,
		Exact: pArg(true),
		Max:   pArg(1),
	})
	if err != nil {
		return fmt.Errorf("unable to get users: %w", err)
	}
	if len(existing) > 0 {
		return ErrEmailAlreadyInUse
	}

	accountId, err := auth.keycloak.CreateUser(ctx, adminToken, auth.realm, gocloak.User{
		Username:      &user.Email,
		Email:         &user.Email,
		FirstName:     &user.FirstName,
		LastName:      &user.LastName,
		Enabled:       pArg(true),
		EmailVerified: pArg(true),
		Credentials: &[]gocloak.CredentialRepresentation{{
			Type:      pArg("password"),
			Value:     &user.Password,
			Temporary: pArg(false),
		}},
	})
	if err != nil {
		if isConflict(err) {
			return ErrEmailAlreadyInUse
		}
		return fmt.Errorf("error creating new user in keycloak: %w", err)
	}

	role, err := auth.keycloak.GetRealmRole(ctx, adminToken, auth.realm, TeamRole(user.Team))
	if err != nil {
		return fmt.Errorf("error getting realm role %v: %w", TeamRole(user.Team), err)
	}
	if err := auth.keycloak.AddRealmRoleToUser(ctx, adminToken, auth.realm, accountId, []gocloak.Role{*role}); err != nil {
		return fmt.Errorf("error assigning realm role %v: %w", TeamRole(user.Team), err)
	}

	return nil
}

func getToken(r *http.Request) (string, error) {
	if token := jwtauth.TokenFromHeader(r); token != "" {
		return token, nil
	}
	if token := jwtauth.TokenFromCookie(r); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("unable to find auth token")
}

// tokenClaims reads the claims of a token keycloak has already accepted. Signature and
// expiry are checked by keycloak through the userinfo call, not here.
func tokenClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed access token: %w", err)
	}
	return claims, nil
}

// TeamFromClaims maps the realm roles in an access token onto a crm team.
func TeamFromClaims(claims jwt.MapClaims) (schema.UserTeam, error) {
	access, _ := claims["realm_access"].(map[string]interface{})
	roles, _ := access["roles"].([]interface{})

	var team schema.UserTeam
	for _, role := range roles {
		name, _ := role.(string)
		for _, candidate := range crmTeams {
			if name != TeamRole(candidate) {
				continue
			}
			if team != 0 && team != candidate {
				return 0, fmt.Errorf("%w: has roles for both %v and %v", ErrNoTeamRole, team, candidate)
			}
			team = candidate
		}
	}

	if team == 0 {
		return 0, ErrNoTeamRole
	}
	return team, nil
}

func optionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// resolveUser validates token with keycloak and returns the matching crm user, creating
// it on first sight. The team always follows the realm role, so regranting a role in
// keycloak moves the user on their next request.
func (auth *KeycloakIdentityProvider) resolveUser(token string) (schema.User, error) {
	ctx, cancel := keycloakCtx()
	defer cancel()

	userInfo, err := auth.keycloak.GetUserInfo(ctx, token, auth.realm)
	if err != nil {
		return schema.User{}, fmt.Errorf("%w: unable to verify token with keycloak: %v", ErrInvalidCredentials, err)
	}
	if userInfo.Email == nil {
		return schema.User{}, fmt.Errorf("%w: keycloak returned no email for the token", ErrInvalidCredentials)
	}

	claims, err := tokenClaims(token)
	if err != nil {
		return schema.User{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	team, err := TeamFromClaims(claims)
	if err != nil {
		return schema.User{}, err
	}

	user, err := schema.GetUserByEmail(*userInfo.Email, auth.db)
	if errors.Is(err, schema.ErrUserNotFound) {
		user = schema.User{
			Email:     *userInfo.Email,
			FirstName: optionalString(userInfo.GivenName),
			LastName:  optionalString(userInfo.FamilyName),
			Team:      team,
			IsActive:  true,
			IsStaff:   team == schema.Management,
		}
		if err := createLocalUser(auth.db, &user); err != nil {
			return schema.User{}, fmt.Errorf("error adding keycloak user to db: %w", err)
		}
		slog.Info("KEYCLOAK: user provisioned", "code", logging.AUTH, "user_id", user.Id, "team", team.String())
		return user, nil
	}
	if err != nil {
		return schema.User{}, err
	}

	if user.Team != team {
		result := auth.db.Model(&schema.User{}).Where("id = ?", user.Id).
			Updates(map[string]interface{}{"team": team, "is_staff": team == schema.Management})
		if result.Error != nil {
			slog.Error("sql error updating user team from keycloak role", "user_id", user.Id, "error", result.Error)
			return schema.User{}, schema.ErrDbAccessFailed
		}
		slog.Info("KEYCLOAK: user team changed", "code", logging.AUTH, "user_id", user.Id, "from", user.Team.String(), "to", team.String())
		user.Team = team
		user.IsStaff = team == schema.Management
	}

	return user, nil
}

func (auth *KeycloakIdentityProvider) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, err := getToken(r)
			if err != nil {
				utils.WriteError(w, r, http.StatusUnauthorized, err, "")
				return
			}

			user, err := auth.resolveUser(token)
			if err != nil {
				switch {
				case errors.Is(err, ErrInvalidCredentials):
					utils.WriteError(w, r, http.StatusUnauthorized, err, "")
				case errors.Is(err, ErrNoTeamRole):
					utils.WriteError(w, r, http.StatusForbidden, err, "")
				default:
					slog.Error("unable to resolve keycloak user", "error", err)
					utils.WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("unable to resolve user: %w", schema.ErrDbAccessFailed), "")
				}
				return
			}

			if !user.IsActive {
				utils.WriteError(w, r, http.StatusUnauthorized, ErrUserInactive, "")
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(), auth.auditLog.Middleware}
}

// LoginWithEmail exchanges the credentials for a realm token with the password grant.
func (auth *KeycloakIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	ctx, cancel := keycloakCtx()
	defer cancel()

	token, err := auth.keycloak.Login(ctx, auth.clientId, auth.clientSecret, auth.realm, email, password)
	if err != nil {
		if isUnauthorized(err) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("keycloak login failed: %w", err)
	}

	user, err := auth.resolveUser(token.AccessToken)
	if err != nil {
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, ErrUserInactive
	}

	slog.Info("user logged in", "code", logging.AUTH, "user_id", user.Id, "team", user.Team.String())

	return LoginResult{UserId: user.Id, AccessToken: token.AccessToken}, nil
}

func (auth *KeycloakIdentityProvider) CreateUser(newUser NewUser) (uint, error) {
	if _, err := schema.GetUserByEmail(newUser.Email, auth.db); err == nil {
		return 0, fmt.Errorf("error creating new user: %w", ErrEmailAlreadyInUse)
	}

	adminToken, err := auth.adminLogin()
	if err != nil {
		return 0, err
	}

	if err := auth.createAccount(adminToken, newUser); err != nil {
		return 0, fmt.Errorf("error creating new user: %w", err)
	}

	user := schema.User{
		Email:     newUser.Email,
		FirstName: newUser.FirstName,
		LastName:  newUser.LastName,
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

func (auth *KeycloakIdentityProvider) GetTokenExpiration(r *http.Request) (time.Time, error) {
	token, err := getToken(r)
	if err != nil {
		return time.Time{}, err
	}

	claims, err := tokenClaims(token)
	if err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("error getting token expiration: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("no token expiration found")
	}

	return exp.Time, nil
}
