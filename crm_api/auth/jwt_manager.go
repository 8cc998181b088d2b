package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"epic_events/crm_api/policy"
	"epic_events/crm_api/schema"

	"github.com/go-chi/jwtauth/v5"
)

const defaultTokenExpiration = 15 * time.Minute

type JwtManager struct {
	auth *jwtauth.JWTAuth
	exp  time.Duration
}

func NewJwtManager(secret []byte, exp time.Duration) *JwtManager {
	if exp <= 0 {
		exp = defaultTokenExpiration
	}
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil), exp: exp}
}

func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(m.auth)
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return jwtauth.Authenticator(m.auth)
}

const userIdKey = "user_id"

func (m *JwtManager) createToken(key, value string, exp time.Duration) (string, error) {
	claims := map[string]interface{}{
		key:   value,
		"exp": time.Now().Add(exp),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func (m *JwtManager) CreateUserJwt(userId uint) (string, error) {
	return m.createToken(userIdKey, strconv.FormatUint(uint64(userId), 10), m.exp)
}

func ValueFromContext(r *http.Request, key string) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", fmt.Errorf("error retrieving auth claims: %w", err)
	}

	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}

func UserFromContext(r *http.Request) (schema.User, error) {
	userUntyped := r.Context().Value(UserRequestContextKey)
	if userUntyped == nil {
		return schema.User{}, fmt.Errorf("user field not found in request context")
	}
	user, ok := userUntyped.(schema.User)
	if !ok {
		return schema.User{}, fmt.Errorf("invalid value for user field")
	}
	return user, nil
}

// ActorFromContext returns nil when the request carries no resolved user.
func ActorFromContext(r *http.Request) *policy.Actor {
	user, err := UserFromContext(r)
	if err != nil {
		return nil
	}
	return &policy.Actor{UserId: user.Id, Team: user.Team}
}
