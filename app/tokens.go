package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/artpar/actionkit/adapters/auth"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/core/registry"
)

// TokenResponse is an issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenEndpoints exchanges credentials for bearer tokens.
type TokenEndpoints struct {
	tokens *auth.TokenService
	realm  string
}

// NewTokenEndpoints creates the token endpoints backed by tokens.
func NewTokenEndpoints(tokens *auth.TokenService, realm string) *TokenEndpoints {
	if realm == "" {
		realm = "api"
	}
	return &TokenEndpoints{tokens: tokens, realm: realm}
}

// View returns the auth view:
//
//	POST /auth/token  exchange Basic credentials (or a valid bearer token) for a new token
//	GET  /auth/me     describe the caller
func (s *TokenEndpoints) View() registry.View {
	return registry.View{
		Name: "auth",
		Filters: []action.Filter{
			auth.IsAuthenticated(fmt.Sprintf(`Basic realm=%q`, s.realm)),
		},
		Endpoints: []registry.Endpoint{
			{Route: action.Route{Name: "auth.token", Method: http.MethodPost, Pattern: "/auth/token", Handler: s.issue, Schema: TokenSchema}},
			{Route: action.Route{Name: "auth.me", Method: http.MethodGet, Pattern: "/auth/me", Handler: s.me, Schema: PrincipalSchema}},
		},
	}
}

func (s *TokenEndpoints) issue(ctx *action.Context) (any, error) {
	p := ctx.Principal
	if raw, ok := ctx.Credentials.(string); ok && p.Backend == auth.JWTFilterName {
		token, exp, err := s.tokens.Refresh(raw)
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		return action.Created(TokenResponse{Token: token, ExpiresAt: exp}), nil
	}
	token, exp, err := s.tokens.Issue(p.ID, p.Name, p.Roles)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return action.Created(TokenResponse{Token: token, ExpiresAt: exp}), nil
}

func (s *TokenEndpoints) me(ctx *action.Context) (any, error) {
	return ctx.Principal, nil
}
