package auth

import (
	"fmt"
	"strings"

	"github.com/artpar/actionkit/adapters/hasher"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/pkg/apierr"
)

// Filter names.
const (
	JWTFilterName       = "jwt"
	BasicFilterName     = "basic"
	IsAuthenticatedName = "is_authenticated"
)

const (
	hasRolePrefix = "has_role:"
	defaultRealm  = "api"
)

// bearer returns the token of an "Authorization: Bearer" header.
func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// JWTFilter authenticates "Authorization: Bearer <token>" requests.
// Requests without a bearer token pass through unauthenticated so other
// authentication filters, or IsAuthenticated, decide what happens.
func JWTFilter(svc *TokenService, realm string) action.Filter {
	if realm == "" {
		realm = defaultRealm
	}
	return action.Filter{
		Name:     JWTFilterName,
		Category: action.Authentication,
		Before: func(ctx *action.Context) error {
			if ctx.Principal != nil {
				return nil
			}
			token, ok := bearer(ctx.Request.Header.Get("Authorization"))
			if !ok {
				return nil
			}
			claims, err := svc.Validate(token)
			if err != nil {
				ctx.Logger.Debug().Err(err).Msg("bearer token rejected")
				return apierr.AuthenticationFailed("Invalid token.").
					WithHeader("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, realm))
			}
			ctx.Principal = &action.Principal{
				ID:      claims.Subject,
				Name:    claims.Name,
				Roles:   claims.Roles,
				Claims:  map[string]any{"iss": claims.Issuer, "exp": claims.ExpiresAt.Time},
				Backend: JWTFilterName,
			}
			ctx.Credentials = token
			return nil
		},
	}
}

// User is a basic-auth account.
type User struct {
	// PasswordHash is a bcrypt hash.
	PasswordHash string
	Roles        []string
}

// BasicFilter authenticates HTTP Basic requests against users.
func BasicFilter(realm string, users map[string]User, h hasher.Hasher) action.Filter {
	if realm == "" {
		realm = defaultRealm
	}
	challenge := fmt.Sprintf(`Basic realm=%q`, realm)
	// unknown users are compared against this hash so both paths cost the same
	dummy, _ := h.Hash(GenerateSecret())
	return action.Filter{
		Name:     BasicFilterName,
		Category: action.Authentication,
		Order:    10,
		Before: func(ctx *action.Context) error {
			if ctx.Principal != nil {
				return nil
			}
			name, password, ok := ctx.Request.BasicAuth()
			if !ok {
				return nil
			}
			user, known := users[name]
			hash := dummy
			if known {
				hash = []byte(user.PasswordHash)
			}
			if !h.Compare(hash, password) || !known {
				ctx.Logger.Debug().Str("user", name).Msg("basic credentials rejected")
				return apierr.AuthenticationFailed("Invalid username/password.").
					WithHeader("WWW-Authenticate", challenge)
			}
			ctx.Principal = &action.Principal{
				ID:      name,
				Name:    name,
				Roles:   user.Roles,
				Backend: BasicFilterName,
			}
			ctx.Credentials = name
			return nil
		},
	}
}

// IsAuthenticated rejects anonymous requests. challenge, when set, is sent
// as WWW-Authenticate.
func IsAuthenticated(challenge string) action.Filter {
	return action.Filter{
		Name:     IsAuthenticatedName,
		Category: action.Authorization,
		Before: func(ctx *action.Context) error {
			if ctx.IsAuthenticated() {
				return nil
			}
			return notAuthenticated(challenge)
		},
	}
}

// HasRole rejects callers lacking role. Anonymous callers get a 401.
func HasRole(role string) action.Filter {
	return action.Filter{
		Name:     hasRolePrefix + role,
		Category: action.Authorization,
		Order:    10,
		Before: func(ctx *action.Context) error {
			if !ctx.IsAuthenticated() {
				return notAuthenticated("")
			}
			if !ctx.Principal.HasRole(role) {
				return apierr.PermissionDenied("")
			}
			return nil
		},
	}
}

func notAuthenticated(challenge string) error {
	err := apierr.NotAuthenticated("")
	if challenge != "" {
		return err.WithHeader("WWW-Authenticate", challenge)
	}
	return err
}
