package middleware

import (
	"context"
	"errors"
	apperrors "fleetrent/pkg/errors"
	httputil "fleetrent/pkg/http"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/model"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

const identityKey contextKey = "identity"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are issued by the identity service: the subject is the user ID.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and exposes the caller's
// identity to httprouter handles.
type Authenticator struct {
	secret []byte
	log    *logger.Logger
}

func NewAuthenticator(secret string, log *logger.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), log: log}
}

func (a *Authenticator) Identify(r *http.Request) (model.Identity, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return model.Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return model.Identity{}, ErrInvalidToken
	}

	if claims.Subject == "" || !claims.Role.Valid() {
		return model.Identity{}, ErrInvalidToken
	}

	return model.Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// Required rejects requests without a valid token with 401.
func (a *Authenticator) Required(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		identity, err := a.Identify(r)
		if err != nil {
			a.log.Warn("Authentication failed",
				"request_id", RequestID(r.Context()),
				"path", r.URL.Path,
				"error", err,
			)
			message := "Unauthorized: Invalid token"
			if errors.Is(err, ErrMissingToken) {
				message = "Unauthorized: No token provided"
			}
			_ = httputil.WriteError(w, apperrors.Unauthorized(message))
			return
		}

		next(w, r.WithContext(WithIdentity(r.Context(), identity)), ps)
	}
}

// AdminOnly is Required plus a 403 for non-admin callers.
func (a *Authenticator) AdminOnly(next httprouter.Handle) httprouter.Handle {
	return a.Required(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		identity, _ := IdentityFromContext(r.Context())
		if !identity.IsAdmin() {
			_ = httputil.WriteError(w, apperrors.Forbidden("Forbidden: Admin access required"))
			return
		}
		next(w, r, ps)
	})
}

// IssueToken signs a token for identity. Tokens are normally minted by the
// identity service; this exists for tooling and tests.
func (a *Authenticator) IssueToken(identity model.Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}
