package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"quicklaunch.dev/internal/rbac"
)

const issuerName = "quicklaunch"

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the JWT claims carried by every access token. An
// impersonated token additionally carries the impersonation session id
// so delegated requests can be correlated back for revocation and audit.
type Claims struct {
	Role                   string `json:"role"`
	AccountID              string `json:"account_id"`
	ImpersonationSessionID string `json:"imp_session_id,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithAccessTTL overrides the default access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithClock overrides the time source. Test use.
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer with the signing secret.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	iss := &Issuer{
		secret:    []byte(secret),
		accessTTL: 15 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Issue signs an access token for the given user.
func (i *Issuer) Issue(userID, accountID uuid.UUID, role rbac.Role) (string, time.Time, error) {
	return i.sign(userID, accountID, role, "", i.accessTTL)
}

// IssueImpersonation mints a time-boxed token acting as the target user,
// bound to the impersonation session so the token dies with the session.
func (i *Issuer) IssueImpersonation(targetUserID, accountID uuid.UUID, role rbac.Role, sessionID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	if sessionID == uuid.Nil {
		return "", time.Time{}, errors.New("auth: impersonation session id is required")
	}
	return i.sign(targetUserID, accountID, role, sessionID.String(), ttl)
}

func (i *Issuer) sign(userID, accountID uuid.UUID, role rbac.Role, sessionID string, ttl time.Duration) (string, time.Time, error) {
	if userID == uuid.Nil {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("auth: invalid role %d", role)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("auth: ttl must be greater than zero")
	}

	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role:                   role.String(),
		AccountID:              accountID.String(),
		ImpersonationSessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (i *Issuer) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuerName), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if _, err := rbac.ParseRole(claims.Role); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
