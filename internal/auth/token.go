package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/championcart/backend/internal/common"
)

// RoleAdmin is the role claim value granting catalog administration.
const RoleAdmin = "admin"

const roleClaim = "role"

// Claims are the parts of a verified token the API acts on.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Tokens signs and verifies HS256 bearer tokens with a shared secret.
type Tokens struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

// TokensConfig configures Tokens.
type TokensConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewTokens constructs a Tokens helper. An empty secret is rejected.
func NewTokens(cfg TokensConfig) (*Tokens, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tokens{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		skew:     cfg.ClockSkew,
		now:      now,
	}, nil
}

// Issue signs a token for subject carrying role, valid for ttl.
func (t *Tokens) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := t.now()
	b := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(roleClaim, role)
	if t.issuer != "" {
		b = b.Issuer(t.issuer)
	}
	if t.audience != "" {
		b = b.Audience([]string{t.audience})
	}
	token, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Parse verifies the signature and registered claims of a token. Only HS256
// is accepted; exp and sub are mandatory.
func (t *Tokens) Parse(raw string) (Claims, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Claims{}, unauthorized(errNoToken)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, unauthorized(err)
	}
	if algorithm != jwa.HS256 {
		return Claims{}, unauthorized(fmt.Errorf("auth: unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, t.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, unauthorized(err)
	}
	if err := jwt.Validate(parsed, t.validateOptions()...); err != nil {
		return Claims{}, unauthorized(err)
	}
	claims := Claims{Subject: parsed.Subject(), ExpiresAt: parsed.Expiration()}
	if v, ok := parsed.Get(roleClaim); ok {
		claims.Role, _ = v.(string)
	}
	return claims, nil
}

func (t *Tokens) validateOptions() []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(t.now)),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithRequiredClaim(jwt.SubjectKey),
	}
	if t.skew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(t.skew))
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}
	return opts
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	switch alg {
	case "":
		return "", errors.New("auth: token missing algorithm")
	case jwa.NoSignature:
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}

func unauthorized(err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
}
