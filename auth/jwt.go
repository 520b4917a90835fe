package auth

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

type jwtConfig struct {
	audience   string
	issuer     string
	leeway     time.Duration
	requireExp bool
}

// JWTOption configures the JWT interceptor.
type JWTOption func(*jwtConfig)

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) JWTOption {
	return func(c *jwtConfig) { c.audience = aud }
}

// WithIssuer requires the iss claim to equal iss.
func WithIssuer(iss string) JWTOption {
	return func(c *jwtConfig) { c.issuer = iss }
}

// WithLeeway adds tolerance for clock skew when validating exp/iat/nbf.
// Defaults to 60s.
func WithLeeway(d time.Duration) JWTOption {
	return func(c *jwtConfig) { c.leeway = d }
}

// WithExpirationRequired rejects tokens without an exp claim.
func WithExpirationRequired() JWTOption {
	return func(c *jwtConfig) { c.requireExp = true }
}

type jwtInterceptor struct {
	header string
	key    []byte
	parser *jwt.Parser
}

// JWT accepts requests whose header carries an HS256 token signed with
// secret. Only HS256 is allowed; the sub claim becomes the user id.
func JWT(header, secret string, opts ...JWTOption) Interceptor {
	cfg := jwtConfig{leeway: 60 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.leeway),
		jwt.WithIssuedAt(),
	}
	if cfg.audience != "" {
		popts = append(popts, jwt.WithAudience(cfg.audience))
	}
	if cfg.issuer != "" {
		popts = append(popts, jwt.WithIssuer(cfg.issuer))
	}
	if cfg.requireExp {
		popts = append(popts, jwt.WithExpirationRequired())
	}

	return &jwtInterceptor{header: header, key: []byte(secret), parser: jwt.NewParser(popts...)}
}

func (j *jwtInterceptor) Intercept(r *http.Request) (UserInfo, error) {
	raw, err := credential(r, j.header)
	if err != nil {
		return nil, err
	}
	tok, err := j.parser.Parse(raw, func(*jwt.Token) (any, error) {
		return j.key, nil
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "token parse/verify failed"), ErrUnauthorized)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Mark(errors.New("invalid claims type"), ErrUnauthorized)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		sub = "jwt"
	}
	return &userInfo{sub: sub, claims: claims}, nil
}
