package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user.
	UserID() string
	// Claims unmarshalls the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Interceptor inspects an HTTP request before the transport reads any
// message from it. It returns an error marked with ErrUnauthorized to reject
// the request.
type Interceptor interface {
	Intercept(r *http.Request) (UserInfo, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(r *http.Request) (UserInfo, error)

func (f InterceptorFunc) Intercept(r *http.Request) (UserInfo, error) { return f(r) }

// credential extracts the presented secret from header. A leading "Bearer "
// is stripped so both raw and bearer-style values work.
func credential(r *http.Request, header string) (string, error) {
	v := strings.TrimSpace(r.Header.Get(header))
	if v == "" {
		return "", errors.Mark(errors.Newf("missing %s header", header), ErrUnauthorized)
	}
	const bearerPrefix = "bearer "
	if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		v = strings.TrimSpace(v[len(bearerPrefix):])
	}
	if v == "" {
		return "", errors.Mark(errors.Newf("empty credential in %s header", header), ErrUnauthorized)
	}
	return v, nil
}

// userInfo is the concrete implementation of UserInfo.
type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }

func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
