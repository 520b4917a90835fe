package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/cockroachdb/errors"
)

// StaticSecretUserID is the principal reported for requests that present the
// shared secret.
const StaticSecretUserID = "static"

type staticSecret struct {
	header string
	secret []byte
}

// StaticSecret accepts requests whose header carries secret, optionally as a
// bearer token. The comparison runs in constant time.
func StaticSecret(header, secret string) Interceptor {
	return &staticSecret{header: header, secret: []byte(secret)}
}

func (s *staticSecret) Intercept(r *http.Request) (UserInfo, error) {
	tok, err := credential(r, s.header)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(tok), s.secret) != 1 {
		return nil, errors.Mark(errors.New("credential mismatch"), ErrUnauthorized)
	}
	return &userInfo{sub: StaticSecretUserID}, nil
}
