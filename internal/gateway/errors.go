package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ggoodman/notion-mcp/internal/errkind"
)

const (
	hintShare       = "Make sure the page or database is shared with the integration (Share > Connections in the page menu)."
	hintCredential  = "Check NOTION_API_KEY and the integration's capabilities."
	hintUnavailable = "The backend is busy or unreachable; try again later."
)

// backendError is the error body returned by the REST API.
type backendError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeBackendError(body []byte) backendError {
	var be backendError
	if err := json.Unmarshal(body, &be); err != nil || be.Message == "" {
		be.Message = strings.TrimSpace(string(body))
		if len(be.Message) > 200 {
			be.Message = be.Message[:200]
		}
	}
	return be
}

// statusError maps a non-success HTTP status to the error taxonomy. The
// backend's message is carried verbatim; it never contains the credential.
func statusError(op string, status int, body []byte) error {
	be := decodeBackendError(body)
	msg := be.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err := errkind.New(errkind.Unauthorized, "%s: backend rejected the request (%d): %s", op, status, msg)
		return errors.WithHint(err, hintCredential)
	case status == http.StatusNotFound:
		err := errkind.New(errkind.NotFound, "%s: object not found: %s", op, msg)
		return errors.WithHint(err, hintShare)
	case status == http.StatusTooManyRequests || status >= 500:
		err := errkind.New(errkind.Unavailable, "%s: backend unavailable (%d): %s", op, status, msg)
		return errors.WithHint(err, hintUnavailable)
	default:
		return errkind.New(errkind.InvalidRequest, "%s: %s", op, msg)
	}
}

func transportError(op string, err error) error {
	err = errors.Wrapf(err, "%s: request failed", op)
	return errors.WithHint(errkind.Mark(err, errkind.Unavailable), hintUnavailable)
}
