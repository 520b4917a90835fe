// Package errkind defines the error taxonomy shared by the content mapper, the
// API gateway and the dispatcher. Errors are classified by marking them with
// one of the sentinel kinds below; remediation text travels as an error hint.
//
//	err := errors.Newf("page %q", id)
//	err = errkind.Mark(err, errkind.NotFound)
//	err = errors.WithHint(err, "share the page with the integration")
//
//	errkind.Of(err)   // "NotFound"
//	errkind.Hint(err) // "share the page with the integration"
package errkind

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// Dispatcher-local; never reach the backend.
	InvalidArguments = errors.New("InvalidArguments")
	UnknownOperation = errors.New("UnknownOperation")

	// Gateway-originated.
	MissingCredential = errors.New("MissingCredential")
	Unauthorized      = errors.New("Unauthorized")
	NotFound          = errors.New("NotFound")
	InvalidRequest    = errors.New("InvalidRequest")
	Unavailable       = errors.New("Unavailable")

	// Mapper-originated.
	UnsupportedPropertyType = errors.New("UnsupportedPropertyType")
	InvalidPropertyValue    = errors.New("InvalidPropertyValue")

	// Internal covers failures that escaped classification (including
	// recovered panics).
	Internal = errors.New("Internal")
)

var kinds = []error{
	InvalidArguments,
	UnknownOperation,
	MissingCredential,
	Unauthorized,
	NotFound,
	InvalidRequest,
	Unavailable,
	UnsupportedPropertyType,
	InvalidPropertyValue,
	Internal,
}

// Mark classifies err as kind.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, kind)
}

// New returns a new error of the given kind.
func New(kind error, format string, args ...any) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), kind)
}

// Of reports the kind name of err. Unclassified errors report "Internal".
func Of(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return Internal.Error()
}

// Hint returns the remediation hints attached to err, joined by a space.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(errors.GetAllHints(err), " ")
}
