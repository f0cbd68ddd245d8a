package youtube

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Kind classifies a provider failure.
type Kind int

const (
	KindTransient Kind = iota
	KindQuota
	KindAccessDenied
	KindNotFound
	KindBadRequest
	KindNoCredentials
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindAccessDenied:
		return "denied"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindNoCredentials:
		return "no_credentials"
	default:
		return "transient"
	}
}

// Error is returned by the package's internal helpers. Exported operations
// convert it to an empty result.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("youtube %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("youtube %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindTransient for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// rotates reports whether a failure should exhaust the current credential.
func (k Kind) rotates() bool {
	return k == KindQuota || k == KindAccessDenied
}

func classify(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reason := ""
		if len(gerr.Errors) > 0 {
			reason = gerr.Errors[0].Reason
		}
		switch {
		case gerr.Code == http.StatusForbidden && (reason == "quotaExceeded" || reason == "dailyLimitExceeded"):
			return &Error{Kind: KindQuota, Op: op, Err: err}
		case gerr.Code == http.StatusForbidden || gerr.Code == http.StatusUnauthorized:
			return &Error{Kind: KindAccessDenied, Op: op, Err: err}
		case gerr.Code == http.StatusNotFound:
			return &Error{Kind: KindNotFound, Op: op, Err: err}
		case gerr.Code == http.StatusBadRequest:
			return &Error{Kind: KindBadRequest, Op: op, Err: err}
		}
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}

	// Timeouts, cancellations and network drops.
	return &Error{Kind: KindTransient, Op: op, Err: err}
}
