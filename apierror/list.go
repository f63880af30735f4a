package apierror

import (
	"fmt"
	"net/http"
)

// ErrorList is an ordered collection of errors that is itself an
// error. The schema layer fails fast and never produces one, but the
// HTTP boundary may aggregate independent failures (for example every
// malformed query parameter of a request) before responding.
type ErrorList []*Error

// Error implements the error interface.
func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", l[0].Error(), len(l)-1)
	}
}

// Append adds err to the list. An *Error is appended as-is, an
// ErrorList is flattened, and any other error becomes an opaque 500.
func (l ErrorList) Append(err error) ErrorList {
	switch e := err.(type) {
	case nil:
		return l
	case *Error:
		return append(l, e)
	case ErrorList:
		return append(l, e...)
	default:
		return append(l, Internal(err.Error()))
	}
}

// Status returns the response status for the whole list: the common
// status if every error agrees, otherwise the most generic 4xx/5xx.
func (l ErrorList) Status() int {
	if len(l) == 0 {
		return http.StatusInternalServerError
	}
	status := l[0].Status
	for _, e := range l[1:] {
		if e.Status == status {
			continue
		}
		if e.Status >= 500 || status >= 500 {
			return http.StatusInternalServerError
		}
		status = http.StatusBadRequest
	}
	return status
}
