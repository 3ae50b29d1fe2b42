package api

import (
	"errors"
	"strconv"
	"strings"

	"github.com/haimi-h/shopify-clone-sub000/internal/session"
)

// ErrUnauthorized is returned for 401 and 403 responses. The stored session
// has already been cleared when it is returned.
var ErrUnauthorized = errors.New("api: session invalid, please log in again")

// GenericMessage is shown when the backend gives no usable error text.
const GenericMessage = "Something went wrong. Please try again."

// APIError is a non-2xx response other than 401/403.
type APIError struct {
	Status  int
	Message string // verbatim from the response body, may be empty
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "api: request failed with status " + strconv.Itoa(e.Status)
	}
	return "api: " + e.Message
}

// ValidationError rejects input locally; the request is never sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// DisplayMessage converts err into the text shown to the user.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, session.ErrNoSession) {
		return "Your session has expired. Please log in again."
	}
	var aerr *APIError
	if errors.As(err, &aerr) && strings.TrimSpace(aerr.Message) != "" {
		return aerr.Message
	}
	return GenericMessage
}
