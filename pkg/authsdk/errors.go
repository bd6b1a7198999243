package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnexpectedResponse is wrapped by errors for 2xx responses whose body does
// not have the expected shape.
var ErrUnexpectedResponse = errors.New("authsdk: unexpected response")

// APIError is a non-success answer from Supabase Auth.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// Code is the machine-readable error code (e.g. "invalid_credentials",
	// "refresh_token_not_found", "over_email_send_rate_limit")
	Code string

	// Message is the human-readable message from the server
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("auth api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("auth api error (status %d): %s: %s", e.StatusCode, e.Code, e.Message)
}

// NetworkError is returned when a request did not produce a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network request failed: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsStatus reports whether err is an APIError with one of the given status codes.
func IsStatus(err error, codes ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.StatusCode == code {
			return true
		}
	}
	return false
}

// parseErrorResponse turns a non-success response into an *APIError,
// falling back to the status text when the body is not a known error shape.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Code = firstNonEmpty(errResp.ErrorCode, errResp.Error)
		apiErr.Message = firstNonEmpty(errResp.Msg, errResp.Message, errResp.ErrorDescription)
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
