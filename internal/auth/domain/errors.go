package domain

import (
	"fmt"
	"time"
)

// ErrorClass is how an auth failure is presented and whether it is retried.
type ErrorClass string

const (
	// ErrorClassUser covers validation failures, bad credentials and rate
	// limits. Never retried automatically.
	ErrorClassUser ErrorClass = "user"

	// ErrorClassNetwork covers connectivity failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassServer covers 5xx and other backend failures.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassSchema covers responses that do not have the expected shape.
	ErrorClassSchema ErrorClass = "schema"
)

// Stable error codes carried on AuthError and in telemetry.
const (
	CodeValidation         = "validation_error"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeRateLimited        = "rate_limited"
	CodeNetwork            = "network_error"
	CodeServer             = "server_error"
	CodeUnexpectedResponse = "unexpected_response"
	CodeRefreshExhausted   = "refresh_exhausted"
	CodeRefreshRejected    = "refresh_rejected"
	CodeSessionEnded       = "session_ended"
)

// AuthError is the single error a mutation returns to the UI. Message is
// already localized for display.
type AuthError struct {
	Class   ErrorClass
	Code    string
	Message string

	// RetryAfter is set for rate-limit errors.
	RetryAfter time.Duration

	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (%s): %v", e.Class, e.Code, e.Err)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Class, e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }
