package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
)

// MessageCatalog holds the user-facing strings for auth failures.
type MessageCatalog struct {
	InvalidEmail       string
	MissingPassword    string
	InvalidCredentials string
	EmailNotConfirmed  string
	RateLimited        string // formatted with the wait in seconds
	TooManyRequests    string // backend rate limit, wait unknown
	Network            string
	Server             string
	UnexpectedResponse string
}

// Messages is the English catalogue.
var Messages = MessageCatalog{
	InvalidEmail:       "Please enter a valid email address.",
	MissingPassword:    "Please enter your password.",
	InvalidCredentials: "Invalid email or password.",
	EmailNotConfirmed:  "Please verify your email address before logging in.",
	RateLimited:        "Too many attempts. Please try again in %d seconds.",
	TooManyRequests:    "Too many attempts. Please wait a moment and try again.",
	Network:            "Unable to connect. Please check your internet connection and try again.",
	Server:             "Something went wrong on our end. Please try again later.",
	UnexpectedResponse: "We received an unexpected response. Please try again.",
}

// RateLimitedMessage renders the rate-limit message for a wait.
func (c MessageCatalog) RateLimitedMessage(seconds int) string {
	return fmt.Sprintf(c.RateLimited, seconds)
}

// For returns the message for a classified failure.
func (c MessageCatalog) For(class domain.ErrorClass, code string) string {
	switch code {
	case domain.CodeInvalidCredentials:
		return c.InvalidCredentials
	case domain.CodeEmailNotConfirmed:
		return c.EmailNotConfirmed
	case domain.CodeRateLimited:
		return c.TooManyRequests
	}

	switch class {
	case domain.ErrorClassNetwork:
		return c.Network
	case domain.ErrorClassSchema:
		return c.UnexpectedResponse
	case domain.ErrorClassUser:
		return c.InvalidCredentials
	default:
		return c.Server
	}
}

var (
	networkMessagePatterns = []string{"network", "fetch", "timeout", "timed out", "connection", "offline"}
	userMessagePatterns    = []string{"invalid", "credentials", "password", "email", "not confirmed"}
	schemaMessagePatterns  = []string{"unexpected", "schema", "parse", "json"}
)

// ClassifyError sorts a backend error into an error class and a stable code.
// Status codes decide first; typed SDK errors next; the error text last.
// Anything unrecognised is a server error.
func ClassifyError(err error) (domain.ErrorClass, string) {
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr)
	}

	var netErr *authsdk.NetworkError
	switch {
	case errors.Is(err, authsdk.ErrUnexpectedResponse):
		return domain.ErrorClassSchema, domain.CodeUnexpectedResponse
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrorClassNetwork, domain.CodeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, networkMessagePatterns):
		return domain.ErrorClassNetwork, domain.CodeNetwork
	case containsAny(msg, schemaMessagePatterns):
		return domain.ErrorClassSchema, domain.CodeUnexpectedResponse
	case containsAny(msg, userMessagePatterns):
		return domain.ErrorClassUser, domain.CodeInvalidCredentials
	default:
		return domain.ErrorClassServer, domain.CodeServer
	}
}

func classifyStatus(apiErr *authsdk.APIError) (domain.ErrorClass, string) {
	switch {
	case apiErr.StatusCode == http.StatusRequestTimeout:
		return domain.ErrorClassNetwork, domain.CodeNetwork
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return domain.ErrorClassUser, domain.CodeRateLimited
	case apiErr.StatusCode >= 500:
		return domain.ErrorClassServer, domain.CodeServer
	case apiErr.StatusCode >= 400:
		if apiErr.Code == "email_not_confirmed" ||
			strings.Contains(strings.ToLower(apiErr.Message), "email not confirmed") {
			return domain.ErrorClassUser, domain.CodeEmailNotConfirmed
		}
		return domain.ErrorClassUser, domain.CodeInvalidCredentials
	default:
		return domain.ErrorClassServer, domain.CodeServer
	}
}

// newAuthError classifies err into the error the UI sees.
func newAuthError(err error) *domain.AuthError {
	class, code := ClassifyError(err)
	return &domain.AuthError{
		Class:   class,
		Code:    code,
		Message: Messages.For(class, code),
		Err:     err,
	}
}

func validationError(message string, err error) *domain.AuthError {
	return &domain.AuthError{
		Class:   domain.ErrorClassUser,
		Code:    domain.CodeValidation,
		Message: message,
		Err:     err,
	}
}

func rateLimitError(result LimitResult) *domain.AuthError {
	return &domain.AuthError{
		Class:      domain.ErrorClassUser,
		Code:       domain.CodeRateLimited,
		Message:    Messages.RateLimitedMessage(result.RemainingSeconds),
		RetryAfter: time.Duration(result.RemainingSeconds) * time.Second,
	}
}
