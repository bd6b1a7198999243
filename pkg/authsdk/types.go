package authsdk

import "time"

// User is the subset of the Supabase Auth user object the app relies on.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email,omitempty"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	Role             string     `json:"role,omitempty"`
}

// Session is the token endpoint response for both the password and
// refresh_token grants.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// SignOutScope selects which sessions a sign-out revokes.
type SignOutScope string

const (
	SignOutGlobal SignOutScope = "global"
	SignOutLocal  SignOutScope = "local"
	SignOutOthers SignOutScope = "others"
)

// ResendType is the kind of email to resend.
type ResendType string

const (
	ResendSignup      ResendType = "signup"
	ResendEmailChange ResendType = "email_change"
)

// ResendParams is the input to Resend.
type ResendParams struct {
	Type       ResendType
	Email      string
	RedirectTo string
}

// ErrorResponse covers both error body formats Supabase Auth has used:
// {"code":400,"error_code":"...","msg":"..."} and the OAuth2
// {"error":"...","error_description":"..."} form.
type ErrorResponse struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// HealthResponse is returned by GET /auth/v1/health.
type HealthResponse struct {
	Version     string `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type recoverRequest struct {
	Email string `json:"email"`
}

type resendRequest struct {
	Type  ResendType `json:"type"`
	Email string     `json:"email"`
}
