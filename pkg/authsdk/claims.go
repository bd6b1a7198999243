package authsdk

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims are the claims Supabase Auth puts into access tokens.
type AccessTokenClaims struct {
	jwt.RegisteredClaims

	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	AAL       string `json:"aal,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ParseAccessTokenClaims decodes token claims without verifying the signature.
// The project's JWT secret never ships to devices; the server verifies tokens.
func ParseAccessTokenClaims(token string) (*AccessTokenClaims, error) {
	var claims AccessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	return &claims, nil
}

// Validate checks that a token response is usable as a session.
func (s *Session) Validate() error {
	if s.AccessToken == "" {
		return errors.New("missing access_token")
	}
	if s.RefreshToken == "" {
		return errors.New("missing refresh_token")
	}
	if s.User == nil || s.User.ID == "" {
		return errors.New("missing user id")
	}

	claims, err := ParseAccessTokenClaims(s.AccessToken)
	if err != nil {
		return err
	}
	if claims.Subject != s.User.ID {
		return fmt.Errorf("access token subject %q does not match user id", claims.Subject)
	}
	return nil
}
