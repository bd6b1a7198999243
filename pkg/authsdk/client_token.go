package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// SignInWithPassword exchanges an email and password for a session.
func (c *SDKClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.requestToken(ctx, "password", passwordGrantRequest{
		Email:    email,
		Password: password,
	})
}

// RefreshSession exchanges a refresh token for a new session. Supabase rotates
// refresh tokens, so the returned RefreshToken replaces the one passed in.
func (c *SDKClient) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	return c.requestToken(ctx, "refresh_token", refreshGrantRequest{
		RefreshToken: refreshToken,
	})
}

// SignOut revokes the session that owns accessToken. A 401/403/404 means the
// session is already gone server-side and is not reported as an error.
func (c *SDKClient) SignOut(ctx context.Context, accessToken string, scope SignOutScope) error {
	if scope == "" {
		scope = SignOutGlobal
	}

	resp, err := c.doJSON(
		ctx,
		http.MethodPost,
		"/logout",
		url.Values{"scope": {string(scope)}},
		nil,
		accessToken,
	)
	if err != nil {
		return err
	}

	return checkStatus(resp,
		http.StatusOK,
		http.StatusNoContent,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
	)
}

func (c *SDKClient) requestToken(ctx context.Context, grantType string, body any) (*Session, error) {
	resp, err := c.doJSON(
		ctx,
		http.MethodPost,
		"/token",
		url.Values{"grant_type": {grantType}},
		body,
		"",
	)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := decodeJSON(resp, &session, http.StatusOK); err != nil {
		return nil, err
	}

	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	return &session, nil
}
