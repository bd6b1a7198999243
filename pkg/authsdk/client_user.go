package authsdk

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// WithTokenSource returns a copy of c whose requests carry the user's access
// token from src instead of the anon key. src is asked for a token on every
// request, so a ReuseTokenSource that refreshes on expiry keeps calls valid.
func (c *SDKClient) WithTokenSource(src oauth2.TokenSource) *SDKClient {
	base := *c.HTTPClient
	base.Transport = &oauth2.Transport{Source: src, Base: c.HTTPClient.Transport}

	authed := *c
	authed.HTTPClient = &base
	return &authed
}

// GetUser returns the user that owns the request's access token. It needs a
// client built with WithTokenSource.
func (c *SDKClient) GetUser(ctx context.Context) (*User, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/user", nil, nil, "")
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user has no id", ErrUnexpectedResponse)
	}
	return &user, nil
}
