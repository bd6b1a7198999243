package authsdk

import (
	"context"
	"net/http"
	"strings"
)

// SDKClient is a client for the Supabase Auth API of one project.
type SDKClient struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co
	BaseURL string

	// APIKey is the project's anon (publishable) key. It is sent as the apikey
	// header on every call and as the bearer token on unauthenticated calls.
	APIKey string

	HTTPClient *http.Client
}

// NewSDKClient creates a client for the project at baseURL.
func NewSDKClient(baseURL, apiKey string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		// No client timeout here; callers bound requests with their context
		// or set one on HTTPClient.
		HTTPClient: &http.Client{},
	}
}

// Health checks that the Auth API is reachable. It is used as the
// connectivity probe.
func (c *SDKClient) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil, "")
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
