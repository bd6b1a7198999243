package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
)

// url builds a complete URL for an Auth API path.
func (c *SDKClient) url(path string, query url.Values) string {
	u := c.BaseURL + "/auth/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON sends body (if any) as JSON. bearer is the user's access token for
// authenticated calls; unauthenticated calls use the anon key.
func (c *SDKClient) doJSON(
	ctx context.Context,
	method, path string,
	query url.Values,
	body any,
	bearer string,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if bearer == "" {
		bearer = c.APIKey
	}
	req.Header.Set("apikey", c.APIKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}

	return resp, nil
}

// decodeJSON decodes a JSON response into target.
// Returns an *APIError if the status is not expectedStatus.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: "read response", Err: err}
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	return nil
}

// checkStatus drains the body and returns an *APIError unless the status is
// one of accepted.
func checkStatus(resp *http.Response, accepted ...int) error {
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if slices.Contains(accepted, resp.StatusCode) {
		return nil
	}
	return parseErrorResponse(resp, bodyBytes)
}
