package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ResetPasswordForEmail asks Supabase Auth to send a password recovery email.
// redirectTo is optional and must be an allow-listed URL of the project.
func (c *SDKClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	resp, err := c.doJSON(
		ctx,
		http.MethodPost,
		"/recover",
		redirectQuery(redirectTo),
		recoverRequest{Email: email},
		"",
	)
	if err != nil {
		return err
	}

	return checkStatus(resp, http.StatusOK)
}

// Resend re-sends a signup confirmation or email-change email.
func (c *SDKClient) Resend(ctx context.Context, params ResendParams) error {
	if params.Type == "" {
		return fmt.Errorf("resend type is required")
	}

	resp, err := c.doJSON(
		ctx,
		http.MethodPost,
		"/resend",
		redirectQuery(params.RedirectTo),
		resendRequest{Type: params.Type, Email: params.Email},
		"",
	)
	if err != nil {
		return err
	}

	return checkStatus(resp, http.StatusOK)
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}
