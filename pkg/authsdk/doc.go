/*
Package authsdk is a small client for the Supabase Auth (GoTrue) REST API used by
the Maidrobe app.

# Overview

Supabase Auth issues and refreshes sessions, sends password-reset and verification
emails, and is the authority for every security decision. This package only speaks
its HTTP API; it keeps no state of its own beyond the project URL and anon key.

	client := authsdk.NewSDKClient("https://xyz.supabase.co", anonKey)

	// Password sign-in
	session, err := client.SignInWithPassword(ctx, "user@example.com", password)

	// Exchange a refresh token for a new session
	session, err = client.RefreshSession(ctx, session.RefreshToken)

	// Revoke the session server-side
	err = client.SignOut(ctx, session.AccessToken, authsdk.SignOutLocal)

	// Account emails
	err = client.ResetPasswordForEmail(ctx, "user@example.com", redirectTo)
	err = client.Resend(ctx, authsdk.ResendParams{Type: authsdk.ResendSignup, Email: "user@example.com"})

# Errors

Every method returns one of three error shapes so callers can classify failures
without string matching where possible:

  - *APIError: the server answered with a non-success status. StatusCode, Code
    (GoTrue error_code or OAuth2 error) and Message are populated.
  - *NetworkError: the request never produced a response (DNS, refused connection,
    timeout, cancelled context).
  - ErrUnexpectedResponse (wrapped): the server answered 2xx but the body did not
    have the expected shape, e.g. a session without a user id.

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		// invalid credentials
	}

# Timeouts

NewSDKClient does not set an http.Client timeout. Bound calls with the context
instead; a deadline surfaces as a *NetworkError.

# Access tokens

ParseAccessTokenClaims decodes the claims of a Supabase access token WITHOUT
verifying its signature. It exists to sanity-check responses (the token subject must
match the returned user), never to make authorization decisions.
*/
package authsdk
