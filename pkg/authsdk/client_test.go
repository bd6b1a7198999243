package authsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testAnonKey = "anon-key"

func mintToken(t *testing.T, subject string) string {
	t.Helper()

	claims := authsdk.AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "user@example.com",
		Role:  "authenticated",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func sessionBody(t *testing.T, subject, userID string) map[string]any {
	return map[string]any{
		"access_token":  mintToken(t, subject),
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    time.Now().Add(time.Hour).Unix(),
		"refresh_token": "refresh-1",
		"user": map[string]any{
			"id":                 userID,
			"email":              "user@example.com",
			"email_confirmed_at": "2024-01-01T00:00:00Z",
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSignInWithPassword(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/auth/v1/token", r.URL.Path)
			require.Equal(t, "password", r.URL.Query().Get("grant_type"))
			require.Equal(t, testAnonKey, r.Header.Get("apikey"))
			require.Equal(t, "Bearer "+testAnonKey, r.Header.Get("Authorization"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "user@example.com", body["email"])
			require.Equal(t, "hunter22", body["password"])

			writeJSON(w, http.StatusOK, sessionBody(t, "user-1", "user-1"))
		}))
		defer srv.Close()

		client := authsdk.NewSDKClient(srv.URL+"/", testAnonKey)
		session, err := client.SignInWithPassword(context.Background(), "user@example.com", "hunter22")
		require.NoError(t, err)
		require.Equal(t, "user-1", session.User.ID)
		require.Equal(t, "refresh-1", session.RefreshToken)
		require.Equal(t, int64(3600), session.ExpiresIn)
		require.NotNil(t, session.User.EmailConfirmedAt)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code":       400,
				"error_code": "invalid_credentials",
				"msg":        "Invalid login credentials",
			})
		}))
		defer srv.Close()

		client := authsdk.NewSDKClient(srv.URL, testAnonKey)
		_, err := client.SignInWithPassword(context.Background(), "user@example.com", "nope")

		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		require.Equal(t, "invalid_credentials", apiErr.Code)
		require.Equal(t, "Invalid login credentials", apiErr.Message)
		require.True(t, authsdk.IsStatus(err, http.StatusBadRequest))
	})

	t.Run("subject mismatch is unexpected response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, sessionBody(t, "someone-else", "user-1"))
		}))
		defer srv.Close()

		client := authsdk.NewSDKClient(srv.URL, testAnonKey)
		_, err := client.SignInWithPassword(context.Background(), "user@example.com", "pw")
		require.ErrorIs(t, err, authsdk.ErrUnexpectedResponse)
	})

	t.Run("malformed body is unexpected response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[1,2,3]`))
		}))
		defer srv.Close()

		client := authsdk.NewSDKClient(srv.URL, testAnonKey)
		_, err := client.SignInWithPassword(context.Background(), "user@example.com", "pw")
		require.ErrorIs(t, err, authsdk.ErrUnexpectedResponse)
	})

	t.Run("unreachable server is network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		client := authsdk.NewSDKClient(url, testAnonKey)
		_, err := client.SignInWithPassword(context.Background(), "user@example.com", "pw")

		var netErr *authsdk.NetworkError
		require.ErrorAs(t, err, &netErr)
		require.Contains(t, err.Error(), "network")
	})
}

func TestRefreshSession(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "refresh-0", body["refresh_token"])

			writeJSON(w, http.StatusOK, sessionBody(t, "user-1", "user-1"))
		}))
		defer srv.Close()

		client := authsdk.NewSDKClient(srv.URL, testAnonKey)
		session, err := client.RefreshSession(context.Background(), "refresh-0")
		require.NoError(t, err)
		require.Equal(t, "refresh-1", session.RefreshToken)
	})

	t.Run("legacy oauth2 error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Invalid Refresh Token: Refresh Token Not Found",
			})
		}))
		defer srv.Close()

		client := authsdk.NewSDKClient(srv.URL, testAnonKey)
		_, err := client.RefreshSession(context.Background(), "gone")

		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "invalid_grant", apiErr.Code)
		require.Contains(t, err.Error(), "Invalid Refresh Token")
	})

	t.Run("empty error body falls back to status text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := authsdk.NewSDKClient(srv.URL, testAnonKey)
		_, err := client.RefreshSession(context.Background(), "r")
		require.EqualError(t, err, "auth api error (status 502): Bad Gateway")
	})
}

func TestSignOut(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNoContent, http.StatusUnauthorized, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/auth/v1/logout", r.URL.Path)
			require.Equal(t, "local", r.URL.Query().Get("scope"))
			require.Equal(t, "Bearer user-access", r.Header.Get("Authorization"))
			w.WriteHeader(status)
		}))

		client := authsdk.NewSDKClient(srv.URL, testAnonKey)
		require.NoError(t, client.SignOut(context.Background(), "user-access", authsdk.SignOutLocal), "status %d", status)
		srv.Close()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "global", r.URL.Query().Get("scope"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := authsdk.NewSDKClient(srv.URL, testAnonKey)
	err := client.SignOut(context.Background(), "user-access", "")
	require.True(t, authsdk.IsStatus(err, http.StatusInternalServerError))
}

func TestResetPasswordForEmail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/recover", r.URL.Path)
		require.Equal(t, "maidrobe://reset", r.URL.Query().Get("redirect_to"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] == "missing@example.com" {
			writeJSON(w, http.StatusNotFound, map[string]string{"msg": "User not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()

	client := authsdk.NewSDKClient(srv.URL, testAnonKey)
	require.NoError(t, client.ResetPasswordForEmail(context.Background(), "user@example.com", "maidrobe://reset"))

	err := client.ResetPasswordForEmail(context.Background(), "missing@example.com", "maidrobe://reset")
	require.True(t, authsdk.IsStatus(err, http.StatusNotFound))
}

func TestResend(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/resend", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "signup", body["type"])
		require.Equal(t, "user@example.com", body["email"])
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()

	client := authsdk.NewSDKClient(srv.URL, testAnonKey)
	require.NoError(t, client.Resend(context.Background(), authsdk.ResendParams{
		Type:  authsdk.ResendSignup,
		Email: "user@example.com",
	}))

	require.Error(t, client.Resend(context.Background(), authsdk.ResendParams{Email: "user@example.com"}))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/health", r.URL.Path)
		writeJSON(w, http.StatusOK, authsdk.HealthResponse{Name: "GoTrue", Version: "v2"})
	}))
	defer srv.Close()

	client := authsdk.NewSDKClient(srv.URL, testAnonKey)
	health, err := client.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "GoTrue", health.Name)
}

func TestCancelledContextIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := authsdk.NewSDKClient(srv.URL, testAnonKey)
	_, err := client.Health(ctx)

	var netErr *authsdk.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGetUserWithTokenSource(t *testing.T) {
	t.Parallel()

	access := mintToken(t, "user-1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, testAnonKey, r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer "+access {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "user-1", "email": "user@example.com"})
	}))
	defer srv.Close()

	client := authsdk.NewSDKClient(srv.URL, testAnonKey)

	t.Run("bearer comes from the token source", func(t *testing.T) {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "bearer"})
		user, err := client.WithTokenSource(src).GetUser(context.Background())
		require.NoError(t, err)
		require.Equal(t, "user-1", user.ID)
	})

	t.Run("anon key is rejected", func(t *testing.T) {
		_, err := client.GetUser(context.Background())
		require.True(t, authsdk.IsStatus(err, http.StatusUnauthorized))
	})

	t.Run("token source failure", func(t *testing.T) {
		errNoToken := errors.New("no session")
		_, err := client.WithTokenSource(failingTokenSource{err: errNoToken}).GetUser(context.Background())
		require.ErrorIs(t, err, errNoToken)
	})
}

type failingTokenSource struct{ err error }

func (s failingTokenSource) Token() (*oauth2.Token, error) { return nil, s.err }
