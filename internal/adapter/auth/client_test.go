package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAnonKey = "anon-key"

func testClient(baseURL string) *Client {
	return &Client{
		anonKey:    testAnonKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_SignIn_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))

		var grant passwordGrant
		require.NoError(t, json.NewDecoder(r.Body).Decode(&grant))
		assert.Equal(t, "ops@example.com", grant.Email)
		assert.Equal(t, "hunter2", grant.Password)

		require.NoError(t, json.NewEncoder(w).Encode(Session{
			AccessToken:  "token-abc",
			RefreshToken: "refresh-xyz",
			ExpiresIn:    3600,
			User:         User{ID: "u1", Email: "ops@example.com"},
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	session, err := c.SignIn(context.Background(), "ops@example.com", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "token-abc", session.AccessToken)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, 3600, session.ExpiresIn)
}

func TestClient_SignIn_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.SignIn(context.Background(), "ops@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClient_SignIn_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(Session{}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.SignIn(context.Background(), "ops@example.com", "hunter2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}

func TestClient_GetUser_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))

		require.NoError(t, json.NewEncoder(w).Encode(User{ID: "u1", Email: "ops@example.com"}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	user := c.GetUser(context.Background(), "token-abc")
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "ops@example.com", user.Email)
}

func TestClient_GetUser_RejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	assert.Nil(t, c.GetUser(context.Background(), "expired-token"))
}

func TestClient_GetUser_EmptyToken(t *testing.T) {
	c := testClient("http://unreachable.invalid")
	assert.Nil(t, c.GetUser(context.Background(), ""))
}

func TestClient_GetUser_ServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := testClient(srv.URL)
	assert.Nil(t, c.GetUser(context.Background(), "token-abc"))
}

func TestClient_SignOut_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	require.NoError(t, c.SignOut(context.Background(), "token-abc"))
}

func TestClient_SignOut_DeadTokenIsFine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	require.NoError(t, c.SignOut(context.Background(), "token-abc"))
}

func TestClient_SignOut_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	require.Error(t, c.SignOut(context.Background(), "token-abc"))
}
