// Package auth verifies operator credentials against a GoTrue-compatible
// auth service.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// User is the authenticated identity attached to a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the result of a successful password sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// Client talks to the auth service's REST endpoints.
type Client struct {
	anonKey    string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an auth client.
func NewClient(baseURL, anonKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// SignIn exchanges an email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	body, err := json.Marshal(passwordGrant{Email: email, Password: password})
	if err != nil {
		return Session{}, fmt.Errorf("encode request: %w", err)
	}

	u := fmt.Sprintf("%s/auth/v1/token?grant_type=password", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("sign in request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Session{}, fmt.Errorf("auth service error: status %d: %s", resp.StatusCode, respBody)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return Session{}, fmt.Errorf("decode response: %w", err)
	}
	if session.AccessToken == "" {
		return Session{}, fmt.Errorf("auth service returned no access token")
	}
	return session, nil
}

// GetUser resolves an access token to its user. It returns nil when the
// token is missing, expired, or rejected; callers treat nil as signed out.
func (c *Client) GetUser(ctx context.Context, accessToken string) *User {
	if accessToken == "" {
		return nil
	}

	u := fmt.Sprintf("%s/auth/v1/user", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("auth user lookup failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		c.logger.Warn("auth user decode failed", "error", err)
		return nil
	}
	if user.ID == "" {
		return nil
	}
	return &user
}

// SignOut revokes an access token. Revoking an already-dead token is not an
// error.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	u := fmt.Sprintf("%s/auth/v1/logout", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sign out request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusUnauthorized:
		return nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("auth service error: status %d: %s", resp.StatusCode, respBody)
	}
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
