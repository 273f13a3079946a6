package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-chatbot/internal/identity"
)

var (
	ErrUnauthorized = errors.New("authentication failed")
	ErrUnavailable  = errors.New("authentication service unavailable")
)

// Client talks to the identity service. The session registry only exists in
// that process, so every token check is a round trip.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type verifyResponse struct {
	Valid bool           `json:"valid"`
	User  *identity.User `json:"user"`
}

// ValidateToken satisfies myMiddleware.TokenValidator.
func (c *Client) ValidateToken(ctx context.Context, token string) (identity.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/GoogleAuth/VerifyToken", nil)
	if err != nil {
		return identity.User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.User{}, fmt.Errorf("%w: verify returned %d", ErrUnauthorized, resp.StatusCode)
	}
	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return identity.User{}, fmt.Errorf("%w: decode verify response: %v", ErrUnauthorized, err)
	}
	if !out.Valid || out.User == nil || out.User.Email == "" {
		return identity.User{}, fmt.Errorf("%w: token reported invalid", ErrUnauthorized)
	}
	return *out.User, nil
}

// Login forwards an authorization code and returns the identity service's
// response body untouched.
func (c *Client) Login(ctx context.Context, code string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"token": code})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/GoogleAuth/Login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: login returned %d", ErrUnauthorized, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read login response: %v", ErrUnavailable, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: login response is not JSON", ErrUnauthorized)
	}
	return raw, nil
}

// Logout forwards the caller's Authorization header as is. The identity
// service answers 200 whether or not the token was known.
func (c *Client) Logout(ctx context.Context, authorization string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/GoogleAuth/Logout", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Ping reports whether the identity service answers its health route.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
