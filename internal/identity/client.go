// Package identity talks to the external identity provider that owns
// credentials and login. The application only ever sees the exchanged
// session: a user id, a bearer token, and the identity metadata map.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrExchangeFailed covers every way the code exchange can come back
// without a usable session: rejected code, non-2xx status, malformed body.
var ErrExchangeFailed = errors.New("authorization code exchange failed")

// Session is the result of a successful authorization-code exchange.
type Session struct {
	UserID      string
	AccessToken string
	ExpiresIn   int
	Metadata    map[string]string
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func New(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Exchange trades an authorization code for a session. Single attempt, no
// retry: an invalid or expired code is the caller's problem to surface.
func (c *Client) Exchange(ctx context.Context, code string) (Session, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return Session{}, fmt.Errorf("marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/token", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, fmt.Errorf("%w: status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		User        struct {
			ID           string         `json:"id"`
			UserMetadata map[string]any `json:"user_metadata"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Session{}, fmt.Errorf("%w: decode response: %v", ErrExchangeFailed, err)
	}
	if payload.AccessToken == "" || payload.User.ID == "" {
		return Session{}, fmt.Errorf("%w: no session returned", ErrExchangeFailed)
	}

	metadata := make(map[string]string, len(payload.User.UserMetadata))
	for key, value := range payload.User.UserMetadata {
		if s, ok := value.(string); ok {
			metadata[key] = s
		}
	}

	return Session{
		UserID:      payload.User.ID,
		AccessToken: payload.AccessToken,
		ExpiresIn:   payload.ExpiresIn,
		Metadata:    metadata,
	}, nil
}
