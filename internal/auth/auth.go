package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Supabase Auth adapter
// The API consumes an opaque bearer token and resolves it to a verified
// identity; session management itself lives entirely in Supabase.
// ---------------------------------------------------------------------------

// Identity is the verified requester behind a bearer token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verifier resolves bearer tokens to identities.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

type Client struct {
	url        string
	serviceKey string
	client     *http.Client
}

var _ Verifier = (*Client)(nil)

func New(url, serviceKey string) *Client {
	return &Client{
		url:        url,
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyToken validates a user token against Supabase Auth and returns the
// identity it belongs to.
func (c *Client) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token verification failed with status %d: %s", resp.StatusCode, string(body))
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("auth response carried no user ID")
	}

	return &identity, nil
}
