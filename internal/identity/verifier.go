// Package identity verifies bearer tokens against an external identity
// provider over HTTP.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTokenRejected is returned when the identity provider refuses a
// token.
var ErrTokenRejected = errors.New("token was rejected")

const maxResponseSize = 64 * 1024

// Verifier asks a remote endpoint to validate a bearer token. The
// endpoint is expected to answer 200 with a JSON body carrying a
// userId field, or 401/403 for a bad token.
type Verifier struct {
	endpoint string
	client   *http.Client
}

type verifyResponse struct {
	UserID string `json:"userId"`
}

func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("cannot build a request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot verify a token: %w", err)
	}

	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint: errcheck
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrTokenRejected
	default:
		return "", fmt.Errorf("identity provider replied with status %d", resp.StatusCode)
	}

	parsed := verifyResponse{}
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))

	if err := decoder.Decode(&parsed); err != nil {
		return "", fmt.Errorf("cannot parse identity response: %w", err)
	}

	if parsed.UserID == "" {
		return "", fmt.Errorf("identity response has no user id")
	}

	return parsed.UserID, nil
}

// NewVerifier builds a verifier for a given endpoint. A zero timeout
// disables the client-side deadline, the caller context still applies.
func NewVerifier(endpoint string, timeout time.Duration) *Verifier {
	return &Verifier{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}
