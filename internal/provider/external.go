package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// External talks to the real magic-auth provider over HTTP.
type External struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewExternal creates a client for the provider at baseURL.
func NewExternal(baseURL, apiKey string) *External {
	return &External{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type startRequest struct {
	Email string `json:"email"`
}

type startResponse struct {
	ID        string `json:"id"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type verifyRequest struct {
	Code      string `json:"code"`
	PendingID string `json:"pending_id"`
	Email     string `json:"email"`
	IP        string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type verifyResponse struct {
	User struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name,omitempty"`
		LastName  string `json:"last_name,omitempty"`
	} `json:"user"`
}

// StartMagicAuth opens a challenge; the provider emails the code.
func (e *External) StartMagicAuth(ctx context.Context, email string) (StartResult, error) {
	var resp startResponse
	status, err := e.post(ctx, "/magic_auth/start", startRequest{Email: email}, &resp)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return StartResult{}, fmt.Errorf("%w: start returned status %d", ErrUnavailable, status)
	}
	if resp.ID == "" {
		return StartResult{}, fmt.Errorf("%w: start response missing id", ErrUnavailable)
	}
	out := StartResult{PendingID: resp.ID}
	if resp.ExpiresAt != "" {
		if ts, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			out.ExpiresAt = ts
		}
	}
	return out, nil
}

// VerifyMagicAuth exchanges the emailed code for a verified identity.
// Auth-class provider rejections (400/401/422) map to ErrInvalidCode so the
// engine can answer with its uniform "code invalid or expired" message.
func (e *External) VerifyMagicAuth(ctx context.Context, code, pendingID, email, ip, userAgent string) (Identity, error) {
	var resp verifyResponse
	status, err := e.post(ctx, "/magic_auth/verify", verifyRequest{
		Code:      code,
		PendingID: pendingID,
		Email:     email,
		IP:        ip,
		UserAgent: userAgent,
	}, &resp)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return Identity{}, ErrInvalidCode
	default:
		return Identity{}, fmt.Errorf("%w: verify returned status %d", ErrUnavailable, status)
	}
	if resp.User.ID == "" || resp.User.Email == "" {
		return Identity{}, fmt.Errorf("%w: verify response missing user", ErrUnavailable)
	}
	return Identity{
		ProviderUserID: resp.User.ID,
		Email:          resp.User.Email,
		FirstName:      resp.User.FirstName,
		LastName:       resp.User.LastName,
	}, nil
}

func (e *External) post(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
