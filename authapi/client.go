package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/interceptor"
	"github.com/MrEthical07/goSession/session"
)

const (
	loginPath   = "/api/auth/login"
	refreshPath = "/api/auth/refresh"
	mePath      = "/api/auth/me"
	logoutPath  = "/api/auth/logout"

	maxBodyBytes = 1 << 20
)

type envelope struct {
	Success               bool            `json:"success"`
	Message               string          `json:"message"`
	Data                  json.RawMessage `json:"data"`
	RequiresMFASetup      bool            `json:"requiresMFASetup"`
	RequiresMFACompletion bool            `json:"requiresMFACompletion"`
	RequiresMFA           bool            `json:"requiresMFA"`
	RequiresPasswordReset bool            `json:"requiresPasswordReset"`
	MFAMethod             string          `json:"mfaMethod"`
}

// Client talks to one auth API base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for baseURL. httpClient is normally the intercepting client of the
// session manager; nil uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("auth api base url required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}, nil
}

// Login posts credentials. An MFA demand comes back as *Error with one of the
// Requires* flags set.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var out LoginResult
	if err := c.do(interceptor.WithoutAuth(ctx), http.MethodPost, loginPath, "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges refreshToken for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.Pair, error) {
	var out Tokens
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.do(interceptor.WithoutAuth(ctx), http.MethodPost, refreshPath, "", body, &out); err != nil {
		return session.Pair{}, err
	}
	return out.Pair(), nil
}

// Me fetches the current user. The bearer token is attached by the transport.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out meResult
	if err := c.do(ctx, http.MethodGet, mePath, "", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout tells the server to end the session identified by pair. It is sent with the
// given access token and is never retried on 401.
func (c *Client) Logout(ctx context.Context, pair session.Pair) error {
	body := map[string]string{"accessToken": pair.AccessToken, "refreshToken": pair.RefreshToken}
	return c.do(interceptor.WithoutAuth(ctx), http.MethodPost, logoutPath, pair.AccessToken, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}

	if resp.StatusCode >= 300 || !env.Success {
		return &Error{
			Status:                resp.StatusCode,
			Message:               env.Message,
			RequiresMFASetup:      env.RequiresMFASetup,
			RequiresMFACompletion: env.RequiresMFACompletion,
			RequiresMFA:           env.RequiresMFA,
			RequiresPasswordReset: env.RequiresPasswordReset,
			MFAMethod:             env.MFAMethod,
		}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
