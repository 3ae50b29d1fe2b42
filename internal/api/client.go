// Package api is the client for the platform's REST backend. Only the
// identity calls the chat needs are implemented: login, profile refresh
// and logout.
package api

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

	"github.com/haimi-h/shopify-clone-sub000/internal/logging"
	"github.com/haimi-h/shopify-clone-sub000/internal/session"
)

const (
	loginPath   = "/api/auth/login"
	profilePath = "/api/users/me"

	maxErrorBody = 64 * 1024
)

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL string
	Store   session.Store
	HTTP    *http.Client    // defaults to a client with Timeout
	Timeout time.Duration   // used when HTTP is nil; defaults to 15s
	Logger  *logging.Logger // defaults to a no-op logger
}

// Client calls the backend on behalf of the stored session.
type Client struct {
	baseURL string
	http    *http.Client
	store   session.Store
	log     *logging.Logger
}

// NewClient creates a Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("api: session store is required")
	}
	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		store:   opts.Store,
		log:     logging.OrNop(opts.Logger).With("component", "api"),
	}, nil
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

// userPayload is the backend's user shape. Ids arrive as numbers or strings.
type userPayload struct {
	ID           flexID `json:"id"`
	Username     string `json:"username"`
	Phone        string `json:"phone"`
	VIPLevel     string `json:"vip_level"`
	ReferralCode string `json:"referral_code"`
	Role         string `json:"role"`
}

func (u userPayload) profile() session.UserProfile {
	return session.UserProfile{
		ID:           string(u.ID),
		Username:     u.Username,
		Phone:        u.Phone,
		VIPLevel:     u.VIPLevel,
		ReferralCode: u.ReferralCode,
		Role:         u.Role,
	}
}

type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("api: id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// Login authenticates and stores the credential and profile snapshot.
func (c *Client) Login(ctx context.Context, identifier, password string) (session.Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return session.Session{}, &ValidationError{Field: "identifier", Message: "Phone or username is required."}
	}
	if password == "" {
		return session.Session{}, &ValidationError{Field: "password", Message: "Password is required."}
	}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, loginPath, "", loginRequest{Identifier: identifier, Password: password}, &resp); err != nil {
		return session.Session{}, err
	}
	if resp.Token == "" || resp.User.ID == "" {
		return session.Session{}, &APIError{Status: http.StatusOK, Message: "login response missing token or user"}
	}

	sess := session.Session{Credential: resp.Token, Profile: resp.User.profile()}
	if err := c.store.Set(sess); err != nil {
		return session.Session{}, fmt.Errorf("api: login: %w", err)
	}
	c.log.Info("logged in", "user", sess.UserID())
	return sess, nil
}

// Profile fetches the current profile and refreshes the stored snapshot.
func (c *Client) Profile(ctx context.Context) (session.UserProfile, error) {
	sess, err := session.Require(c.store)
	if err != nil {
		return session.UserProfile{}, err
	}
	var user userPayload
	if err := c.do(ctx, http.MethodGet, profilePath, sess.Credential, nil, &user); err != nil {
		return session.UserProfile{}, err
	}
	sess.Profile = user.profile()
	if sess.Profile.ID == "" {
		return session.UserProfile{}, &APIError{Status: http.StatusOK, Message: "profile response missing id"}
	}
	if err := c.store.Set(sess); err != nil {
		return session.UserProfile{}, fmt.Errorf("api: profile: %w", err)
	}
	return sess.Profile, nil
}

// Logout forgets the stored session. The backend keeps no session state.
func (c *Client) Logout() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("api: logout: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// A 401 on an unauthenticated call such as login means bad credentials,
	// not an expired session.
	switch {
	case token != "" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden):
		c.log.Warn("session rejected", "path", path, "status", resp.StatusCode)
		if err := c.store.Clear(); err != nil {
			c.log.Error("clear session", "error", err)
		}
		return ErrUnauthorized

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}

// errorMessage extracts the backend's message or error field.
func errorMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// IsUnauthorized reports whether err means the user must log in again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, session.ErrNoSession)
}
