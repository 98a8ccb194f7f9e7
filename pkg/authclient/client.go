// Package authclient is a Go client for the auth API. It keeps the current
// session, notifies subscribers when it changes and refreshes the access
// token once when the server reports it expired.
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
	"sync"
	"time"
)

const (
	apiPrefix      = "/api/v1/auth"
	defaultTimeout = 5 * time.Second

	CodeTokenExpired = "token_expired"
)

var ErrNoSession = errors.New("authclient: no active session")

type Config struct {
	BaseURL string
	// Headers are added to every request.
	Headers map[string]string
	Timeout time.Duration
	// Transport overrides the default pooled transport.
	Transport http.RoundTripper
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Session struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

func (s Session) Active() bool { return s.AccessToken != "" }

type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	mu      sync.RWMutex
	cfg     Config
	http    *http.Client
	session Session

	subsMu sync.Mutex
	subs   map[int]func(Session)
	nextID int

	refreshMu sync.Mutex
}

func New(cfg Config) (*Client, error) {
	c := &Client{subs: make(map[int]func(Session))}
	if err := c.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconfigure replaces the configuration. The session is kept.
func (c *Client) Reconfigure(cfg Config) error {
	if cfg.BaseURL == "" {
		return errors.New("authclient: empty BaseURL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.http = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	return nil
}

func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Subscribe registers fn to be called with the new session after every
// change. The returned func removes the subscription.
func (c *Client) Subscribe(fn func(Session)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	c.subsMu.Lock()
	fns := make([]func(Session), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

type authPayload struct {
	User    *User `json:"user"`
	Payload struct {
		Type         string `json:"type"`
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"payload"`
}

func (p *authPayload) session() Session {
	return Session{User: p.User, AccessToken: p.Payload.Token, RefreshToken: p.Payload.RefreshToken}
}

func (c *Client) Register(ctx context.Context, email, password string) (Session, error) {
	return c.authenticate(ctx, "/register", email, password)
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	return c.authenticate(ctx, "/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (Session, error) {
	var out authPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return Session{}, err
	}
	s := out.session()
	c.setSession(s)
	return s, nil
}

// Refresh redeems the session's refresh token. Refresh tokens are single-use,
// so concurrent callers are serialised and a caller that waited reuses the
// session obtained by the one before it.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	before := c.Session()

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.Session()
	if current.RefreshToken == "" {
		return Session{}, ErrNoSession
	}
	if current.RefreshToken != before.RefreshToken {
		return current, nil
	}

	var out authPayload
	err := c.do(ctx, http.MethodPost, "/refresh", "", map[string]string{"refresh_token": current.RefreshToken}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.setSession(Session{})
		}
		return Session{}, err
	}
	s := out.session()
	c.setSession(s)
	return s, nil
}

// Logout revokes the refresh token on the server. The local session is
// cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	s := c.Session()
	if !s.Active() {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/logout", s.AccessToken, map[string]string{"refresh_token": s.RefreshToken}, nil)
	c.setSession(Session{})
	return err
}

type dataEnvelope struct {
	Status string `json:"status"`
	Data   *User  `json:"data"`
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out dataEnvelope
	if err := c.authorized(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var out dataEnvelope
	if err := c.authorized(ctx, http.MethodGet, "/users/"+id, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) ChangeRole(ctx context.Context, id, role string) (*User, error) {
	var out dataEnvelope
	if err := c.authorized(ctx, http.MethodPatch, "/users/"+id+"/role", map[string]string{"role": role}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// authorized sends a bearer request and retries it once after a refresh when
// the access token has expired.
func (c *Client) authorized(ctx context.Context, method, path string, body, out any) error {
	s := c.Session()
	if !s.Active() {
		return ErrNoSession
	}
	err := c.do(ctx, method, path, s.AccessToken, body, out)
	if !IsCode(err, CodeTokenExpired) {
		return err
	}

	s, err = c.Refresh(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, s.AccessToken, body, out)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	c.mu.RLock()
	cfg, httpClient := c.cfg, c.http
	c.mu.RUnlock()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
