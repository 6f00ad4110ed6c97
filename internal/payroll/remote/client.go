package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payvault.org/internal/payroll"
)

// Client talks to the payroll HTTP API and satisfies payroll.Service, so
// daemons and CLI tools compose against the same interface as the stores.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   string
}

var _ payroll.Service = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithToken attaches a bearer token for employer-gated operations.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Deposit(ctx context.Context, amount int64) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/payroll/deposits", map[string]any{"amount": amount}, &out)
	if err != nil {
		return 0, err
	}
	return out.Balance, nil
}

func (c *Client) Balance(ctx context.Context) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payroll/vault", nil, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

func (c *Client) AddEmployee(ctx context.Context, address string, salary, intervalSeconds int64) (payroll.Employee, error) {
	var emp payroll.Employee
	err := c.do(ctx, http.MethodPost, "/v1/payroll/employees", map[string]any{
		"address":          address,
		"salary":           salary,
		"interval_seconds": intervalSeconds,
	}, &emp)
	return emp, err
}

func (c *Client) DeactivateEmployee(ctx context.Context, address string) (payroll.Employee, error) {
	var emp payroll.Employee
	err := c.do(ctx, http.MethodDelete, "/v1/payroll/employees/"+url.PathEscape(address), nil, &emp)
	return emp, err
}

func (c *Client) GetEmployee(ctx context.Context, address string) (payroll.Employee, error) {
	var emp payroll.Employee
	err := c.do(ctx, http.MethodGet, "/v1/payroll/employees/"+url.PathEscape(address), nil, &emp)
	return emp, err
}

func (c *Client) RosterLen(ctx context.Context) (int, error) {
	var out struct {
		Length int `json:"length"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payroll/roster", nil, &out); err != nil {
		return 0, err
	}
	return out.Length, nil
}

func (c *Client) AddressAt(ctx context.Context, index int) (string, error) {
	var out struct {
		Index   int    `json:"index"`
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payroll/roster/"+strconv.Itoa(index), nil, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (c *Client) SettleOne(ctx context.Context, address string) (payroll.Payment, error) {
	var p payroll.Payment
	err := c.do(ctx, http.MethodPost, "/v1/payroll/employees/"+url.PathEscape(address)+"/settle", nil, &p)
	return p, err
}

func (c *Client) SettleAll(ctx context.Context) (payroll.Pass, error) {
	var pass payroll.Pass
	err := c.do(ctx, http.MethodPost, "/v1/payroll/settle", nil, &pass)
	return pass, err
}

func (c *Client) AnyDue(ctx context.Context) (bool, error) {
	var out struct {
		Due  bool      `json:"due"`
		AsOf time.Time `json:"as_of"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payroll/due", nil, &out); err != nil {
		return false, err
	}
	return out.Due, nil
}

func (c *Client) Trigger(ctx context.Context) (payroll.Pass, error) {
	var pass payroll.Pass
	err := c.do(ctx, http.MethodPost, "/v1/payroll/trigger", nil, &pass)
	return pass, err
}

// MintToken obtains a development token from the API's auth endpoint.
func MintToken(ctx context.Context, baseURL, user string, roles []string) (string, error) {
	c, err := New(baseURL)
	if err != nil {
		return "", err
	}
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	err = c.do(ctx, http.MethodPost, "/v1/auth/token", map[string]any{
		"user":  user,
		"roles": roles,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("auth endpoint returned an empty token")
	}
	return out.Token, nil
}

// WithTimeout returns a context with a default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}

// Helpers -----------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// codeToErr maps API error codes back to the payroll sentinels so callers
// can use errors.Is across process boundaries.
var codeToErr = map[string]error{
	"invalid_address":    payroll.ErrInvalidAddress,
	"invalid_amount":     payroll.ErrInvalidAmount,
	"already_active":     payroll.ErrAlreadyActive,
	"not_active":         payroll.ErrNotActive,
	"too_early":          payroll.ErrTooEarly,
	"insufficient_funds": payroll.ErrInsufficientFunds,
	"nothing_due":        payroll.ErrNothingDue,
	"reentrant_call":     payroll.ErrReentrantCall,
	"not_found":          payroll.ErrNotFound,
}

func decodeAPIError(resp *http.Response) error {
	var env struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Code == "" {
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	if sentinel, ok := codeToErr[env.Error.Code]; ok {
		return sentinel
	}
	return fmt.Errorf("api error %s: %s (status %d)", env.Error.Code, env.Error.Message, resp.StatusCode)
}
