package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-success answer from the registrar API
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("registrar API error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("registrar API returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a registrar's JSON API. Responses use a {code, msg, data} envelope.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a registrar API client. timeout bounds every call.
func NewClient(name, baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the registrar name this client serves
func (c *Client) Name() string {
	return c.name
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type statusData struct {
	Status         string   `json:"status"`
	ExpirationDate string   `json:"expirationDate"`
	NameServers    []string `json:"nameServers"`
	Locked         bool     `json:"locked"`
}

type renewData struct {
	ExpirationDate string `json:"expirationDate"`
}

type unlockData struct {
	AuthCode string `json:"authCode"`
}

// CheckStatus fetches the registrar's canonical state for domainName
func (c *Client) CheckStatus(ctx context.Context, domainName string) (*StatusInfo, error) {
	var data statusData
	if err := c.do(ctx, http.MethodGet, "/domains/"+url.PathEscape(domainName), nil, &data); err != nil {
		return nil, err
	}

	status, err := ParseStatus(data.Status)
	if err != nil {
		return nil, err
	}
	// Registrars report no expiry until a pending registration completes
	var expiry time.Time
	if strings.TrimSpace(data.ExpirationDate) != "" {
		expiry, err = parseDate(data.ExpirationDate)
		if err != nil {
			return nil, err
		}
	}

	return &StatusInfo{
		Status:      status,
		ExpiryDate:  expiry,
		Nameservers: data.NameServers,
		Locked:      data.Locked,
	}, nil
}

// Renew extends the registration by years
func (c *Client) Renew(ctx context.Context, domainName string, years int) (*RenewResult, error) {
	body := map[string]int{"years": years}
	var data renewData
	if err := c.do(ctx, http.MethodPost, "/domains/"+url.PathEscape(domainName)+"/renew", body, &data); err != nil {
		return nil, err
	}

	expiry, err := parseDate(data.ExpirationDate)
	if err != nil {
		return nil, err
	}
	return &RenewResult{NewExpiryDate: expiry}, nil
}

// UnlockForTransfer removes the transfer lock and returns the authorization code
func (c *Client) UnlockForTransfer(ctx context.Context, domainName string) (*UnlockResult, error) {
	var data unlockData
	if err := c.do(ctx, http.MethodPost, "/domains/"+url.PathEscape(domainName)+"/unlock", nil, &data); err != nil {
		return nil, err
	}
	if data.AuthCode == "" {
		return nil, fmt.Errorf("registrar returned an empty auth code")
	}
	return &UnlockResult{AuthCode: data.AuthCode}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build registrar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registrar request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read registrar response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(raw))}
		}
		return fmt.Errorf("failed to parse registrar response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || env.Code != 0 {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("no data in registrar response")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse registrar data: %w", err)
	}
	return nil
}

// parseDate tries the date layouts registrars commonly emit and normalizes to UTC
func parseDate(dateStr string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %q", dateStr)
}
