// Package strava talks to the activity provider's REST API: the OAuth
// refresh-token grant, the paginated activity list, the athlete profile and
// per-activity sample streams.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/config"
)

const (
	DefaultBaseURL  = "https://www.strava.com/api/v3"
	DefaultTokenURL = "https://www.strava.com/oauth/token"
	DefaultPerPage  = 175
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	TokenURL string
	Timeout  time.Duration
	Retries  int
	Logger   *zap.Logger
}

// OptionsFromConfig maps the [strava] config section.
func OptionsFromConfig(c config.Strava, logger *zap.Logger) Options {
	return Options{
		BaseURL:  c.BaseURL,
		TokenURL: c.TokenURL,
		Timeout:  c.Timeout.Duration,
		Retries:  c.Retries,
		Logger:   logger,
	}
}

// Client talks to the activity provider API.
type Client struct {
	httpClient *resty.Client
	tokenURL   string
	logger     *zap.Logger
}

// NewClient fills defaults for empty options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		tokenURL:   opts.TokenURL,
		logger:     opts.Logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// RefreshAccessToken exchanges the long-lived refresh token for an access
// token.
func (c *Client) RefreshAccessToken(ctx context.Context, creds config.Credentials) (string, error) {
	var out tokenResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     creds.ClientID,
			"client_secret": creds.ClientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": creds.RefreshToken,
		}).
		SetResult(&out).
		Post(c.tokenURL)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if resp.IsError() {
		return "", statusError(resp)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("refresh access token: response has no access_token")
	}
	c.logger.Debug("access token refreshed", zap.Int64("expires_at", out.ExpiresAt))
	return out.AccessToken, nil
}

// ListActivities walks /athlete/activities from page 1 until the provider
// returns an empty page.
func (c *Client) ListActivities(ctx context.Context, token string, perPage int) ([]map[string]any, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	var all []map[string]any
	for page := 1; ; page++ {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(map[string]string{
				"per_page": strconv.Itoa(perPage),
				"page":     strconv.Itoa(page),
			}).
			Get("/athlete/activities")
		if err != nil {
			return nil, fmt.Errorf("list activities page %d: %w", page, err)
		}
		if resp.IsError() {
			return nil, statusError(resp)
		}

		var batch []map[string]any
		dec := json.NewDecoder(bytes.NewReader(resp.Body()))
		dec.UseNumber()
		if err := dec.Decode(&batch); err != nil {
			return nil, fmt.Errorf("decode activities page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}
		c.logger.Debug("fetched activity page", zap.Int("page", page), zap.Int("count", len(batch)))
		all = append(all, batch...)
	}
	c.logger.Info("fetched activities from API", zap.Int("count", len(all)))
	return all, nil
}

// Athlete is the subset of the profile persisted to the athlete table.
type Athlete struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	Weight    *float64 `json:"weight"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Sex       string   `json:"sex"`
	Bio       string   `json:"bio"`
}

// GetAthlete returns the authenticated athlete profile.
func (c *Client) GetAthlete(ctx context.Context, token string) (*Athlete, error) {
	var out Athlete
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get("/athlete")
	if err != nil {
		return nil, fmt.Errorf("get athlete: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	return &out, nil
}

func statusError(resp *resty.Response) error {
	body := resp.String()
	if len(body) > 256 {
		body = body[:256]
	}
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL,
		Code:   resp.StatusCode(),
		Body:   body,
	}
}
