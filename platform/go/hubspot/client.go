// Package hubspot implements the CRM OAuth exchange and token introspection calls.
package hubspot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultAPIURL       = "https://api.hubapi.com"
	DefaultAuthorizeURL = "https://app.hubspot.com/oauth/authorize"
)

// DefaultScopes are requested on the consent screen.
var DefaultScopes = []string{"contacts", "automation", "timeline"}

// Errors returned by the client.
var (
	ErrAuthExchange       = errors.New("hubspot oauth exchange failed")
	ErrTokenIntrospection = errors.New("hubspot token introspection failed")
)

// Config captures app credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIURL       string
	AuthorizeURL string
	Timeout      time.Duration
}

// TokenResponse is the outcome of a code exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenInfo describes the portal and user an access token belongs to.
type TokenInfo struct {
	AppID     string
	HubID     string
	HubDomain string
	TokenType string
	User      string
	UserID    string
	Scopes    []string
	ExpiresIn int64
}

type tokenInfoResponse struct {
	Token     string   `json:"token"`
	User      string   `json:"user"`
	HubDomain string   `json:"hub_domain"`
	Scopes    []string `json:"scopes"`
	HubID     int64    `json:"hub_id"`
	AppID     int64    `json:"app_id"`
	ExpiresIn int64    `json:"expires_in"`
	UserID    int64    `json:"user_id"`
	TokenType string   `json:"token_type"`
}

// Client calls the HubSpot OAuth endpoints.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, cfg: cfg, logger: logger.With(zap.String("provider", "hubspot"))}
}

// AuthorizeURL builds the consent screen URL for the configured app.
func (c *Client) AuthorizeURL(scopes []string) string {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("redirect_uri", c.cfg.RedirectURI)
	return c.cfg.AuthorizeURL + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// ExchangeCodeForToken trades an authorization code for tokens using the configured credentials.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code string) (TokenResponse, error) {
	return c.ExchangeCode(ctx, code, c.cfg.ClientID, c.cfg.ClientSecret, c.cfg.RedirectURI)
}

// ExchangeCode trades an authorization code for tokens. Any HTTP error fails with ErrAuthExchange.
func (c *Client) ExchangeCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (TokenResponse, error) {
	var out TokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded;charset=utf-8").
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"client_id":     clientID,
			"client_secret": clientSecret,
			"redirect_uri":  redirectURI,
			"code":          code,
		}).
		SetResult(&out).
		Post("/oauth/v1/token")
	if err != nil {
		c.logger.Error("token exchange transport failure", zap.Error(err))
		return TokenResponse{}, fmt.Errorf("%w: %w", ErrAuthExchange, err)
	}
	if resp.IsError() {
		c.logger.Error("token exchange rejected", zap.Int("status_code", resp.StatusCode()))
		return TokenResponse{}, fmt.Errorf("%w (status %d)", ErrAuthExchange, resp.StatusCode())
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("%w: empty access token", ErrAuthExchange)
	}
	return out, nil
}

// GetTokenInfo introspects an access token. Any HTTP error fails with ErrTokenIntrospection.
func (c *Client) GetTokenInfo(ctx context.Context, accessToken string) (TokenInfo, error) {
	var out tokenInfoResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("token", accessToken).
		SetResult(&out).
		Get("/oauth/v1/access-tokens/{token}")
	if err != nil {
		c.logger.Error("token introspection transport failure", zap.Error(err))
		return TokenInfo{}, fmt.Errorf("%w: %w", ErrTokenIntrospection, err)
	}
	if resp.IsError() {
		c.logger.Error("token introspection rejected", zap.Int("status_code", resp.StatusCode()))
		return TokenInfo{}, fmt.Errorf("%w (status %d)", ErrTokenIntrospection, resp.StatusCode())
	}

	return TokenInfo{
		AppID:     formatID(out.AppID),
		HubID:     formatID(out.HubID),
		HubDomain: out.HubDomain,
		TokenType: out.TokenType,
		User:      out.User,
		UserID:    formatID(out.UserID),
		Scopes:    out.Scopes,
		ExpiresIn: out.ExpiresIn,
	}, nil
}

func formatID(v int64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}
