// Package bigcommerce is a thin REST client for the BigCommerce app APIs used by the
// install flow: OAuth code exchange, signed payload verification, store info and hooks.
package bigcommerce

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultLoginURL = "https://login.bigcommerce.com"
	DefaultAPIURL   = "https://api.bigcommerce.com"
)

// Errors returned by the client.
var (
	ErrAuthExchange      = errors.New("bigcommerce oauth exchange failed")
	ErrTransientProvider = errors.New("bigcommerce temporarily unavailable")
	ErrRequest           = errors.New("bigcommerce request failed")
	ErrConfig            = errors.New("bigcommerce client credentials are not configured")
)

// Config captures app credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	LoginURL     string
	APIURL       string
	Timeout      time.Duration
}

// Client talks to the BigCommerce login service and store APIs.
type Client struct {
	login  *resty.Client
	api    *resty.Client
	cfg    Config
	logger *zap.Logger
}

// New constructs a Client. Empty endpoints fall back to the production URLs.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	newHTTP := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(base, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}

	return &Client{
		login:  newHTTP(cfg.LoginURL),
		api:    newHTTP(cfg.APIURL),
		cfg:    cfg,
		logger: logger.With(zap.String("provider", "bigcommerce")),
	}
}

// ClientID returns the app client id, which is also the signed payload audience.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

func (c *Client) storeRequest(storeHash, accessToken string) *resty.Request {
	return c.api.R().
		SetPathParam("store_hash", storeHash).
		SetHeader("X-Auth-Client", c.cfg.ClientID).
		SetHeader("X-Auth-Token", accessToken)
}

// checkResponse classifies a store API outcome. Gateway-class statuses and transport
// failures are transient; other non-2xx responses wrap ErrRequest.
func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransientProvider, err)
	}
	switch resp.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w (status %d)", op, ErrTransientProvider, resp.StatusCode())
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %w (status %d)", op, ErrRequest, resp.StatusCode())
	}
	return nil
}
