// Package chargebee is an explicit-credential client for the Chargebee v2 REST API.
package chargebee

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultPlanID is the plan offered by the hosted checkout.
const DefaultPlanID = "hubmetrix-base-plan"

// Errors returned by the client.
var (
	ErrConfig               = errors.New("chargebee credentials are not configured")
	ErrSubscriptionNotFound = errors.New("chargebee subscription not found")
	ErrHostedPageIncomplete = errors.New("chargebee hosted page is not complete")
	ErrMetadataAnnotation   = errors.New("chargebee metadata annotation failed")
	ErrRequest              = errors.New("chargebee request failed")
)

// Credentials identify the Chargebee site and API key.
type Credentials struct {
	Site   string
	APIKey string
}

// Options tune the HTTP transport.
type Options struct {
	// BaseURL overrides https://<site>.chargebee.com/api/v2.
	BaseURL string
	Timeout time.Duration
}

// Client calls Chargebee with the credentials it was built with.
type Client struct {
	http   *resty.Client
	creds  Credentials
	logger *zap.Logger
}

type apiError struct {
	Message      string `json:"message"`
	APIErrorCode string `json:"api_error_code"`
	ErrorCode    string `json:"error_code"`
}

// New constructs a Client. Missing credentials are reported by each call with ErrConfig.
func New(creds Credentials, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	base := opts.BaseURL
	if base == "" && creds.Site != "" {
		base = fmt.Sprintf("https://%s.chargebee.com/api/v2", creds.Site)
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(opts.Timeout).
		SetBasicAuth(creds.APIKey, "").
		SetHeader("Accept", "application/json").
		SetError(&apiError{})

	return &Client{http: httpClient, creds: creds, logger: logger.With(zap.String("provider", "chargebee"))}
}

func (c *Client) configured() error {
	if strings.TrimSpace(c.creds.Site) == "" || strings.TrimSpace(c.creds.APIKey) == "" {
		return ErrConfig
	}
	return nil
}

// checkResponse maps a failed call onto ErrRequest, or notFound for 404 when provided.
func checkResponse(op string, resp *resty.Response, err error, notFound error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrRequest, err)
	}
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound && notFound != nil {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	msg := ""
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr != nil {
		msg = apiErr.Message
	}
	return fmt.Errorf("%s: %w (status %d) %s", op, ErrRequest, resp.StatusCode(), msg)
}
