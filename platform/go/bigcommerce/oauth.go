package bigcommerce

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Token is the result of a successful OAuth code exchange.
type Token struct {
	AccessToken string
	Scope       string
	StoreHash   string
	UserID      int64
	Email       string
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	Context      string `json:"context"`
	Scope        string `json:"scope"`
	GrantType    string `json:"grant_type"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	Context     string `json:"context"`
	User        struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

// ExchangeCodeForToken trades an install callback code for a store access token.
// Any non-success response fails with ErrAuthExchange; the call is never retried.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code, authContext, scope, redirectURI string) (Token, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return Token{}, ErrConfig
	}

	c.logger.Debug("exchanging oauth code", zap.String("context", authContext))

	var out tokenResponse
	resp, err := c.login.R().
		SetContext(ctx).
		SetBody(tokenRequest{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			Code:         code,
			Context:      authContext,
			Scope:        scope,
			GrantType:    "authorization_code",
			RedirectURI:  redirectURI,
		}).
		SetResult(&out).
		Post("/oauth2/token")
	if err != nil {
		c.logger.Error("oauth exchange transport failure", zap.Error(err))
		return Token{}, fmt.Errorf("%w: %w", ErrAuthExchange, err)
	}
	if resp.IsError() {
		c.logger.Error("oauth exchange rejected", zap.Int("status_code", resp.StatusCode()))
		return Token{}, fmt.Errorf("%w (status %d)", ErrAuthExchange, resp.StatusCode())
	}
	if out.AccessToken == "" || out.User.ID == 0 {
		return Token{}, fmt.Errorf("%w: incomplete token response", ErrAuthExchange)
	}

	token := Token{
		AccessToken: out.AccessToken,
		Scope:       out.Scope,
		StoreHash:   StoreHashFromContext(out.Context),
		UserID:      out.User.ID,
		Email:       out.User.Email,
	}
	if token.StoreHash == "" {
		token.StoreHash = StoreHashFromContext(authContext)
	}

	c.logger.Info("oauth exchange succeeded",
		zap.String("store_hash", token.StoreHash),
		zap.Int64("user_id", token.UserID),
	)
	return token, nil
}

// StoreHashFromContext extracts "abc123" from "stores/abc123".
func StoreHashFromContext(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "stores/")
}
