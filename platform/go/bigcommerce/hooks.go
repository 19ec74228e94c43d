package bigcommerce

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// Hook is a v3 event subscription.
type Hook struct {
	ID          int64  `json:"id"`
	Scope       string `json:"scope"`
	Destination string `json:"destination"`
	IsActive    bool   `json:"is_active"`
}

type hookList struct {
	Data []Hook `json:"data"`
}

type hookEnvelope struct {
	Data Hook `json:"data"`
}

type createHookRequest struct {
	Scope       string `json:"scope"`
	Destination string `json:"destination"`
	IsActive    bool   `json:"is_active"`
}

type updateHookRequest struct {
	IsActive bool `json:"is_active"`
}

// ListHooks returns every hook registered by this app for the store.
func (c *Client) ListHooks(ctx context.Context, storeHash, accessToken string) ([]Hook, error) {
	var out hookList
	resp, err := c.storeRequest(storeHash, accessToken).
		SetContext(ctx).
		SetResult(&out).
		Get("/stores/{store_hash}/v3/hooks")
	if err := checkResponse("list hooks", resp, err); err != nil {
		c.logger.Warn("list hooks failed", zap.String("store_hash", storeHash), zap.Error(err))
		return nil, err
	}
	return out.Data, nil
}

// CreateHook registers an active hook for scope delivering to destination.
func (c *Client) CreateHook(ctx context.Context, storeHash, accessToken, scope, destination string) (Hook, error) {
	var out hookEnvelope
	resp, err := c.storeRequest(storeHash, accessToken).
		SetContext(ctx).
		SetBody(createHookRequest{Scope: scope, Destination: destination, IsActive: true}).
		SetResult(&out).
		Post("/stores/{store_hash}/v3/hooks")
	if err := checkResponse("create hook", resp, err); err != nil {
		c.logger.Warn("create hook failed", zap.String("store_hash", storeHash), zap.String("scope", scope), zap.Error(err))
		return Hook{}, err
	}
	c.logger.Info("hook created", zap.String("store_hash", storeHash), zap.String("scope", scope), zap.Int64("hook_id", out.Data.ID))
	return out.Data, nil
}

// SetHookActive toggles the active flag of an existing hook.
func (c *Client) SetHookActive(ctx context.Context, storeHash, accessToken string, hookID int64, active bool) error {
	resp, err := c.storeRequest(storeHash, accessToken).
		SetContext(ctx).
		SetPathParam("hook_id", strconv.FormatInt(hookID, 10)).
		SetBody(updateHookRequest{IsActive: active}).
		Put("/stores/{store_hash}/v3/hooks/{hook_id}")
	if err := checkResponse("update hook", resp, err); err != nil {
		c.logger.Warn("update hook failed", zap.String("store_hash", storeHash), zap.Int64("hook_id", hookID), zap.Error(err))
		return err
	}
	return nil
}

// DeleteHook removes a hook.
func (c *Client) DeleteHook(ctx context.Context, storeHash, accessToken string, hookID int64) error {
	resp, err := c.storeRequest(storeHash, accessToken).
		SetContext(ctx).
		SetPathParam("hook_id", strconv.FormatInt(hookID, 10)).
		Delete("/stores/{store_hash}/v3/hooks/{hook_id}")
	if err := checkResponse("delete hook", resp, err); err != nil {
		c.logger.Warn("delete hook failed", zap.String("store_hash", storeHash), zap.Int64("hook_id", hookID), zap.Error(err))
		return err
	}
	return nil
}
