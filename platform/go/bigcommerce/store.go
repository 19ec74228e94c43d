package bigcommerce

import (
	"context"
)

// StoreInfo is the subset of the v2 store resource used to prefill billing details.
type StoreInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address     string `json:"address"`
	AdminEmail  string `json:"admin_email"`
	OrderEmail  string `json:"order_email"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	Domain      string `json:"domain"`
	SecureURL   string `json:"secure_url"`
}

// GetStoreInfo fetches the store profile.
func (c *Client) GetStoreInfo(ctx context.Context, storeHash, accessToken string) (StoreInfo, error) {
	var out StoreInfo
	resp, err := c.storeRequest(storeHash, accessToken).
		SetContext(ctx).
		SetResult(&out).
		Get("/stores/{store_hash}/v2/store")
	if err := checkResponse("get store info", resp, err); err != nil {
		return StoreInfo{}, err
	}
	return out, nil
}
