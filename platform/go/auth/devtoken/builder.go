// Package devtoken mints BigCommerce-style signed payloads for local development, so the load
// and uninstall callbacks can be driven without a real store.
package devtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Params describe the store user the payload vouches for.
type Params struct {
	ClientID     string // aud; the app client id
	ClientSecret string // HS256 key; the app client secret
	StoreHash    string // sub becomes stores/<hash>
	UserID       int64
	Email        string
	OwnerID      int64  // defaults to UserID
	OwnerEmail   string // defaults to Email
	ExpiresIn    time.Duration
}

type user struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type claims struct {
	User  user   `json:"user"`
	Owner user   `json:"owner"`
	URL   string `json:"url"`
	jwt.RegisteredClaims
}

// BuildSignedPayloadJWT returns a signed_payload_jwt value signed with the client secret.
func BuildSignedPayloadJWT(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.ClientID) == "" {
		return "", errors.New("clientID is required")
	}
	if p.ClientSecret == "" {
		return "", errors.New("clientSecret is required")
	}
	if strings.TrimSpace(p.StoreHash) == "" {
		return "", errors.New("storeHash is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	owner := user{ID: p.OwnerID, Email: p.OwnerEmail}
	if owner.ID == 0 {
		owner.ID = p.UserID
	}
	if owner.Email == "" {
		owner.Email = p.Email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		User:  user{ID: p.UserID, Email: p.Email},
		Owner: owner,
		URL:   "/",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "bc",
			Subject:   fmt.Sprintf("stores/%s", p.StoreHash),
			Audience:  jwt.ClaimStrings{p.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})
	return token.SignedString([]byte(p.ClientSecret))
}
