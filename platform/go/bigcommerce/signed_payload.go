package bigcommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignedPayload is the verified identity carried by load and uninstall callbacks.
type SignedPayload struct {
	StoreHash  string
	UserID     int64
	UserEmail  string
	OwnerEmail string
}

type payloadUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type legacyPayload struct {
	User      payloadUser `json:"user"`
	Owner     payloadUser `json:"owner"`
	Context   string      `json:"context"`
	StoreHash string      `json:"store_hash"`
	Timestamp float64     `json:"timestamp"`
}

type payloadClaims struct {
	User  payloadUser `json:"user"`
	Owner payloadUser `json:"owner"`
	URL   string      `json:"url"`
	jwt.RegisteredClaims
}

// VerifySignedPayload checks either payload format with the app credentials.
// A nil result with false means the request is untrusted.
func (c *Client) VerifySignedPayload(payload string) (*SignedPayload, bool) {
	if c.cfg.ClientSecret == "" {
		return nil, false
	}
	if strings.Count(payload, ".") == 2 {
		return VerifyJWTPayload(payload, c.cfg.ClientSecret, c.cfg.ClientID)
	}
	return VerifyLegacyPayload(payload, c.cfg.ClientSecret)
}

// VerifyJWTPayload verifies a signed_payload_jwt value: HS256, issuer "bc", audience clientID.
func VerifyJWTPayload(token, secret, clientID string) (*SignedPayload, bool) {
	if token == "" || secret == "" {
		return nil, false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("bc"),
		jwt.WithLeeway(30 * time.Second),
	}
	if clientID != "" {
		opts = append(opts, jwt.WithAudience(clientID))
	}

	claims := &payloadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, false
	}

	storeHash := StoreHashFromContext(claims.Subject)
	if storeHash == "" {
		return nil, false
	}
	return &SignedPayload{
		StoreHash:  storeHash,
		UserID:     claims.User.ID,
		UserEmail:  claims.User.Email,
		OwnerEmail: claims.Owner.Email,
	}, true
}

// VerifyLegacyPayload verifies a signed_payload value of the form
// base64(json) "." base64(hex(hmac_sha256(secret, json))).
func VerifyLegacyPayload(payload, secret string) (*SignedPayload, bool) {
	if payload == "" || secret == "" {
		return nil, false
	}
	encodedJSON, encodedSig, ok := strings.Cut(payload, ".")
	if !ok {
		return nil, false
	}

	data, err := decodeBase64(encodedJSON)
	if err != nil {
		return nil, false
	}
	sig, err := decodeBase64(encodedSig)
	if err != nil {
		return nil, false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), sig) {
		return nil, false
	}

	var body legacyPayload
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, false
	}
	storeHash := body.StoreHash
	if storeHash == "" {
		storeHash = StoreHashFromContext(body.Context)
	}
	if storeHash == "" {
		return nil, false
	}
	return &SignedPayload{
		StoreHash:  storeHash,
		UserID:     body.User.ID,
		UserEmail:  body.User.Email,
		OwnerEmail: body.Owner.Email,
	}, true
}

// decodeBase64 accepts padded and unpadded standard or URL alphabets.
func decodeBase64(v string) ([]byte, error) {
	v = strings.TrimRight(v, "=")
	if strings.ContainsAny(v, "-_") {
		return base64.RawURLEncoding.DecodeString(v)
	}
	return base64.RawStdEncoding.DecodeString(v)
}
