package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// ErrKeyIDMissing indicates no kid is associated with the supplied key.
var ErrKeyIDMissing = errors.New("jwt: missing key identifier")

// ErrKeyNotRegistered indicates a supplied kid is unknown to the JWT manager.
var ErrKeyNotRegistered = errors.New("jwt: key not registered")

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures, and claim mismatches.
	ErrTokenInvalid = errors.New("jwt: invalid token")
	// ErrTokenExpired indicates the token was well formed but past its expiry.
	ErrTokenExpired = errors.New("jwt: token expired")
)

const defaultAccessTokenTTL = time.Hour

// JWTManager signs and verifies access tokens and publishes the JWKS.
type JWTManager struct {
	keyProvider KeyProvider
	issuer      string
	ttl         time.Duration
	now         func() time.Time

	mu         sync.RWMutex
	publicKeys map[string]*rsa.PublicKey
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider, issuer string, ttl time.Duration) *JWTManager {
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	mgr := &JWTManager{
		keyProvider: provider,
		issuer:      strings.TrimSpace(issuer),
		ttl:         ttl,
		now:         time.Now,
		publicKeys:  make(map[string]*rsa.PublicKey),
	}

	if provider != nil {
		for kid, key := range provider.ListVerificationKeys() {
			_ = mgr.RegisterPublicKey(kid, key)
		}
	}

	return mgr
}

// WithClock overrides the time source used for issuing and validating tokens.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

// RegisterPublicKey associates a kid with a public key for JWKS publication and future lookup.
func (m *JWTManager) RegisterPublicKey(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrKeyIDMissing
	}
	if key == nil {
		return fmt.Errorf("jwt: public key for %s is nil", kid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicKeys[kid] = key
	return nil
}

// GetVerificationKey retrieves a public key by kid.
func (m *JWTManager) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}

	m.mu.RLock()
	key, ok := m.publicKeys[kid]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	if m.keyProvider != nil {
		fetched, err := m.keyProvider.GetVerificationKey(kid)
		if err == nil {
			_ = m.RegisterPublicKey(kid, fetched)
			return fetched, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotRegistered, kid)
}

// JWKS produces the JSON Web Key Set for registered keys.
func (m *JWTManager) JWKS() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]map[string]string, 0, len(m.publicKeys))
	for kid, key := range m.publicKeys {
		if key == nil {
			continue
		}
		keys = append(keys, buildJWK(kid, key))
	}

	return json.Marshal(map[string]any{"keys": keys})
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

// AccessTokenClaims carries the authenticated user id alongside the registered claims.
type AccessTokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a token for userID and returns it with its expiry.
func (m *JWTManager) IssueAccessToken(userID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("jwt: user id is required")
	}
	if m.keyProvider == nil {
		return "", time.Time{}, fmt.Errorf("jwt: key provider not configured")
	}

	kid, signingKey, err := m.keyProvider.SigningKey()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: get signing key: %w", err)
	}
	if strings.TrimSpace(kid) == "" {
		return "", time.Time{}, ErrKeyIDMissing
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := &AccessTokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// ParseAccessToken validates signature, issuer, audience and expiry and returns the claims.
func (m *JWTManager) ParseAccessToken(raw string) (*AccessTokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}

	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return m.GetVerificationKey(kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
