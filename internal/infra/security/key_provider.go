package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const ephemeralKeyID = "ephemeral"

var ErrKeyNotFound = errors.New("key not found")

// KeyProvider defines the interface for providing cryptographic keys.
type KeyProvider interface {
	// SigningKey returns the private key and its kid used for new tokens.
	SigningKey() (string, *rsa.PrivateKey, error)
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
	ListVerificationKeys() map[string]*rsa.PublicKey
}

// DirKeyProvider loads PEM encoded RSA keys from a directory. The file name without
// extension is the kid. The lexically first private key signs new tokens.
type DirKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKID string
	signingKey *rsa.PrivateKey
}

// NewDirKeyProvider reads every key file in keyDir.
func NewDirKeyProvider(keyDir string) (*DirKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		names = append(names, file.Name())
	}
	sort.Strings(names)

	provider := &DirKeyProvider{
		keys: make(map[string]*rsa.PublicKey),
	}

	for _, name := range names {
		path := filepath.Join(keyDir, name)
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(name, filepath.Ext(name))
		private, public, err := parseRSAKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key from file %s: %w", path, err)
		}
		if private != nil && provider.signingKey == nil {
			provider.signingKey = private
			provider.signingKID = kid
		}
		provider.keys[kid] = public
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, &key.PublicKey, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, &rsaKey.PublicKey, nil
		}
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return nil, key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
	}
	return nil, nil, errors.New("unsupported key encoding")
}

// SigningKey returns the private key for signing tokens.
func (p *DirKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	return p.signingKID, p.signingKey, nil
}

// GetVerificationKey returns the public key for verifying tokens.
func (p *DirKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// ListVerificationKeys returns a copy of all loaded public keys.
func (p *DirKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

// EphemeralKeyProvider holds a key pair generated at startup. Tokens do not survive a restart.
type EphemeralKeyProvider struct {
	key *rsa.PrivateKey
}

// NewEphemeralKeyProvider generates a fresh RSA key pair.
func NewEphemeralKeyProvider(bits int) (*EphemeralKeyProvider, error) {
	if bits <= 0 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &EphemeralKeyProvider{key: key}, nil
}

// SigningKey returns the generated private key.
func (p *EphemeralKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	return ephemeralKeyID, p.key, nil
}

// GetVerificationKey returns the generated public key when kid matches.
func (p *EphemeralKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != ephemeralKeyID {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return &p.key.PublicKey, nil
}

// ListVerificationKeys returns the single generated public key.
func (p *EphemeralKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	return map[string]*rsa.PublicKey{ephemeralKeyID: &p.key.PublicKey}
}

// NewKeyProvider creates a KeyProvider based on the environment. Outside production a
// missing or empty key directory falls back to an ephemeral key pair.
func NewKeyProvider(env, keyDir string) (KeyProvider, error) {
	keyDir = strings.TrimSpace(keyDir)
	if keyDir != "" {
		provider, err := NewDirKeyProvider(keyDir)
		if err == nil {
			return provider, nil
		}
		if env == "production" {
			return nil, err
		}
	} else if env == "production" {
		return nil, errors.New("jwt key directory is required in production")
	}

	return NewEphemeralKeyProvider(2048)
}

// WriteKeyPair generates an RSA key and writes it as a PKCS#1 PEM file named <kid>.pem in dir.
func WriteKeyPair(dir, kid string, bits int) (string, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return "", ErrKeyIDMissing
	}
	if bits < 2048 {
		return "", fmt.Errorf("rsa key size must be at least 2048 bits")
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", fmt.Errorf("generate rsa key: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create key directory: %w", err)
	}

	path := filepath.Join(dir, kid+".pem")
	encoded := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	return path, nil
}
