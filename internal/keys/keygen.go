// AngelaMos | 2026
// keygen.go

package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const keyIDLength = 16

func generateKey() (jwk.Key, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	key, err := jwk.Import(raw)
	if err != nil {
		return nil, fmt.Errorf("import private key: %w", err)
	}

	return key, nil
}

// LoadPEM reads an EC private key in PEM form.
func LoadPEM(path string) (jwk.Key, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied key path
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	key, err := jwk.ParseKey(data, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return key, nil
}

// newSigningKey stamps alg and a thumbprint-derived kid onto priv, so the
// same PEM file yields the same kid across restarts.
func newSigningKey(priv jwk.Key, now time.Time) (SigningKey, error) {
	if priv.KeyType().String() != jwa.EC().String() {
		return SigningKey{}, fmt.Errorf("signing key must be EC, got %s", priv.KeyType())
	}

	if err := priv.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return SigningKey{}, fmt.Errorf("set algorithm: %w", err)
	}

	kid, ok := priv.KeyID()
	if !ok || kid == "" {
		thumb, err := priv.Thumbprint(crypto.SHA256)
		if err != nil {
			return SigningKey{}, fmt.Errorf("compute thumbprint: %w", err)
		}
		kid = base64.RawURLEncoding.EncodeToString(thumb)[:keyIDLength]
		if err := priv.Set(jwk.KeyIDKey, kid); err != nil {
			return SigningKey{}, fmt.Errorf("set key id: %w", err)
		}
	}

	pub, err := priv.PublicKey()
	if err != nil {
		return SigningKey{}, fmt.Errorf("derive public key: %w", err)
	}

	if err := pub.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return SigningKey{}, fmt.Errorf("set key usage: %w", err)
	}

	return SigningKey{
		ID:        kid,
		Private:   priv,
		Public:    pub,
		CreatedAt: now,
		Status:    StatusActive,
	}, nil
}

// GenerateKeyPair writes a fresh P-256 key pair as PEM and returns its kid.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) (string, error) {
	priv, err := generateKey()
	if err != nil {
		return "", err
	}

	key, err := newSigningKey(priv, time.Now())
	if err != nil {
		return "", err
	}

	privatePEM, err := jwk.Pem(key.Private)
	if err != nil {
		return "", fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return "", fmt.Errorf("write private key: %w", writeErr)
	}

	publicPEM, err := jwk.Pem(key.Public)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is intentionally world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return "", fmt.Errorf("write public key: %w", writeErr)
	}

	return key.ID, nil
}
