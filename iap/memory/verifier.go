package memory

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// GenerateKeyPair creates a developer key pair for signing receipts. The
// public key is returned as a base64 X.509 SubjectPublicKeyInfo, the form a
// session is configured with.
func GenerateKeyPair() (string, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", nil, err
	}

	return base64.StdEncoding.EncodeToString(der), priv, nil
}

func MustGenerateKeyPair() (string, ed25519.PrivateKey) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		panic(fmt.Sprintf("failed to generate key pair: %v", err))
	}

	return pub, priv
}

// Sign returns the base64 signature of data.
func Sign(owner ed25519.PrivateKey, data string) string {
	signature := ed25519.Sign(owner, []byte(data))
	return base64.StdEncoding.EncodeToString(signature)
}
