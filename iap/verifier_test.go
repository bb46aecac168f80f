package iap

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

const signedReceipt = `{"orderId":"GPA.1234","productId":"gas","purchaseToken":"pt"}`

func encodePublicKey(t *testing.T, pub any) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func TestVerifyPurchase_RSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key := encodePublicKey(t, &priv.PublicKey)

	digest := sha1.Sum([]byte(signedReceipt))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA1, digest[:])
	require.NoError(t, err)

	require.True(t, VerifyPurchase(key, signedReceipt, base64.StdEncoding.EncodeToString(sig)))

	sig[len(sig)-1] ^= 1
	require.False(t, VerifyPurchase(key, signedReceipt, base64.StdEncoding.EncodeToString(sig)))
}

func TestVerifyPurchase_ECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key := encodePublicKey(t, &priv.PublicKey)

	digest := sha256.Sum256([]byte(signedReceipt))
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	require.True(t, VerifyPurchase(key, signedReceipt, base64.StdEncoding.EncodeToString(sig)))
	require.False(t, VerifyPurchase(key, signedReceipt+" ", base64.StdEncoding.EncodeToString(sig)))
}

func TestVerifyPurchase_Ed25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key := encodePublicKey(t, pub)

	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(signedReceipt)))
	require.True(t, VerifyPurchase(key, signedReceipt, sig))

	other, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	require.False(t, VerifyPurchase(encodePublicKey(t, other), signedReceipt, sig))
}

func TestVerifyPurchase_Malformed(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key := encodePublicKey(t, pub)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(signedReceipt)))

	require.False(t, VerifyPurchase("not a key", signedReceipt, sig))
	require.False(t, VerifyPurchase(base64.StdEncoding.EncodeToString([]byte("garbage")), signedReceipt, sig))
	require.False(t, VerifyPurchase(key, "", sig))
	require.False(t, VerifyPurchase(key, signedReceipt, "%%%"))

	// Unsigned receipts are accepted, even with an unusable key.
	require.True(t, VerifyPurchase(key, signedReceipt, ""))
	require.True(t, VerifyPurchase("not a key", signedReceipt, ""))
}
