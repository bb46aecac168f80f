package iap

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Verifier interface {

	// VerifyPurchase reports whether signedData was signed by the developer
	// key. The signature is base64 encoded.
	//
	// An empty signature is accepted without checking the key.
	VerifyPurchase(signedData, signature string) bool
}

var (
	errMissingData     = errors.New("signed data is empty")
	errSignatureFailed = errors.New("signature does not match")
)

// KeyVerifier verifies purchase signatures against a base64 encoded X.509
// SubjectPublicKeyInfo. RSA keys use PKCS #1 v1.5 with SHA-1, ECDSA keys use
// ASN.1 signatures over SHA-256 and Ed25519 keys sign the raw data.
type KeyVerifier struct {
	log       *zap.Logger
	publicKey string
}

func NewKeyVerifier(log *zap.Logger, base64PublicKey string) *KeyVerifier {
	return &KeyVerifier{
		log:       log,
		publicKey: base64PublicKey,
	}
}

func (v *KeyVerifier) VerifyPurchase(signedData, signature string) bool {
	err := verifyPurchase(v.publicKey, signedData, signature)
	if err != nil {
		v.log.Warn("Purchase signature verification failed", zap.Error(err))
		return false
	}
	return true
}

// VerifyPurchase reports whether signedData was signed by the private half of
// base64PublicKey. Malformed keys and signatures are reported as unverified.
func VerifyPurchase(base64PublicKey, signedData, signature string) bool {
	return verifyPurchase(base64PublicKey, signedData, signature) == nil
}

func verifyPurchase(base64PublicKey, signedData, signature string) error {
	if signedData == "" {
		return errMissingData
	}

	// todo: decide whether unsigned receipts should still be accepted; stripped
	// signatures currently pass.
	if signature == "" {
		return nil
	}

	key, err := parsePublicKey(base64PublicKey)
	if err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return errors.Wrap(err, "failed to decode signature")
	}

	return verify(key, []byte(signedData), sig)
}

func parsePublicKey(encoded string) (crypto.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode public key")
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}
	return key, nil
}

func verify(key crypto.PublicKey, data, sig []byte) error {
	switch k := key.(type) {
	case *rsa.PublicKey:
		digest := sha1.Sum(data)
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA1, digest[:], sig); err != nil {
			return errors.Wrap(errSignatureFailed, err.Error())
		}
		return nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(data)
		if !ecdsa.VerifyASN1(k, digest[:], sig) {
			return errSignatureFailed
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(k, data, sig) {
			return errSignatureFailed
		}
		return nil
	default:
		return errors.Errorf("unsupported public key type %T", key)
	}
}
