package tests

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lancao008/google-pay/iap"
)

// Signer returns the base64 signature of data under the key v checks against.
type Signer func(data string) string

func RunVerifierTests(t *testing.T, v iap.Verifier, sign Signer, teardown func()) {
	for _, testFunc := range []func(t *testing.T, v iap.Verifier, sign Signer){
		testVerifier_ValidSignature,
		testVerifier_TamperedData,
		testVerifier_TamperedSignature,
		testVerifier_EmptySignature,
		testVerifier_EmptyData,
		testVerifier_Garbage,
	} {
		testFunc(t, v, sign)
		teardown()
	}
}

const receiptJSON = `{"orderId":"GPA.1234-5678-9012-34567","packageName":"com.example.billing","productId":"gas","purchaseTime":1345678900000,"purchaseState":0,"purchaseToken":"opaque-token"}`

func flipBit(b []byte, i int) []byte {
	copied := append([]byte(nil), b...)
	copied[i/8] ^= 1 << (i % 8)
	return copied
}

func testVerifier_ValidSignature(t *testing.T, v iap.Verifier, sign Signer) {
	require.True(t, v.VerifyPurchase(receiptJSON, sign(receiptJSON)))
	require.True(t, v.VerifyPurchase("paid_feature", sign("paid_feature")))
}

func testVerifier_TamperedData(t *testing.T, v iap.Verifier, sign Signer) {
	signature := sign(receiptJSON)

	for _, bit := range []int{0, 7, 8 * 20, 8*len(receiptJSON) - 1} {
		tampered := string(flipBit([]byte(receiptJSON), bit))
		require.False(t, v.VerifyPurchase(tampered, signature), "bit %d", bit)
	}
}

func testVerifier_TamperedSignature(t *testing.T, v iap.Verifier, sign Signer) {
	raw, err := base64.StdEncoding.DecodeString(sign(receiptJSON))
	require.NoError(t, err)

	for _, bit := range []int{0, 8*len(raw)/2 + 3, 8*len(raw) - 1} {
		tampered := base64.StdEncoding.EncodeToString(flipBit(raw, bit))
		require.False(t, v.VerifyPurchase(receiptJSON, tampered), "bit %d", bit)
	}
}

func testVerifier_EmptySignature(t *testing.T, v iap.Verifier, _ Signer) {
	require.True(t, v.VerifyPurchase(receiptJSON, ""))
}

func testVerifier_EmptyData(t *testing.T, v iap.Verifier, sign Signer) {
	require.False(t, v.VerifyPurchase("", sign("")))
	require.False(t, v.VerifyPurchase("", ""))
}

func testVerifier_Garbage(t *testing.T, v iap.Verifier, _ Signer) {
	require.False(t, v.VerifyPurchase(receiptJSON, "invalid"))
	require.False(t, v.VerifyPurchase(receiptJSON, "not base64!"))
	require.False(t, v.VerifyPurchase(receiptJSON, base64.StdEncoding.EncodeToString([]byte("short"))))
}
