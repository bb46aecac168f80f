package memory_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
	"github.com/lancao008/google-pay/iap/tests"
)

func TestMemoryVerifier(t *testing.T) {
	pub, priv, err := memory.GenerateKeyPair()
	if err != nil {
		t.Fatalf("error generating key pair: %v", err)
	}

	verifier := iap.NewKeyVerifier(zap.Must(zap.NewDevelopment()), pub)
	sign := func(data string) string {
		return memory.Sign(priv, data)
	}

	teardown := func() {}

	tests.RunVerifierTests(t, verifier, sign, teardown)
}
