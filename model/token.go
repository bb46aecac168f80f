package model

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const purchaseTokenSize = 32

func GeneratePurchaseToken() (string, error) {
	buf := make([]byte, purchaseTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base58.Encode(buf), nil
}

func MustGeneratePurchaseToken() string {
	token, err := GeneratePurchaseToken()
	if err != nil {
		panic(fmt.Sprintf("failed to generate purchase token: %v", err))
	}

	return token
}

// EncodeContinuationToken encodes a page offset as an opaque cursor.
func EncodeContinuationToken(offset int) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))
	return base58.Encode(buf[:])
}

func DecodeContinuationToken(token string) (int, error) {
	buf, err := base58.Decode(token)
	if err != nil {
		return 0, errors.Wrap(err, "invalid continuation token")
	}
	if len(buf) != 8 {
		return 0, errors.Errorf("invalid continuation token length %d", len(buf))
	}

	return int(binary.BigEndian.Uint64(buf)), nil
}
