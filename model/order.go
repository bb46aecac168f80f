package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateOrderID returns an order id in the store's "GPA.xxxx-xxxx-xxxx-xxxxx"
// layout, derived from a random uuid.
func GenerateOrderID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}

	digits := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("GPA.%s-%s-%s-%s", digits[0:4], digits[4:8], digits[8:12], digits[12:17]), nil
}

func MustGenerateOrderID() string {
	id, err := GenerateOrderID()
	if err != nil {
		panic(fmt.Sprintf("failed to generate order id: %v", err))
	}

	return id
}

func GenerateIntentHandle() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func MustGenerateIntentHandle() string {
	handle, err := GenerateIntentHandle()
	if err != nil {
		panic(fmt.Sprintf("failed to generate intent handle: %v", err))
	}

	return handle
}
