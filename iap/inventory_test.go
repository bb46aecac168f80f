package iap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnion(t *testing.T) {
	require.Equal(t, []string{"gas", "premium", "extra"}, union([]string{"gas", "premium"}, []string{"premium", "extra", "gas", "extra"}))
	require.Equal(t, []string{"extra"}, union(nil, []string{"extra", "extra"}))
	require.Empty(t, union(nil, nil))
}
