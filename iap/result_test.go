package iap

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestResponseCode_String(t *testing.T) {
	for _, tc := range []struct {
		code     ResponseCode
		expected string
	}{
		{ResponseOK, "OK"},
		{ResponseUserCanceled, "User Canceled"},
		{2, "Unknown"},
		{ResponseItemNotOwned, "Item not owned"},
		{9, "9:Unknown"},
		{-1, "-1:Unknown"},
		{ErrorBase, "OK"},
		{ErrorVerificationFailed, "Purchase signature verification failed"},
		{ErrorInvalidConsumption, "Invalid consumption attempt"},
		{-1011, "-1011:Unknown IAB Helper Error"},
	} {
		require.Equal(t, tc.expected, tc.code.String(), "code %d", int(tc.code))
	}
}

func TestNewResult(t *testing.T) {
	result := NewResult(ResponseItemAlreadyOwned, "Unable to buy item")
	require.Equal(t, "Unable to buy item (response: Item Already Owned)", result.Message)
	require.True(t, result.IsFailure())
	require.Equal(t, "IabResult: Unable to buy item (response: Item Already Owned)", result.String())

	result = NewResult(ResponseOK, "")
	require.Equal(t, "OK", result.Message)
	require.True(t, result.IsSuccess())
}

func TestResultFromError(t *testing.T) {
	require.Equal(t, ResponseOK, ResultFromError(nil).Response)

	cause := errors.New("binder died")
	err := WrapError(cause, ErrorRemoteException, "Remote exception while consuming.")
	require.Equal(t, ErrorRemoteException, ResponseCodeOf(err))
	require.Equal(t, "Remote exception while consuming. (response: Remote exception during initialization): binder died", err.Error())
	require.Same(t, cause, errors.Cause(err))
	require.ErrorIs(t, err, cause)

	wrapped := errors.Wrap(NewError(ErrorMissingToken, "no token"), "consume")
	require.Equal(t, ErrorMissingToken, ResponseCodeOf(wrapped))

	result := ResultFromError(errors.New("boom"))
	require.Equal(t, ErrorUnknown, result.Response)
	require.Equal(t, "boom (response: Unknown error)", result.Message)
}
