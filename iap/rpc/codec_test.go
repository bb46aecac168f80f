package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lancao008/google-pay/iap"
)

func TestStructMessages(t *testing.T) {
	s, err := toStruct(&iap.SkuDetailsResponse{ResponseCode: iap.ErrorRemoteException})
	require.NoError(t, err)

	var resp iap.SkuDetailsResponse
	require.NoError(t, fromStruct(s, &resp))
	require.Equal(t, iap.ErrorRemoteException, resp.ResponseCode)
	require.Nil(t, resp.DetailsList)

	s, err = toStruct(&GetSkuDetailsRequest{APIVersion: iap.APIVersion, SKUs: []string{"gas", "premium"}})
	require.NoError(t, err)
	require.Equal(t, float64(iap.APIVersion), s.Fields["apiVersion"].GetNumberValue())

	var req GetSkuDetailsRequest
	require.NoError(t, fromStruct(s, &req))
	require.Equal(t, []string{"gas", "premium"}, req.SKUs)
}
