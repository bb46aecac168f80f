package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
	"github.com/lancao008/google-pay/iap/tests"
	"github.com/lancao008/google-pay/testutil"
)

func runServer(t *testing.T, svc iap.Service) grpc.ClientConnInterface {
	server := NewServer(zap.Must(zap.NewDevelopment()), svc)
	return testutil.RunGRPCServer(t, testutil.WithService(func(s *grpc.Server) {
		server.Register(s)
	}))
}

func TestIAP_RPCSession(t *testing.T) {
	pub, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)
	cc := runServer(t, svc)

	env := tests.Env{
		Service:   svc,
		Binder:    NewConnBinder(cc),
		PublicKey: pub,
	}

	tests.RunSessionTests(t, env, svc.Reset)
}

func newSession(t *testing.T, binder iap.Binder, pub string) *iap.Session {
	log := zap.Must(zap.NewDevelopment())
	session := iap.NewSession(log, binder, iap.NewKeyVerifier(log, pub), tests.PackageName)
	t.Cleanup(session.Dispose)

	cb, wait := tests.Await[bool](t)
	session.Setup(context.Background(), cb)
	result, _ := wait()
	require.True(t, result.IsSuccess(), result.Message)
	return session
}

func TestApprovalHost(t *testing.T) {
	pub, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)
	svc.AddProduct(memory.Product{SKU: tests.SkuGas, ItemType: iap.ItemTypeInApp})
	cc := runServer(t, svc)

	session := newSession(t, NewConnBinder(cc), pub)
	ctx := context.Background()

	approve := true
	host := NewApprovalHost(zap.Must(zap.NewDevelopment()), cc, session, func(intent *iap.BuyIntent) bool {
		require.Equal(t, tests.SkuGas, intent.SKU)
		return approve
	})

	approve = false
	cb, wait := tests.Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(ctx, host, tests.SkuGas, iap.ItemTypeInApp, 1, cb, "")

	result, purchase := wait()
	require.Equal(t, iap.ErrorUserCancelled, result.Response)
	require.Nil(t, purchase)
	require.False(t, svc.Owns(tests.SkuGas))

	approve = true
	cb, wait = tests.Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(ctx, host, tests.SkuGas, iap.ItemTypeInApp, 2, cb, "payload")

	result, purchase = wait()
	require.True(t, result.IsSuccess(), result.Message)
	require.Equal(t, tests.SkuGas, purchase.SKU)
	require.Equal(t, "payload", purchase.DeveloperPayload)
	require.True(t, svc.Owns(tests.SkuGas))
	require.False(t, session.State().Busy())

	require.NoError(t, session.Consume(ctx, purchase))
	require.False(t, svc.Owns(tests.SkuGas))
}

func TestApprovalHost_UnknownIntent(t *testing.T) {
	pub, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)
	svc.AddProduct(memory.Product{SKU: tests.SkuGas, ItemType: iap.ItemTypeInApp})
	cc := runServer(t, svc)

	session := newSession(t, NewConnBinder(cc), pub)

	host := NewApprovalHost(zap.Must(zap.NewDevelopment()), cc, session, nil)
	forgetful := iap.HostFunc(func(ctx context.Context, requestCode int, intent *iap.BuyIntent) error {
		intent.Handle = "forgotten"
		return host.Authorize(ctx, requestCode, intent)
	})

	cb, wait := tests.Await[*iap.Purchase](t)
	session.LaunchPurchaseFlow(context.Background(), forgetful, tests.SkuGas, iap.ItemTypeInApp, 3, cb, "")

	result, _ := wait()
	require.Equal(t, iap.ErrorSendIntentFailed, result.Response)
	require.False(t, session.State().Busy())
}

func TestServer_ApproveUnsupported(t *testing.T) {
	_, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)

	// Hide the Approver methods of the memory service.
	cc := runServer(t, struct{ iap.Service }{svc})

	_, err := NewClient(cc).Approve(context.Background(), "handle")
	require.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = NewClient(runServer(t, svc)).Approve(context.Background(), "handle")
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestClient_ChannelFailure(t *testing.T) {
	_, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)
	cc := runServer(t, svc)
	client := NewClient(cc)
	ctx := context.Background()

	svc.BreakChannel(memory.MethodConsumePurchase, context.DeadlineExceeded)
	_, err := client.ConsumePurchase(ctx, iap.APIVersion, tests.PackageName, "token")
	require.Equal(t, codes.Unavailable, status.Code(err))

	svc.FailWith(memory.MethodConsumePurchase, iap.ResponseItemNotOwned)
	code, err := client.ConsumePurchase(ctx, iap.APIVersion, tests.PackageName, "token")
	require.NoError(t, err)
	require.Equal(t, iap.ResponseItemNotOwned, code)

	details, err := client.GetSkuDetails(ctx, iap.APIVersion, tests.PackageName, iap.ItemTypeInApp, nil)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseDeveloperError, details.ResponseCode)
	require.Nil(t, details.DetailsList)
}

func TestConnection_Close(t *testing.T) {
	_, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)
	cc := runServer(t, svc)

	conn, err := NewConnBinder(cc).Bind(context.Background())
	require.NoError(t, err)

	code, err := conn.IsBillingSupported(context.Background(), iap.APIVersion, tests.PackageName, iap.ItemTypeInApp)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseOK, code)

	require.NoError(t, conn.Close())
	require.ErrorIs(t, conn.Close(), ErrClosed)

	_, err = conn.IsBillingSupported(context.Background(), iap.APIVersion, tests.PackageName, iap.ItemTypeInApp)
	require.ErrorIs(t, err, ErrClosed)

	// The shared client connection stays usable.
	code, err = NewClient(cc).IsBillingSupported(context.Background(), iap.APIVersion, tests.PackageName, iap.ItemTypeInApp)
	require.NoError(t, err)
	require.Equal(t, iap.ResponseOK, code)
}

func TestBinder_NoProvider(t *testing.T) {
	log := zap.Must(zap.NewDevelopment())
	session := iap.NewSession(log, NewBinder(log, ""), iap.NewKeyVerifier(log, ""), tests.PackageName)
	defer session.Dispose()

	cb, wait := tests.Await[bool](t)
	session.Setup(context.Background(), cb)

	result, _ := wait()
	require.Equal(t, iap.ResponseBillingUnavailable, result.Response)
}

func TestBinder_Dial(t *testing.T) {
	pub, priv := memory.MustGenerateKeyPair()
	svc := memory.NewService(tests.PackageName, priv)
	svc.AddProduct(memory.Product{SKU: tests.SkuGas, ItemType: iap.ItemTypeInApp})
	_, err := svc.Grant(tests.SkuGas, "")
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serv := grpc.NewServer()
	NewServer(zap.Must(zap.NewDevelopment()), svc).Register(serv)
	go func() {
		_ = serv.Serve(lis)
	}()
	t.Cleanup(serv.Stop)

	log := zap.Must(zap.NewDevelopment())
	session := newSession(t, NewBinder(log, lis.Addr().String()), pub)

	inv, err := session.QueryInventory(context.Background(), false, nil, nil)
	require.NoError(t, err)
	require.True(t, inv.HasPurchase(tests.SkuGas))

	session.Dispose()
}
