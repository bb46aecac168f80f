package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
	"github.com/lancao008/google-pay/iap/tests"
)

func newTestService() (*memory.Service, string) {
	pub, priv := memory.MustGenerateKeyPair()
	return memory.NewService(tests.PackageName, priv), pub
}

func TestIAP_MemorySession(t *testing.T) {
	svc, pub := newTestService()

	env := tests.Env{
		Service:   svc,
		Binder:    memory.NewBinder(svc),
		PublicKey: pub,
	}

	tests.RunSessionTests(t, env, svc.Reset)
}

func setupWith(t *testing.T, binder iap.Binder, pub string, opts ...iap.Option) (*iap.Session, iap.Result) {
	log := zap.Must(zap.NewDevelopment())
	session := iap.NewSession(log, binder, iap.NewKeyVerifier(log, pub), tests.PackageName, opts...)
	t.Cleanup(session.Dispose)

	cb, wait := tests.Await[bool](t)
	session.Setup(context.Background(), cb)
	result, _ := wait()
	return session, result
}

func TestSession_NoProvider(t *testing.T) {
	svc, pub := newTestService()
	binder := memory.NewBinder(svc)
	binder.FailBind(iap.ErrNoProvider)

	session, result := setupWith(t, binder, pub)
	require.Equal(t, iap.ResponseBillingUnavailable, result.Response)
	require.Equal(t, iap.PhaseDisposed, session.State().Phase)
	require.Equal(t, 0, svc.Calls(memory.MethodIsBillingSupported))
}

func TestSession_BindFailure(t *testing.T) {
	svc, pub := newTestService()
	binder := memory.NewBinder(svc)
	binder.FailBind(errors.New("permission denied"))

	_, result := setupWith(t, binder, pub)
	require.Equal(t, iap.ErrorRemoteException, result.Response)
	require.Equal(t, 1, binder.Binds())
	require.Equal(t, 0, binder.Open())
}

func TestSession_SupportCheckFailureReleasesConnection(t *testing.T) {
	svc, pub := newTestService()
	binder := memory.NewBinder(svc)
	svc.BreakChannel(memory.MethodIsBillingSupported, errors.New("binder died"))

	session, result := setupWith(t, binder, pub)
	require.Equal(t, iap.ErrorRemoteException, result.Response)
	require.Equal(t, iap.PhaseDisposed, session.State().Phase)
	require.Equal(t, 0, binder.Open())
}

func TestSession_DisposeReleasesConnection(t *testing.T) {
	svc, pub := newTestService()
	binder := memory.NewBinder(svc)

	session, result := setupWith(t, binder, pub)
	require.True(t, result.IsSuccess())
	require.Equal(t, 1, binder.Open())

	session.Dispose()
	session.Dispose()
	require.Equal(t, 0, binder.Open())
}

func TestSession_APIVersion(t *testing.T) {
	svc, pub := newTestService()

	_, result := setupWith(t, memory.NewBinder(svc), pub, iap.WithAPIVersion(2))
	require.Equal(t, iap.ResponseBillingUnavailable, result.Response)
}

func TestSession_Dispatcher(t *testing.T) {
	svc, pub := newTestService()

	queue := make(chan func(), 4)
	dispatch := func(f func()) {
		queue <- f
	}

	log := zap.Must(zap.NewDevelopment())
	session := iap.NewSession(log, memory.NewBinder(svc), iap.NewKeyVerifier(log, pub), tests.PackageName, iap.WithDispatcher(dispatch))
	defer session.Dispose()

	var result iap.Result
	session.Setup(context.Background(), func(r iap.Result, _ bool) {
		result = r
	})

	select {
	case f := <-queue:
		require.Equal(t, iap.Result{}, result)
		f()
	case <-time.After(5 * time.Second):
		require.FailNow(t, "setup callback not dispatched")
	}
	require.True(t, result.IsSuccess())
}

func TestSession_DisposeDuringSetup(t *testing.T) {
	svc, pub := newTestService()
	binder := &blockingBinder{Binder: memory.NewBinder(svc), release: make(chan struct{})}

	log := zap.Must(zap.NewDevelopment())
	session := iap.NewSession(log, binder, iap.NewKeyVerifier(log, pub), tests.PackageName)

	cb, wait := tests.Await[bool](t)
	session.Setup(context.Background(), cb)

	session.Dispose()
	close(binder.release)

	result, _ := wait()
	require.Equal(t, iap.ErrorRemoteException, result.Response)
	require.Equal(t, iap.PhaseDisposed, session.State().Phase)
	require.Equal(t, 0, binder.Open())
}

type blockingBinder struct {
	*memory.Binder
	release chan struct{}
}

func (b *blockingBinder) Bind(ctx context.Context) (iap.Connection, error) {
	<-b.release
	return b.Binder.Bind(ctx)
}
