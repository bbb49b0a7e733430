package assets

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/events"
)

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(bus.Close)
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	return NewService(repo, bus, zerolog.Nop()), bus
}

func TestEnsureNativeIdempotent(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.EnsureNative())
	require.NoError(t, svc.EnsureNative())

	n, err := svc.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	native, err := svc.GetByKey(NativeKey)
	require.NoError(t, err)
	assert.True(t, native.IsNative())
	assert.True(t, native.Verified)
}

func TestRegisterPublishesEvent(t *testing.T) {
	svc, bus := newTestService(t)
	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	asset, err := svc.Register(RegisterInput{
		Code:   "USDC",
		Issuer: testIssuerA,
		Name:   "USD Coin",
	})
	require.NoError(t, err)
	assert.Equal(t, "USDC:"+testIssuerA, asset.Key())

	evt := <-ch
	assert.Equal(t, events.AssetAdded, evt.Type)
	data := evt.Data.(*events.AssetAddedData)
	assert.Equal(t, asset.Key(), data.Key)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(RegisterInput{Code: "", Issuer: testIssuerA})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))

	_, err = svc.Register(RegisterInput{Code: "USDC", Issuer: "bogus"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))

	_, err = svc.Register(RegisterInput{Code: "XLM", Issuer: ""})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(RegisterInput{Code: "USDC", Issuer: testIssuerA})
	require.NoError(t, err)

	_, err = svc.Register(RegisterInput{Code: "USDC", Issuer: testIssuerA})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))
	assert.Contains(t, err.Error(), "already registered")
}

func TestGetByKeyErrors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetByKey("badkey")
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))

	_, err = svc.GetByKey("USDC:" + testIssuerA)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestGetByKeyAcceptsAliases(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.EnsureNative())

	for _, key := range []string{"XLM", "native", NativeKey} {
		asset, err := svc.GetByKey(key)
		require.NoError(t, err, key)
		assert.True(t, asset.IsNative())
	}
}

func TestRoutableExcludesInactive(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.EnsureNative())

	asset, err := svc.Register(RegisterInput{Code: "USDC", Issuer: testIssuerA})
	require.NoError(t, err)
	assert.True(t, asset.Active)

	routable, err := svc.Routable()
	require.NoError(t, err)
	require.Len(t, routable, 2)

	updated, err := svc.SetActive(asset.Key(), false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	routable, err = svc.Routable()
	require.NoError(t, err)
	require.Len(t, routable, 1)
	assert.True(t, routable[0].IsNative())

	// The row itself survives deactivation
	got, err := svc.GetByKey(asset.Key())
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestSetActiveUnknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SetActive("USDC:"+testIssuerA, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestUpsertReplacesAttributes(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upsert(RegisterInput{Code: "USDC", Issuer: testIssuerA, Name: "USD Coin"})
	require.NoError(t, err)

	// A second upsert with the same identity updates in place and revives
	// a deactivated row
	_, err = svc.SetActive("USDC:"+testIssuerA, false)
	require.NoError(t, err)

	asset, err := svc.Upsert(RegisterInput{
		Code:           "USDC",
		Issuer:         testIssuerA,
		Name:           "USD Coin (Centre)",
		DepositEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "USD Coin (Centre)", asset.Name)
	assert.True(t, asset.Active)
	assert.True(t, asset.DepositEnabled)

	n, err := svc.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Upsert(RegisterInput{Code: "USDC", Issuer: "bogus"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBadRequest))
}

func TestSetVerifiedByKey(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(RegisterInput{Code: "USDC", Issuer: testIssuerA})
	require.NoError(t, err)

	updated, err := svc.SetVerified("USDC:"+testIssuerA, true)
	require.NoError(t, err)
	assert.True(t, updated.Verified)

	_, err = svc.SetVerified("EURC:"+testIssuerB, true)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
