package assets

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return db
}

func TestCreateAndGet(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	id, err := repo.Create(&Asset{
		Code:       "USDC",
		Issuer:     testIssuerA,
		Name:       "USD Coin",
		HomeDomain: "centre.io",
		Verified:   true,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := repo.GetByCodeIssuer("USDC", testIssuerA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "USD Coin", got.Name)
	assert.Equal(t, "centre.io", got.HomeDomain)
	assert.True(t, got.Verified)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	got, err := repo.GetByCodeIssuer("USDC", testIssuerA)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.GetByID(42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDuplicateIdentityRejected(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA})
	require.NoError(t, err)

	_, err = repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA})
	assert.Error(t, err)
}

func TestSameCodeDifferentIssuerAllowed(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA})
	require.NoError(t, err)
	_, err = repo.Create(&Asset{Code: "USDC", Issuer: testIssuerB})
	require.NoError(t, err)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetAllOrderedByCode(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	for _, code := range []string{"YBTC", "AQUA", "USDC"} {
		_, err := repo.Create(&Asset{Code: code, Issuer: testIssuerA})
		require.NoError(t, err)
	}

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AQUA", all[0].Code)
	assert.Equal(t, "USDC", all[1].Code)
	assert.Equal(t, "YBTC", all[2].Code)
}

func TestGetAllActive(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA, Active: true})
	require.NoError(t, err)
	_, err = repo.Create(&Asset{Code: "GONE", Issuer: testIssuerB})
	require.NoError(t, err)

	active, err := repo.GetAllActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "USDC", active[0].Code)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetActive(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	id, err := repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA, Active: true})
	require.NoError(t, err)

	require.NoError(t, repo.SetActive(id, false))

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := repo.GetAllActive()
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.Error(t, repo.SetActive(9999, false))
}

func TestUpsertInsertsAndUpdates(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	first, err := repo.Upsert(&Asset{
		Code:           "USD",
		Issuer:         testIssuerA,
		Name:           "AnchorUSD",
		Active:         true,
		DepositEnabled: true,
		NumAccounts:    500,
		AnchorDomain:   "anchor.example",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, first.Source)
	assert.True(t, first.DepositEnabled)
	assert.False(t, first.WithdrawEnabled)
	assert.Equal(t, int64(500), first.NumAccounts)
	assert.Equal(t, "anchor.example", first.AnchorDomain)

	second, err := repo.Upsert(&Asset{
		Code:            "USD",
		Issuer:          testIssuerA,
		Name:            "AnchorUSD v2",
		Active:          true,
		WithdrawEnabled: true,
		NumAccounts:     750,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "AnchorUSD v2", second.Name)
	assert.True(t, second.WithdrawEnabled)
	assert.False(t, second.DepositEnabled)
	assert.Equal(t, int64(750), second.NumAccounts)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetVerified(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA, Verified: true})
	require.NoError(t, err)
	_, err = repo.Create(&Asset{Code: "SKETCH", Issuer: testIssuerB})
	require.NoError(t, err)

	verified, err := repo.GetVerified()
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, "USDC", verified[0].Code)
}

func TestSetVerified(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	id, err := repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA})
	require.NoError(t, err)

	require.NoError(t, repo.SetVerified(id, true))

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.True(t, got.Verified)

	assert.Error(t, repo.SetVerified(9999, true))
}

func TestCount(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.Create(&Asset{Code: "USDC", Issuer: testIssuerA})
	require.NoError(t, err)

	n, err = repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
