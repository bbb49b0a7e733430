package horizon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdcIssuer = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"

func TestNewAssetDerivesType(t *testing.T) {
	assert.Equal(t, "native", NewAsset("XLM", "").Type)
	assert.Equal(t, "credit_alphanum4", NewAsset("USDC", usdcIssuer).Type)
	assert.Equal(t, "credit_alphanum12", NewAsset("YUSDC", usdcIssuer).Type)
}

func TestAssetCanonical(t *testing.T) {
	assert.Equal(t, "native", NewAsset("", "").Canonical())
	assert.Equal(t, "USDC:"+usdcIssuer, NewAsset("USDC", usdcIssuer).Canonical())
}

func TestOrderbook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order_book", r.URL.Path)
		assert.Equal(t, "native", r.URL.Query().Get("selling_asset_type"))
		assert.Equal(t, "USDC", r.URL.Query().Get("buying_asset_code"))
		assert.Equal(t, usdcIssuer, r.URL.Query().Get("buying_asset_issuer"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"bids": [{"price": "0.1182", "amount": "1500.25"}],
			"asks": [
				{"price": "0.1190", "amount": "800.0"},
				{"price": "0.1195", "amount": "1200.0"},
				{"price": "bogus", "amount": "10"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	ob, err := c.Orderbook(context.Background(), NewAsset("XLM", ""), NewAsset("USDC", usdcIssuer), 20)
	require.NoError(t, err)

	assert.InDelta(t, 0.1182, ob.BestBid(), 1e-9)
	assert.InDelta(t, 0.1190, ob.BestAsk(), 1e-9)
	// Unparseable level is skipped, not fatal
	assert.Len(t, ob.Asks, 2)
	assert.InDelta(t, 2000.0, ob.AskDepth(), 1e-9)
}

func TestOrderbookEmptySides(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bids": [], "asks": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	ob, err := c.Orderbook(context.Background(), NewAsset("XLM", ""), NewAsset("USDC", usdcIssuer), 0)
	require.NoError(t, err)

	assert.Zero(t, ob.BestBid())
	assert.Zero(t, ob.BestAsk())
	assert.Zero(t, ob.AskDepth())
}

func TestStrictSendPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paths/strict-send", r.URL.Path)
		assert.Equal(t, "native", r.URL.Query().Get("source_asset_type"))
		assert.Equal(t, "100.0000000", r.URL.Query().Get("source_amount"))
		assert.Equal(t, "USDC:"+usdcIssuer, r.URL.Query().Get("destination_assets"))

		_, _ = w.Write([]byte(`{
			"_embedded": {
				"records": [
					{
						"source_amount": "100.0000000",
						"destination_amount": "11.8234567",
						"destination_asset_type": "credit_alphanum4",
						"destination_asset_code": "USDC",
						"destination_asset_issuer": "` + usdcIssuer + `",
						"path": [{"asset_type": "credit_alphanum4", "asset_code": "EURC", "asset_issuer": "` + usdcIssuer + `"}]
					}
				]
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	records, err := c.StrictSendPaths(
		context.Background(),
		NewAsset("XLM", ""),
		"100.0000000",
		[]Asset{NewAsset("USDC", usdcIssuer)},
	)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "11.8234567", records[0].DestinationAmount)
	assert.Equal(t, "USDC", records[0].DestinationAsset.Code)
	require.Len(t, records[0].Path, 1)
	assert.Equal(t, "EURC", records[0].Path[0].Code)
}

func TestErrorDecodesProblem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"type": "not_found", "title": "Resource Missing", "status": 404}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	_, err := c.Orderbook(context.Background(), NewAsset("XLM", ""), NewAsset("USDC", usdcIssuer), 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Resource Missing")
	assert.Contains(t, err.Error(), "404")
}

func TestRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"horizon_version": "22.0.1",
			"network_passphrase": "Public Global Stellar Network ; September 2015",
			"history_latest_ledger": 54312345
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	root, err := c.Root(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "22.0.1", root.HorizonVersion)
	assert.Equal(t, int32(54312345), root.HistoryLatestLedger)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, zerolog.Nop())
	_, err := c.Root(ctx)
	assert.Error(t, err)
}
