// Package horizon provides a client for the Stellar Horizon API. Only the
// read endpoints the service needs are implemented: orderbook snapshots,
// strict-send pathfinding, and the root document.
package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Client for the Horizon REST API
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Horizon client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "horizon").Logger(),
	}
}

// problem is Horizon's application/problem+json error body
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// Root fetches the Horizon root document. Useful as an upstream health
// probe and to confirm the network passphrase.
func (c *Client) Root(ctx context.Context) (*Root, error) {
	var root Root
	if err := c.getJSON(ctx, c.baseURL, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// Orderbook fetches the orderbook for the selling/buying pair. limit caps
// the number of price levels per side (Horizon default 20, max 200).
func (c *Client) Orderbook(ctx context.Context, selling, buying Asset, limit int) (*Orderbook, error) {
	q := url.Values{}
	assetParams(q, "selling", selling)
	assetParams(q, "buying", buying)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var raw struct {
		Bids []rawLevel `json:"bids"`
		Asks []rawLevel `json:"asks"`
	}
	endpoint := c.baseURL + "/order_book?" + q.Encode()
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("orderbook %s/%s: %w", selling.Canonical(), buying.Canonical(), err)
	}

	ob := &Orderbook{
		Bids: c.parseLevels(raw.Bids),
		Asks: c.parseLevels(raw.Asks),
	}
	return ob, nil
}

// StrictSendPaths queries Horizon's strict-send pathfinder: fix the source
// amount, find paths that deliver the most of any destination asset.
func (c *Client) StrictSendPaths(ctx context.Context, source Asset, sourceAmount string, destinations []Asset) ([]PathRecord, error) {
	q := url.Values{}
	assetParams(q, "source", source)
	q.Set("source_amount", sourceAmount)

	dests := ""
	for i, d := range destinations {
		if i > 0 {
			dests += ","
		}
		dests += d.Canonical()
	}
	q.Set("destination_assets", dests)

	var raw struct {
		Embedded struct {
			Records []struct {
				SourceAmount           string `json:"source_amount"`
				DestinationAmount      string `json:"destination_amount"`
				DestinationAssetType   string `json:"destination_asset_type"`
				DestinationAssetCode   string `json:"destination_asset_code"`
				DestinationAssetIssuer string `json:"destination_asset_issuer"`
				Path                   []struct {
					AssetType   string `json:"asset_type"`
					AssetCode   string `json:"asset_code"`
					AssetIssuer string `json:"asset_issuer"`
				} `json:"path"`
			} `json:"records"`
		} `json:"_embedded"`
	}

	endpoint := c.baseURL + "/paths/strict-send?" + q.Encode()
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("strict-send paths from %s: %w", source.Canonical(), err)
	}

	records := make([]PathRecord, 0, len(raw.Embedded.Records))
	for _, r := range raw.Embedded.Records {
		rec := PathRecord{
			SourceAmount:      r.SourceAmount,
			DestinationAmount: r.DestinationAmount,
			DestinationAsset: Asset{
				Type:   r.DestinationAssetType,
				Code:   r.DestinationAssetCode,
				Issuer: r.DestinationAssetIssuer,
			},
		}
		for _, hop := range r.Path {
			rec.Path = append(rec.Path, Asset{
				Type:   hop.AssetType,
				Code:   hop.AssetCode,
				Issuer: hop.AssetIssuer,
			})
		}
		records = append(records, rec)
	}

	return records, nil
}

// getJSON performs a GET request and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var p problem
		if decodeErr := json.NewDecoder(resp.Body).Decode(&p); decodeErr == nil && p.Title != "" {
			return fmt.Errorf("horizon returned status %d: %s", resp.StatusCode, p.Title)
		}
		return fmt.Errorf("horizon returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// assetParams sets the prefixed asset query parameters Horizon expects,
// e.g. selling_asset_type / selling_asset_code / selling_asset_issuer
func assetParams(q url.Values, prefix string, a Asset) {
	q.Set(prefix+"_asset_type", a.Type)
	if !a.IsNative() {
		q.Set(prefix+"_asset_code", a.Code)
		q.Set(prefix+"_asset_issuer", a.Issuer)
	}
}

type rawLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// parseLevels converts Horizon's string price levels to floats, skipping
// levels that fail to parse
func (c *Client) parseLevels(raw []rawLevel) []Level {
	levels := make([]Level, 0, len(raw))
	for _, lvl := range raw {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			c.log.Warn().Str("price", lvl.Price).Msg("Skipping unparseable price level")
			continue
		}
		amount, err := strconv.ParseFloat(lvl.Amount, 64)
		if err != nil {
			c.log.Warn().Str("amount", lvl.Amount).Msg("Skipping unparseable price level")
			continue
		}
		levels = append(levels, Level{Price: price, Amount: amount})
	}
	return levels
}
