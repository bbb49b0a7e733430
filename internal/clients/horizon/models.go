package horizon

// Asset identifies a Stellar asset in Horizon query parameters.
// Native XLM has Type "native" and empty Code/Issuer.
type Asset struct {
	Type   string `json:"asset_type"`
	Code   string `json:"asset_code,omitempty"`
	Issuer string `json:"asset_issuer,omitempty"`
}

// NewAsset builds an Asset, deriving the Horizon asset type from the code
// length. An empty issuer means native XLM.
func NewAsset(code, issuer string) Asset {
	if issuer == "" {
		return Asset{Type: "native"}
	}
	assetType := "credit_alphanum4"
	if len(code) > 4 {
		assetType = "credit_alphanum12"
	}
	return Asset{Type: assetType, Code: code, Issuer: issuer}
}

// IsNative reports whether the asset is native XLM
func (a Asset) IsNative() bool {
	return a.Type == "native"
}

// Canonical returns the asset in Horizon's list format: "native" for XLM,
// "CODE:ISSUER" otherwise. Used for the destination_assets parameter.
func (a Asset) Canonical() string {
	if a.IsNative() {
		return "native"
	}
	return a.Code + ":" + a.Issuer
}

// Level is one price level of an orderbook side
type Level struct {
	Price  float64
	Amount float64
}

// Orderbook holds both sides of a market's orderbook, best price first
type Orderbook struct {
	Bids []Level
	Asks []Level
}

// BestBid returns the top bid price, or 0 if the bid side is empty
func (ob *Orderbook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 if the ask side is empty
func (ob *Orderbook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// BidDepth returns the cumulative bid volume across all returned levels
func (ob *Orderbook) BidDepth() float64 {
	var total float64
	for _, lvl := range ob.Bids {
		total += lvl.Amount
	}
	return total
}

// AskDepth returns the cumulative ask volume across all returned levels
func (ob *Orderbook) AskDepth() float64 {
	var total float64
	for _, lvl := range ob.Asks {
		total += lvl.Amount
	}
	return total
}

// PathRecord is one payment path returned by the strict-send endpoint.
// Amounts stay as Horizon's decimal strings; callers needing arithmetic
// parse them at their own precision.
type PathRecord struct {
	SourceAmount      string
	DestinationAmount string
	DestinationAsset  Asset
	Path              []Asset
}

// Root describes the Horizon instance, fetched from its root endpoint
type Root struct {
	HorizonVersion      string `json:"horizon_version"`
	NetworkPassphrase   string `json:"network_passphrase"`
	HistoryLatestLedger int32  `json:"history_latest_ledger"`
	CoreLatestLedger    int32  `json:"core_latest_ledger"`
}
