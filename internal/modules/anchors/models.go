// Package anchors maintains the anchor registry: issuing services that
// bridge assets on and off the network. Each anchor carries a health score
// that feeds bridge edge weights, and a set of bridgeable assets with
// per-asset capability and fee fields.
package anchors

import (
	"time"

	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
)

// Schema for the anchors tables (registry.db)
const Schema = `
CREATE TABLE IF NOT EXISTS anchors (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL DEFAULT '',
	home_domain   TEXT NOT NULL UNIQUE,
	health        REAL NOT NULL DEFAULT 1.0,
	active        INTEGER NOT NULL DEFAULT 1,
	last_probe_at INTEGER,
	last_probe_ok INTEGER NOT NULL DEFAULT 1,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS anchor_assets (
	anchor_id        INTEGER NOT NULL REFERENCES anchors(id) ON DELETE CASCADE,
	asset_code       TEXT NOT NULL,
	asset_issuer     TEXT NOT NULL,
	deposit_enabled  INTEGER NOT NULL DEFAULT 1,
	withdraw_enabled INTEGER NOT NULL DEFAULT 1,
	active           INTEGER NOT NULL DEFAULT 1,
	fee_fixed        REAL NOT NULL DEFAULT 0,
	fee_percent      REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (anchor_id, asset_code, asset_issuer)
);
`

// Anchor represents one anchor service
type Anchor struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	HomeDomain  string     `json:"home_domain"`
	Health      float64    `json:"health"`
	Active      bool       `json:"active"`
	LastProbeAt *time.Time `json:"last_probe_at,omitempty"`
	LastProbeOK bool       `json:"last_probe_ok"`
	CreatedAt   time.Time  `json:"created_at"`

	// Assets is populated by the WithAssets read paths
	Assets []AnchorAsset `json:"assets,omitempty"`
}

// AnchorAsset is one asset an anchor can bridge, with capability flags and
// the fees charged at this endpoint
type AnchorAsset struct {
	AnchorID        int64   `json:"-"`
	Code            string  `json:"code"`
	Issuer          string  `json:"issuer"`
	DepositEnabled  bool    `json:"deposit_enabled"`
	WithdrawEnabled bool    `json:"withdraw_enabled"`
	Active          bool    `json:"active"`
	FeeFixed        float64 `json:"fee_fixed"`
	FeePercent      float64 `json:"fee_percent"`
}

// Key returns the canonical asset key of this bridgeable asset
func (aa *AnchorAsset) Key() string {
	return assets.FormatKey(aa.Code, aa.Issuer)
}

// Bridgeable reports whether the asset can participate in a bridge edge:
// it must be active with at least one of deposit or withdraw enabled.
func (aa *AnchorAsset) Bridgeable() bool {
	return aa.Active && (aa.DepositEnabled || aa.WithdrawEnabled)
}
