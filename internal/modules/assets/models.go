// Package assets maintains the asset registry. Every node of the routing
// graph corresponds to a registered asset, identified by code and issuer
// account. Native XLM is the single asset with an empty issuer.
package assets

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Schema for the assets table (registry.db)
const Schema = `
CREATE TABLE IF NOT EXISTS assets (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	code             TEXT NOT NULL,
	issuer           TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL DEFAULT '',
	home_domain      TEXT NOT NULL DEFAULT '',
	verified         INTEGER NOT NULL DEFAULT 0,
	source           TEXT NOT NULL DEFAULT 'network',
	num_accounts     INTEGER NOT NULL DEFAULT 0,
	deposit_enabled  INTEGER NOT NULL DEFAULT 0,
	withdraw_enabled INTEGER NOT NULL DEFAULT 0,
	anchor_domain    TEXT NOT NULL DEFAULT '',
	active           INTEGER NOT NULL DEFAULT 1,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	UNIQUE(code, issuer)
);
CREATE INDEX IF NOT EXISTS idx_assets_code ON assets(code);
CREATE INDEX IF NOT EXISTS idx_assets_active ON assets(active);
`

// Source tags for registry rows
const (
	SourceNetwork   = "network"
	SourceAnchor    = "anchor"
	SourceSynthetic = "synthetic"
)

// NativeKey is the canonical key of native XLM. The issuer part of a
// canonical key is the literal token "native" for the native asset.
const NativeKey = "XLM:native"

// NativeCode is the asset code of native XLM
const NativeCode = "XLM"

var (
	codeRe   = regexp.MustCompile(`^[A-Za-z0-9]{1,12}$`)
	issuerRe = regexp.MustCompile(`^G[A-Z2-7]{55}$`)
)

// Asset represents a registered asset. Only active rows contribute
// nodes to the route graph.
type Asset struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	Issuer          string    `json:"issuer,omitempty"`
	Name            string    `json:"name,omitempty"`
	HomeDomain      string    `json:"home_domain,omitempty"`
	Verified        bool      `json:"verified"`
	Source          string    `json:"source,omitempty"`
	NumAccounts     int64     `json:"num_accounts,omitempty"`
	DepositEnabled  bool      `json:"deposit_enabled,omitempty"`
	WithdrawEnabled bool      `json:"withdraw_enabled,omitempty"`
	AnchorDomain    string    `json:"anchor_domain,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Key returns the canonical registry key for the asset
func (a *Asset) Key() string {
	return FormatKey(a.Code, a.Issuer)
}

// IsNative reports whether the asset is native XLM
func (a *Asset) IsNative() bool {
	return a.Issuer == ""
}

// FormatKey builds the canonical asset key "CODE:ISSUER". The native asset
// uses the literal issuer token "native": "XLM:native". Codes are upper-cased;
// asset equality is byte equality of the canonical key.
func FormatKey(code, issuer string) string {
	if issuer == "" {
		return NativeKey
	}
	return strings.ToUpper(code) + ":" + issuer
}

// ParseKey splits an asset key into code and issuer (empty for native).
// The canonical forms are "CODE:ISSUER" and "XLM:native"; the bare aliases
// "XLM" and "native" are accepted on input for convenience.
func ParseKey(key string) (code, issuer string, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("empty asset key")
	}

	if strings.EqualFold(key, "native") || strings.EqualFold(key, NativeCode) || strings.EqualFold(key, NativeKey) {
		return NativeCode, "", nil
	}

	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("asset key %q: expected CODE:ISSUER", key)
	}

	code, issuer = strings.ToUpper(parts[0]), parts[1]
	if err := ValidateCode(code); err != nil {
		return "", "", fmt.Errorf("asset key %q: %w", key, err)
	}

	// "CODE:native" is only meaningful for XLM itself
	if issuer == "native" {
		if code != NativeCode {
			return "", "", fmt.Errorf("asset key %q: only %s may use the native issuer", key, NativeCode)
		}
		return NativeCode, "", nil
	}

	if err := ValidateIssuer(issuer); err != nil {
		return "", "", fmt.Errorf("asset key %q: %w", key, err)
	}

	return code, issuer, nil
}

// ValidateCode checks an asset code: 1-12 alphanumeric characters
func ValidateCode(code string) error {
	if !codeRe.MatchString(code) {
		return fmt.Errorf("invalid asset code %q", code)
	}
	return nil
}

// ValidateIssuer checks an issuer account id: a Stellar public key
// (G..., 56 base32 characters)
func ValidateIssuer(issuer string) error {
	if !issuerRe.MatchString(issuer) {
		return fmt.Errorf("invalid issuer account %q", issuer)
	}
	return nil
}
