package anchors

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// anchorColumns is the column list for scanning anchors.
// Order must match scanAnchor.
const anchorColumns = `id, name, home_domain, health, active, last_probe_at, last_probe_ok, created_at`

const anchorAssetColumns = `anchor_id, asset_code, asset_issuer, deposit_enabled, withdraw_enabled, active, fee_fixed, fee_percent`

// Repository handles anchor database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new anchor repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "anchors").Logger(),
	}
}

func scanAnchor(scanner interface{ Scan(...interface{}) error }) (*Anchor, error) {
	var a Anchor
	var active, probeOK int
	var probeAt sql.NullInt64
	var createdAt int64

	err := scanner.Scan(&a.ID, &a.Name, &a.HomeDomain, &a.Health, &active, &probeAt, &probeOK, &createdAt)
	if err != nil {
		return nil, err
	}

	a.Active = active != 0
	a.LastProbeOK = probeOK != 0
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	if probeAt.Valid {
		t := time.Unix(probeAt.Int64, 0).UTC()
		a.LastProbeAt = &t
	}
	return &a, nil
}

// Create inserts a new anchor and returns its id
func (r *Repository) Create(a *Anchor) (int64, error) {
	res, err := r.db.Exec(
		`INSERT INTO anchors (name, home_domain, health, active, last_probe_ok, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.Name, strings.ToLower(strings.TrimSpace(a.HomeDomain)), a.Health, boolToInt(a.Active), boolToInt(a.LastProbeOK), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert anchor %s: %w", a.HomeDomain, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get anchor id: %w", err)
	}
	return id, nil
}

// GetByDomain returns an anchor by home domain, or nil if not found
func (r *Repository) GetByDomain(domain string) (*Anchor, error) {
	row := r.db.QueryRow(
		"SELECT "+anchorColumns+" FROM anchors WHERE home_domain = ?",
		strings.ToLower(strings.TrimSpace(domain)),
	)

	a, err := scanAnchor(row)
	if err == sql.ErrNoRows {
		return nil, nil // Anchor not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query anchor %s: %w", domain, err)
	}
	return a, nil
}

// GetAll returns all anchors ordered by domain
func (r *Repository) GetAll() ([]Anchor, error) {
	rows, err := r.db.Query("SELECT " + anchorColumns + " FROM anchors ORDER BY home_domain")
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}
	defer rows.Close()

	return collectAnchors(rows)
}

// GetActive returns active anchors ordered by domain
func (r *Repository) GetActive() ([]Anchor, error) {
	rows, err := r.db.Query("SELECT " + anchorColumns + " FROM anchors WHERE active = 1 ORDER BY home_domain")
	if err != nil {
		return nil, fmt.Errorf("failed to query active anchors: %w", err)
	}
	defer rows.Close()

	return collectAnchors(rows)
}

func collectAnchors(rows *sql.Rows) ([]Anchor, error) {
	var out []Anchor
	for rows.Next() {
		a, err := scanAnchor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anchor: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpsertAsset adds or replaces a bridgeable asset on an anchor
func (r *Repository) UpsertAsset(aa *AnchorAsset) error {
	_, err := r.db.Exec(
		`INSERT INTO anchor_assets (anchor_id, asset_code, asset_issuer, deposit_enabled, withdraw_enabled, active, fee_fixed, fee_percent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(anchor_id, asset_code, asset_issuer) DO UPDATE SET
			deposit_enabled = excluded.deposit_enabled,
			withdraw_enabled = excluded.withdraw_enabled,
			active = excluded.active,
			fee_fixed = excluded.fee_fixed,
			fee_percent = excluded.fee_percent`,
		aa.AnchorID, strings.ToUpper(aa.Code), aa.Issuer,
		boolToInt(aa.DepositEnabled), boolToInt(aa.WithdrawEnabled), boolToInt(aa.Active),
		aa.FeeFixed, aa.FeePercent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert anchor asset %s: %w", aa.Key(), err)
	}
	return nil
}

// GetAssets returns the bridgeable assets of one anchor
func (r *Repository) GetAssets(anchorID int64) ([]AnchorAsset, error) {
	rows, err := r.db.Query(
		"SELECT "+anchorAssetColumns+" FROM anchor_assets WHERE anchor_id = ? ORDER BY asset_code, asset_issuer",
		anchorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchor assets: %w", err)
	}
	defer rows.Close()

	var out []AnchorAsset
	for rows.Next() {
		var aa AnchorAsset
		var deposit, withdraw, active int
		err := rows.Scan(&aa.AnchorID, &aa.Code, &aa.Issuer, &deposit, &withdraw, &active, &aa.FeeFixed, &aa.FeePercent)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anchor asset: %w", err)
		}
		aa.DepositEnabled = deposit != 0
		aa.WithdrawEnabled = withdraw != 0
		aa.Active = active != 0
		out = append(out, aa)
	}
	return out, rows.Err()
}

// GetActiveWithAssets returns active anchors with their asset lists loaded.
// This is the read view bridge discovery works from.
func (r *Repository) GetActiveWithAssets() ([]Anchor, error) {
	anchors, err := r.GetActive()
	if err != nil {
		return nil, err
	}

	for i := range anchors {
		anchorAssets, err := r.GetAssets(anchors[i].ID)
		if err != nil {
			return nil, err
		}
		anchors[i].Assets = anchorAssets
	}
	return anchors, nil
}

// UpdateHealth records a probe outcome
func (r *Repository) UpdateHealth(id int64, health float64, probeOK bool, probeAt time.Time) error {
	res, err := r.db.Exec(
		"UPDATE anchors SET health = ?, last_probe_ok = ?, last_probe_at = ? WHERE id = ?",
		health, boolToInt(probeOK), probeAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update anchor %d health: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check anchor %d health update: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("anchor %d not found", id)
	}
	return nil
}

// SetActive flips the active flag on an anchor
func (r *Repository) SetActive(id int64, active bool) error {
	res, err := r.db.Exec("UPDATE anchors SET active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to update anchor %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check anchor %d update: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("anchor %d not found", id)
	}
	return nil
}

// Count returns the number of registered anchors
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM anchors").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count anchors: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
