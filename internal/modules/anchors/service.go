package anchors

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/events"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
)

// Health smoothing: each probe observation moves the score by this factor.
// A healthy anchor that starts failing decays toward zero over a few probe
// cycles instead of collapsing on one bad probe.
const healthSmoothing = 0.3

// Service provides anchor registry operations
type Service struct {
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewService creates a new anchor service
func NewService(repo *Repository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("component", "anchors").Logger(),
	}
}

// AssetInput describes one bridgeable asset in a registration payload
type AssetInput struct {
	Code            string  `json:"code"`
	Issuer          string  `json:"issuer"`
	DepositEnabled  bool    `json:"deposit_enabled"`
	WithdrawEnabled bool    `json:"withdraw_enabled"`
	Active          bool    `json:"active"`
	FeeFixed        float64 `json:"fee_fixed"`
	FeePercent      float64 `json:"fee_percent"`
}

// RegisterInput is the payload for registering an anchor
type RegisterInput struct {
	Name       string       `json:"name"`
	HomeDomain string       `json:"home_domain"`
	Assets     []AssetInput `json:"assets"`
}

// Register validates and stores a new anchor with its bridgeable assets
func (s *Service) Register(input RegisterInput) (*Anchor, error) {
	domain := strings.ToLower(strings.TrimSpace(input.HomeDomain))
	if domain == "" {
		return nil, apperrors.BadRequest("home_domain is required")
	}

	for _, aa := range input.Assets {
		if err := assets.ValidateCode(aa.Code); err != nil {
			return nil, apperrors.BadRequest("%v", err)
		}
		if err := assets.ValidateIssuer(aa.Issuer); err != nil {
			return nil, apperrors.BadRequest("%v", err)
		}
		if aa.FeePercent < 0 || aa.FeePercent > 100 {
			return nil, apperrors.BadRequest("fee_percent %.2f out of range [0,100]", aa.FeePercent)
		}
		if aa.FeeFixed < 0 {
			return nil, apperrors.BadRequest("fee_fixed must not be negative")
		}
	}

	existing, err := s.repo.GetByDomain(domain)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing anchor: %w", err)
	}
	if existing != nil {
		return nil, apperrors.BadRequest("anchor %s already registered", domain)
	}

	anchor := &Anchor{
		Name:        input.Name,
		HomeDomain:  domain,
		Health:      1.0,
		Active:      true,
		LastProbeOK: true,
	}

	id, err := s.repo.Create(anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to create anchor: %w", err)
	}
	anchor.ID = id

	for _, aa := range input.Assets {
		if err := s.repo.UpsertAsset(&AnchorAsset{
			AnchorID:        id,
			Code:            aa.Code,
			Issuer:          aa.Issuer,
			DepositEnabled:  aa.DepositEnabled,
			WithdrawEnabled: aa.WithdrawEnabled,
			Active:          aa.Active,
			FeeFixed:        aa.FeeFixed,
			FeePercent:      aa.FeePercent,
		}); err != nil {
			return nil, err
		}
	}

	anchor.Assets, err = s.repo.GetAssets(id)
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish("anchors", &events.AnchorAddedData{
			Name:       anchor.Name,
			HomeDomain: anchor.HomeDomain,
		})
	}

	s.log.Info().Str("domain", domain).Int("assets", len(anchor.Assets)).Msg("Anchor registered")
	return anchor, nil
}

// List returns all anchors (without asset lists)
func (s *Service) List() ([]Anchor, error) {
	return s.repo.GetAll()
}

// GetByDomain resolves an anchor with its assets loaded
func (s *Service) GetByDomain(domain string) (*Anchor, error) {
	anchor, err := s.repo.GetByDomain(domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchor: %w", err)
	}
	if anchor == nil {
		return nil, apperrors.NotFound("anchor %s not registered", domain)
	}

	anchor.Assets, err = s.repo.GetAssets(anchor.ID)
	if err != nil {
		return nil, err
	}
	return anchor, nil
}

// UpsertAsset adds or updates a bridgeable asset on an anchor
func (s *Service) UpsertAsset(domain string, input AssetInput) (*Anchor, error) {
	anchor, err := s.GetByDomain(domain)
	if err != nil {
		return nil, err
	}

	if err := assets.ValidateCode(input.Code); err != nil {
		return nil, apperrors.BadRequest("%v", err)
	}
	if err := assets.ValidateIssuer(input.Issuer); err != nil {
		return nil, apperrors.BadRequest("%v", err)
	}

	if err := s.repo.UpsertAsset(&AnchorAsset{
		AnchorID:        anchor.ID,
		Code:            input.Code,
		Issuer:          input.Issuer,
		DepositEnabled:  input.DepositEnabled,
		WithdrawEnabled: input.WithdrawEnabled,
		Active:          input.Active,
		FeeFixed:        input.FeeFixed,
		FeePercent:      input.FeePercent,
	}); err != nil {
		return nil, err
	}

	return s.GetByDomain(domain)
}

// SetActive flips an anchor's active flag
func (s *Service) SetActive(domain string, active bool) (*Anchor, error) {
	anchor, err := s.GetByDomain(domain)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetActive(anchor.ID, active); err != nil {
		return nil, err
	}
	anchor.Active = active
	return anchor, nil
}

// ActiveBridges returns active anchors with their bridgeable assets.
// This is the snapshot bridge discovery consumes.
func (s *Service) ActiveBridges() ([]Anchor, error) {
	return s.repo.GetActiveWithAssets()
}

// RecordProbe folds one probe observation into an anchor's health score
// and persists the outcome. Publishes a health-change event when the score
// actually moved.
func (s *Service) RecordProbe(anchor *Anchor, ok bool, at time.Time) error {
	observation := 0.0
	if ok {
		observation = 1.0
	}

	newHealth := (1-healthSmoothing)*anchor.Health + healthSmoothing*observation
	if newHealth < 0 {
		newHealth = 0
	}
	if newHealth > 1 {
		newHealth = 1
	}

	if err := s.repo.UpdateHealth(anchor.ID, newHealth, ok, at); err != nil {
		return err
	}

	if s.bus != nil && newHealth != anchor.Health {
		s.bus.Publish("anchors", &events.AnchorHealthChangedData{
			Name:      anchor.HomeDomain,
			OldHealth: anchor.Health,
			NewHealth: newHealth,
		})
	}

	s.log.Debug().
		Str("domain", anchor.HomeDomain).
		Bool("ok", ok).
		Float64("health", newHealth).
		Msg("Probe recorded")

	anchor.Health = newHealth
	anchor.LastProbeOK = ok
	return nil
}

// Count returns the number of registered anchors
func (s *Service) Count() (int, error) {
	return s.repo.Count()
}
