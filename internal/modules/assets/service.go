package assets

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/events"
)

// Service provides asset registry operations
type Service struct {
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewService creates a new asset service
func NewService(repo *Repository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("component", "assets").Logger(),
	}
}

// RegisterInput is the payload for registering or upserting an asset
type RegisterInput struct {
	Code            string `json:"code"`
	Issuer          string `json:"issuer"`
	Name            string `json:"name"`
	HomeDomain      string `json:"home_domain"`
	Verified        bool   `json:"verified"`
	NumAccounts     int64  `json:"num_accounts,omitempty"`
	DepositEnabled  bool   `json:"deposit_enabled,omitempty"`
	WithdrawEnabled bool   `json:"withdraw_enabled,omitempty"`
	AnchorDomain    string `json:"anchor_domain,omitempty"`
}

// validateInput checks the identity fields of a register/upsert payload
func validateInput(input *RegisterInput) error {
	if err := ValidateCode(input.Code); err != nil {
		return apperrors.BadRequest("%v", err)
	}
	if input.Issuer == "" {
		return apperrors.BadRequest("issuer is required; the native asset is registered automatically")
	}
	if err := ValidateIssuer(input.Issuer); err != nil {
		return apperrors.BadRequest("%v", err)
	}
	return nil
}

// assetFromInput builds the registry row for a validated payload. New
// and upserted rows are always active; deactivation is an explicit call.
func assetFromInput(input RegisterInput) *Asset {
	return &Asset{
		Code:            input.Code,
		Issuer:          input.Issuer,
		Name:            input.Name,
		HomeDomain:      input.HomeDomain,
		Verified:        input.Verified,
		Source:          SourceNetwork,
		NumAccounts:     input.NumAccounts,
		DepositEnabled:  input.DepositEnabled,
		WithdrawEnabled: input.WithdrawEnabled,
		AnchorDomain:    input.AnchorDomain,
		Active:          true,
	}
}

// EnsureNative seeds the native XLM row if the registry does not have it.
// Called once at boot; the graph always carries the native hub node.
func (s *Service) EnsureNative() error {
	existing, err := s.repo.GetByCodeIssuer(NativeCode, "")
	if err != nil {
		return fmt.Errorf("failed to look up native asset: %w", err)
	}
	if existing != nil {
		return nil
	}

	_, err = s.repo.Create(&Asset{
		Code:     NativeCode,
		Name:     "Stellar Lumens",
		Verified: true,
		Active:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to seed native asset: %w", err)
	}

	s.log.Info().Msg("Seeded native asset")
	return nil
}

// Register validates and stores a new asset
func (s *Service) Register(input RegisterInput) (*Asset, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByCodeIssuer(input.Code, input.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing asset: %w", err)
	}
	if existing != nil {
		return nil, apperrors.BadRequest("asset %s already registered", existing.Key())
	}

	asset := assetFromInput(input)
	id, err := s.repo.Create(asset)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	asset.ID = id

	if s.bus != nil {
		s.bus.Publish("assets", &events.AssetAddedData{
			Key:    asset.Key(),
			Code:   asset.Code,
			Issuer: asset.Issuer,
		})
	}

	s.log.Info().Str("key", asset.Key()).Msg("Asset registered")
	return asset, nil
}

// List returns registered assets, optionally only verified ones
func (s *Service) List(verifiedOnly bool) ([]Asset, error) {
	if verifiedOnly {
		return s.repo.GetVerified()
	}
	return s.repo.GetAll()
}

// GetByKey resolves an asset key to its registry record
func (s *Service) GetByKey(key string) (*Asset, error) {
	code, issuer, err := ParseKey(key)
	if err != nil {
		return nil, apperrors.BadRequest("%v", err)
	}

	asset, err := s.repo.GetByCodeIssuer(code, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}
	if asset == nil {
		return nil, apperrors.NotFound("asset %s not registered", FormatKey(code, issuer))
	}
	return asset, nil
}

// SetVerified flips the verified flag on an asset
func (s *Service) SetVerified(key string, verified bool) (*Asset, error) {
	asset, err := s.GetByKey(key)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetVerified(asset.ID, verified); err != nil {
		return nil, fmt.Errorf("failed to update verified flag: %w", err)
	}

	asset.Verified = verified
	s.log.Info().Str("key", asset.Key()).Bool("verified", verified).Msg("Asset verification updated")
	return asset, nil
}

// Upsert validates and stores an asset, replacing the attributes of an
// existing row with the same identity. Upserted rows come back active.
func (s *Service) Upsert(input RegisterInput) (*Asset, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	asset, err := s.repo.Upsert(assetFromInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert asset: %w", err)
	}

	s.log.Info().Str("key", asset.Key()).Msg("Asset upserted")
	return asset, nil
}

// SetActive flips the active flag on an asset. Deactivated assets drop
// out of the routable set, so the next rebuild removes their node.
func (s *Service) SetActive(key string, active bool) (*Asset, error) {
	asset, err := s.GetByKey(key)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetActive(asset.ID, active); err != nil {
		return nil, fmt.Errorf("failed to update active flag: %w", err)
	}

	asset.Active = active
	s.log.Info().Str("key", asset.Key()).Bool("active", active).Msg("Asset activation updated")
	return asset, nil
}

// Routable returns the active registry snapshot the builder works from
func (s *Service) Routable() ([]Asset, error) {
	return s.repo.GetAllActive()
}

// Count returns the number of registered assets
func (s *Service) Count() (int, error) {
	return s.repo.Count()
}
