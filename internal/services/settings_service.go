package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

// Tax rates above 100% are almost certainly a unit mistake (percent passed
// where basis points were expected).
const maxTaxRateBps = int64(10_000)

var (
	// ErrSettingsInvalidInput signals the caller provided an out-of-range setting.
	ErrSettingsInvalidInput = errors.New("settings: invalid input")
)

// SettingsServiceDeps bundles collaborators required to construct the settings service.
type SettingsServiceDeps struct {
	Repository repositories.SettingsRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type settingsService struct {
	repo   repositories.SettingsRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewSettingsService wires dependencies into a concrete SettingsService implementation.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Repository == nil {
		return nil, errors.New("settings service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &settingsService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *settingsService) Get(ctx context.Context) (CommerceSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return CommerceSettings{}, fmt.Errorf("settings: load: %w", err)
	}
	return settings, nil
}

func (s *settingsService) Update(ctx context.Context, cmd UpdateSettingsCommand) (CommerceSettings, error) {
	if cmd.TaxRateBps < 0 {
		return CommerceSettings{}, fmt.Errorf("%w: tax rate must be >= 0 basis points", ErrSettingsInvalidInput)
	}
	if cmd.TaxRateBps > maxTaxRateBps {
		return CommerceSettings{}, fmt.Errorf("%w: tax rate %d exceeds %d basis points", ErrSettingsInvalidInput, cmd.TaxRateBps, maxTaxRateBps)
	}

	now := s.clock()
	settings := domain.CommerceSettings{
		TaxRateBps: cmd.TaxRateBps,
		UpdatedAt:  now,
	}
	if err := s.repo.Save(ctx, settings); err != nil {
		return CommerceSettings{}, fmt.Errorf("settings: save: %w", err)
	}

	s.logger(ctx, "settings.commerce.updated", map[string]any{
		"taxRateBps": cmd.TaxRateBps,
		"actorId":    strings.TrimSpace(cmd.ActorID),
	})

	return settings, nil
}
