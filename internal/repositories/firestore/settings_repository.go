package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/orderdesk/api/internal/domain"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
)

const (
	settingsCollection  = "settings"
	commerceSettingsDoc = "commerce"

	// defaultTaxRateBps applies until an operator saves a custom rate.
	defaultTaxRateBps = 1800
)

type settingsDocument struct {
	TaxRateBps int64     `firestore:"taxRateBps"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// SettingsRepository stores the commerce configuration document on Firestore.
type SettingsRepository struct {
	provider *pfirestore.Provider
	settings *pfirestore.BaseRepository[settingsDocument]
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[settingsDocument](provider, settingsCollection, nil, nil)
	return &SettingsRepository{provider: provider, settings: base}, nil
}

// Get returns the commerce settings, falling back to defaults when the
// document has never been saved.
func (r *SettingsRepository) Get(ctx context.Context) (domain.CommerceSettings, error) {
	if r == nil || r.settings == nil {
		return domain.CommerceSettings{}, errors.New("settings repository not initialised")
	}
	ref, err := r.settings.DocumentRef(ctx, commerceSettingsDoc)
	if err != nil {
		return domain.CommerceSettings{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.CommerceSettings{TaxRateBps: defaultTaxRateBps}, nil
		}
		return domain.CommerceSettings{}, pfirestore.WrapError("settings.get", err)
	}
	var doc settingsDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CommerceSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return domain.CommerceSettings{TaxRateBps: doc.TaxRateBps, UpdatedAt: doc.UpdatedAt}, nil
}

// Save persists the commerce settings document.
func (r *SettingsRepository) Save(ctx context.Context, settings domain.CommerceSettings) error {
	if r == nil || r.settings == nil {
		return errors.New("settings repository not initialised")
	}
	if settings.TaxRateBps < 0 {
		return errors.New("settings save: tax rate must be >= 0")
	}
	ref, err := r.settings.DocumentRef(ctx, commerceSettingsDoc)
	if err != nil {
		return err
	}
	doc := settingsDocument{
		TaxRateBps: settings.TaxRateBps,
		UpdatedAt:  settings.UpdatedAt.UTC(),
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("settings.save", err)
	}
	return nil
}
