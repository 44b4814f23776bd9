package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/lokapasar/api/internal/domain"
	pfirestore "github.com/lokapasar/api/internal/platform/firestore"
	"github.com/lokapasar/api/internal/repositories"
)

const (
	settingsCollection  = "settings"
	shippingSettingsDoc = "shipping"
)

// SettingsRepository stores singleton configuration documents in Firestore.
type SettingsRepository struct {
	base *pfirestore.BaseRepository[globalShippingDocument]
}

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[globalShippingDocument](provider, settingsCollection, nil, nil)
	return &SettingsRepository{base: base}, nil
}

// GetShipping loads the store-wide shipping policy document.
func (r *SettingsRepository) GetShipping(ctx context.Context) (domain.GlobalShippingSettings, error) {
	if r == nil || r.base == nil {
		return domain.GlobalShippingSettings{}, errors.New("settings repository not initialised")
	}

	doc, err := r.base.Get(ctx, shippingSettingsDoc)
	if err != nil {
		return domain.GlobalShippingSettings{}, err
	}
	return domain.GlobalShippingSettings{
		FreeShippingThreshold: doc.Data.FreeShippingThreshold,
		DefaultShippingCost:   doc.Data.DefaultShippingCost,
		UpdatedAt:             doc.Data.UpdatedAt,
	}, nil
}

// SaveShipping replaces the store-wide shipping policy document.
func (r *SettingsRepository) SaveShipping(ctx context.Context, settings domain.GlobalShippingSettings) (domain.GlobalShippingSettings, error) {
	if r == nil || r.base == nil {
		return domain.GlobalShippingSettings{}, errors.New("settings repository not initialised")
	}

	updatedAt := settings.UpdatedAt.UTC()
	if settings.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	doc := globalShippingDocument{
		FreeShippingThreshold: settings.FreeShippingThreshold,
		DefaultShippingCost:   settings.DefaultShippingCost,
		UpdatedAt:             updatedAt,
	}
	if _, err := r.base.Set(ctx, shippingSettingsDoc, doc); err != nil {
		return domain.GlobalShippingSettings{}, err
	}
	return domain.GlobalShippingSettings{
		FreeShippingThreshold: doc.FreeShippingThreshold,
		DefaultShippingCost:   doc.DefaultShippingCost,
		UpdatedAt:             doc.UpdatedAt,
	}, nil
}

type globalShippingDocument struct {
	FreeShippingThreshold int64     `firestore:"freeShippingThreshold"`
	DefaultShippingCost   int64     `firestore:"defaultShippingCost"`
	UpdatedAt             time.Time `firestore:"updatedAt"`
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)
