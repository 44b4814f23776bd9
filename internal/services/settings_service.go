package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/lokapasar/api/internal/domain"
	"github.com/lokapasar/api/internal/repositories"
)

const paymentMethodIDPrefix = "pm_"

var (
	// ErrSettingsInvalidInput signals malformed admin input.
	ErrSettingsInvalidInput = errors.New("settings: invalid input")
	// ErrSettingsNotFound indicates the requested settings document is absent.
	ErrSettingsNotFound = errors.New("settings: not found")
)

var validMethodTypes = map[domain.PaymentMethodType]bool{
	domain.PaymentMethodCOD:            true,
	domain.PaymentMethodVirtualAccount: true,
	domain.PaymentMethodQRIS:           true,
	domain.PaymentMethodCreditCard:     true,
}

// SettingsServiceDeps bundles collaborators for the settings service.
type SettingsServiceDeps struct {
	Settings       repositories.SettingsRepository
	PaymentMethods repositories.PaymentMethodRepository
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type settingsService struct {
	settings  repositories.SettingsRepository
	methods   repositories.PaymentMethodRepository
	clock     func() time.Time
	newID     func() string
	sanitizer *bluemonday.Policy
	logger    func(context.Context, string, map[string]any)
}

// NewSettingsService wires the settings and payment method catalog service.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Settings == nil {
		return nil, errors.New("settings service: settings repository is required")
	}
	if deps.PaymentMethods == nil {
		return nil, errors.New("settings service: payment method repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &settingsService{
		settings: deps.Settings,
		methods:  deps.PaymentMethods,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}, nil
}

func (s *settingsService) GetShippingSettings(ctx context.Context) (domain.GlobalShippingSettings, error) {
	settings, err := s.settings.GetShipping(ctx)
	if err != nil {
		return domain.GlobalShippingSettings{}, s.mapRepositoryError(err)
	}
	return settings, nil
}

func (s *settingsService) UpdateShippingSettings(ctx context.Context, cmd UpdateShippingSettingsCommand) (domain.GlobalShippingSettings, error) {
	if cmd.FreeShippingThreshold < 0 {
		return domain.GlobalShippingSettings{}, fmt.Errorf("%w: free shipping threshold must not be negative", ErrSettingsInvalidInput)
	}
	if cmd.DefaultShippingCost < 0 {
		return domain.GlobalShippingSettings{}, fmt.Errorf("%w: default shipping cost must not be negative", ErrSettingsInvalidInput)
	}

	saved, err := s.settings.SaveShipping(ctx, domain.GlobalShippingSettings{
		FreeShippingThreshold: cmd.FreeShippingThreshold,
		DefaultShippingCost:   cmd.DefaultShippingCost,
		UpdatedAt:             s.clock(),
	})
	if err != nil {
		return domain.GlobalShippingSettings{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "settings.shipping.updated", map[string]any{
		"actor_id":  cmd.ActorID,
		"threshold": saved.FreeShippingThreshold,
		"cost":      saved.DefaultShippingCost,
	})
	return saved, nil
}

func (s *settingsService) ListPaymentMethods(ctx context.Context, activeOnly bool) ([]domain.PaymentMethod, error) {
	methods, err := s.methods.List(ctx, activeOnly)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return methods, nil
}

func (s *settingsService) GetPaymentMethod(ctx context.Context, methodID string) (domain.PaymentMethod, error) {
	methodID = strings.TrimSpace(methodID)
	if methodID == "" {
		return domain.PaymentMethod{}, fmt.Errorf("%w: method id is required", ErrSettingsInvalidInput)
	}
	method, err := s.methods.Get(ctx, methodID)
	if err != nil {
		return domain.PaymentMethod{}, s.mapRepositoryError(err)
	}
	return method, nil
}

func (s *settingsService) UpsertPaymentMethod(ctx context.Context, cmd UpsertPaymentMethodCommand) (domain.PaymentMethod, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.PaymentMethod{}, fmt.Errorf("%w: name is required", ErrSettingsInvalidInput)
	}
	if !validMethodTypes[cmd.Type] {
		return domain.PaymentMethod{}, fmt.Errorf("%w: unknown method type %q", ErrSettingsInvalidInput, cmd.Type)
	}

	channels := make([]string, 0, len(cmd.Channels))
	for _, channel := range cmd.Channels {
		if trimmed := strings.TrimSpace(channel); trimmed != "" {
			channels = append(channels, trimmed)
		}
	}
	if cmd.Type == domain.PaymentMethodVirtualAccount && len(channels) == 0 {
		return domain.PaymentMethod{}, fmt.Errorf("%w: virtual account methods need at least one channel", ErrSettingsInvalidInput)
	}

	now := s.clock()
	method := domain.PaymentMethod{
		ID:          strings.TrimSpace(cmd.MethodID),
		Name:        name,
		Type:        cmd.Type,
		Fee:         cmd.Fee,
		Channels:    channels,
		Description: s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		IsActive:    cmd.IsActive,
		UpdatedAt:   now,
	}
	if method.ID == "" {
		method.ID = paymentMethodIDPrefix + s.newID()
		method.CreatedAt = now
	}

	saved, err := s.methods.Upsert(ctx, method)
	if err != nil {
		return domain.PaymentMethod{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "settings.payment_method.upserted", map[string]any{
		"actor_id":  cmd.ActorID,
		"method_id": saved.ID,
		"type":      string(saved.Type),
		"active":    saved.IsActive,
	})
	return saved, nil
}

func (s *settingsService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrSettingsNotFound, err)
	}
	return err
}
